// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"io"
	"log/slog"

	orcalog "github.com/tombee/orca/internal/log"
)

// NewLogger builds the command logger from the environment and the global
// flags. --quiet wins over --verbose; the returned LevelVar lets the run
// command raise the level later.
func NewLogger(w io.Writer) (*slog.Logger, *slog.LevelVar) {
	cfg := orcalog.FromEnv()
	cfg.Output = w
	if f := GetLogFormat(); f != "" {
		cfg.Format = orcalog.Format(f)
	}
	switch {
	case GetQuiet():
		cfg.Level = "error"
	case GetVerbosity() > 0:
		cfg.Level = orcalog.VerbosityLevel(GetVerbosity())
	}
	return orcalog.NewLeveled(cfg)
}
