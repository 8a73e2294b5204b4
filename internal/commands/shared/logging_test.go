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
	"bytes"
	"context"
	"log/slog"
	"testing"

	orcalog "github.com/tombee/orca/internal/log"
)

func TestNewLogger_Flags(t *testing.T) {
	t.Setenv("ORCA_DEBUG", "")
	t.Setenv("ORCA_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "")
	defer ResetFlagsForTest()

	tests := []struct {
		name    string
		verbose int
		quiet   bool
		want    slog.Level
	}{
		{name: "default", want: slog.LevelInfo},
		{name: "verbose", verbose: 1, want: slog.LevelDebug},
		{name: "very verbose", verbose: 2, want: orcalog.LevelTrace},
		{name: "quiet wins", verbose: 2, quiet: true, want: slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ResetFlagsForTest()
			flags := RegisterFlagPointers()
			*flags.Verbose = tt.verbose
			*flags.Quiet = tt.quiet

			var buf bytes.Buffer
			logger, level := NewLogger(&buf)
			if level.Level() != tt.want {
				t.Errorf("level = %v, want %v", level.Level(), tt.want)
			}
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("logger should be enabled at %v", tt.want)
			}
		})
	}
}
