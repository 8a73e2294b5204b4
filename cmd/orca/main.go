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

package main

import (
	"github.com/tombee/orca/internal/cli"
	"github.com/tombee/orca/internal/commands/completion"
	configcmd "github.com/tombee/orca/internal/commands/config"
	"github.com/tombee/orca/internal/commands/run"
	"github.com/tombee/orca/internal/commands/status"
	"github.com/tombee/orca/internal/commands/stop"
	versioncmd "github.com/tombee/orca/internal/commands/version"
	"github.com/tombee/orca/internal/commands/waitfiles"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildDate)

	rootCmd := cli.NewRootCommand()

	// Production commands
	rootCmd.AddCommand(run.NewCommand())
	rootCmd.AddCommand(stop.NewCommand())
	rootCmd.AddCommand(status.NewCommand())
	rootCmd.AddCommand(configcmd.NewConfigCommand())

	// Helpers used from workflow jobs
	rootCmd.AddCommand(waitfiles.NewCommand())

	rootCmd.AddCommand(completion.NewCommand())
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
