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

/*
Package cli provides the root command and shared configuration for orca's CLI.

This package creates the main Cobra command tree and handles global concerns like
version information, persistent flags, and error handling. Individual commands
are implemented in the internal/commands subpackages.

# Command Tree

	orca
	├── run           Launch a production run and supervise it
	├── stop          Ask a running production to stop (alias: shutprod)
	├── wait-files    Block until files appear
	├── status        Show recorded run and workflow state
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	rootCmd := cli.NewRootCommand()
	// ... add commands ...
	if err := rootCmd.Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Global Flags

All commands inherit these flags:

	--verbose, -v    Raise log verbosity (repeatable)
	--quiet, -q      Suppress non-error output
	--json           Output in JSON format
	--config, -c     Path to production config file
	--log-format     Log format (json, text)

# Exit Codes

  - 0: Success
  - 1: Production failed or general error
  - 2: Invalid configuration
  - 3: Stop request rejected
  - 4: Timed out
*/
package cli
