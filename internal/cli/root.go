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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/orca/internal/commands/completion"
	"github.com/tombee/orca/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for orca
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orca",
		Short: "orca - production run orchestration for HTCondor workflows",
		Long: `orca launches a set of HTCondor/Pegasus workflows as one production run,
supervises them until they leave the queue, and exposes an HTTP control
endpoint through which an operator can ask the run to stop.

Run 'orca run -c production.yaml' to start a production.
Run 'orca stop' to stop one.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	flags := shared.RegisterFlagPointers()

	cmd.PersistentFlags().CountVarP(flags.Verbose, "verbose", "v", "Raise log verbosity (repeat for trace)")
	cmd.PersistentFlags().BoolVarP(flags.Quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(flags.JSON, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVarP(flags.Config, "config", "c", "", "Path to production config file (default: $ORCA_CONFIG)")
	cmd.PersistentFlags().StringVar(flags.LogFormat, "log-format", "", "Log format: json or text (default: $LOG_FORMAT or json)")
	_ = cmd.RegisterFlagCompletionFunc("log-format", completion.CompleteLogFormats)

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
