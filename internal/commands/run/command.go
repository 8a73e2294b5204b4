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

// Package run implements the command that launches and supervises a
// production run.
package run

import (
	"github.com/spf13/cobra"
	"github.com/tombee/orca/internal/commands/shared"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch a production run and supervise it",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run configures every workflow named in the production config, checks the
configuration, submits the workflows to HTCondor and waits until all of them
have left the queue.

While the production runs, a control endpoint accepts HTTP DELETE requests
carrying {"runid": ..., "level": ...}; 'orca stop' sends them. SIGINT and
SIGTERM stop the production at level 'now'.

With --wait-running, orca checks that every submitted workflow reaches the
running state in time; a held job or a missed deadline stops the production.

Configuration check care:
  config_check_care in the production config sets how thorough the pre-launch
  check is. --skip-config-check bypasses it entirely.

Verbosity:
  -v        debug logging
  -vv       trace logging, including raw scheduler output`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = shared.ResolveConfigPath()
			opts.verbosity = shared.GetVerbosity()
			opts.json = shared.GetJSON()
			opts.stdout = cmd.OutOrStdout()
			opts.stderr = cmd.ErrOrStderr()
			return execute(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run-id", "", "Run id (default: production.run_id, then a generated uuid)")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-config-check", false, "Launch without checking the configuration")
	cmd.Flags().BoolVar(&opts.checkOnly, "check", false, "Configure and check the production, then exit without launching")
	cmd.Flags().StringVar(&opts.endpointFile, "endpoint-file", "", "Write the control endpoint address and run id to this file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.waitRunning, "wait-running", 0, "Stop the production unless every workflow is running within this long (0: do not wait)")

	return cmd
}
