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

// Package stop implements the command that asks a running production to
// shut down through its control endpoint.
package stop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/cli/prompt"
	"github.com/tombee/orca/internal/client"
	"github.com/tombee/orca/internal/commands/completion"
	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/lifecycle"
	"github.com/tombee/orca/internal/production"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

type stopOptions struct {
	host         string
	port         int
	level        string
	runID        string
	endpointFile string
	yes          bool
	timeout      time.Duration
	json         bool

	out      io.Writer
	prompter prompt.Prompter
}

// Result is the --json output of a stop request.
type Result struct {
	RunID    string `json:"run_id"`
	Level    int    `json:"level"`
	Urgency  string `json:"urgency"`
	Endpoint string `json:"endpoint"`
	Sent     bool   `json:"sent"`
}

// NewCommand creates the stop command
func NewCommand() *cobra.Command {
	var opts stopOptions

	cmd := &cobra.Command{
		Use:     "stop",
		Aliases: []string{"shutprod"},
		Short:   "Ask a running production to stop",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Stop sends an HTTP DELETE to a production's control endpoint. The production
accepts the request only when the run id matches its own.

Urgency levels:
  0  finish_pending_data
  1  end_iteration
  2  checkpoint
  3  now

The endpoint is either given with --host/--port or read, together with the
run id, from the file written by 'orca run --endpoint-file'. Missing values
are prompted for when running in a terminal.`,
		Example: `  orca stop -H submit01 -P 8500 -L 3 -R 0b6f7d0a
  orca stop --endpoint-file run/endpoint -L checkpoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.json = shared.GetJSON()
			opts.out = cmd.OutOrStdout()
			if opts.prompter == nil {
				opts.prompter = prompt.NewSurveyPrompter(!shared.IsNonInteractive() && !opts.json).WithDescriptions(describeUrgency)
			}
			return execute(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.host, "host", "H", "", "Control endpoint host")
	cmd.Flags().IntVarP(&opts.port, "port", "P", 0, "Control endpoint port")
	cmd.Flags().StringVarP(&opts.level, "level", "L", "", "Urgency level, as a number or name")
	cmd.Flags().StringVarP(&opts.runID, "runid", "R", "", "Run id of the production to stop")
	cmd.Flags().StringVar(&opts.endpointFile, "endpoint-file", "", "Read host:port and run id from this file")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not ask for confirmation before an immediate stop")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")

	_ = cmd.RegisterFlagCompletionFunc("level", completion.CompleteUrgency)
	_ = cmd.RegisterFlagCompletionFunc("runid", completion.CompleteActiveRunIDs)

	return cmd
}

func execute(ctx context.Context, opts stopOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	addr, err := resolveEndpoint(&opts)
	if err != nil {
		return err
	}

	if opts.runID == "" {
		if !opts.prompter.IsInteractive() {
			return shared.NewConfigError("run id is required", fmt.Errorf("pass --runid or --endpoint-file"))
		}
		opts.runID, err = opts.prompter.PromptString(ctx, "Run id", "production run to stop", "")
		if err != nil {
			return promptError("failed to read run id", err)
		}
	}
	if err := prompt.ValidateRunID(opts.runID); err != nil {
		return shared.NewConfigError("invalid run id", err)
	}

	urgency, err := resolveUrgency(ctx, opts)
	if err != nil {
		return err
	}

	if urgency == lifecycle.Now && !opts.yes && opts.prompter.IsInteractive() {
		ok, err := opts.prompter.PromptBool(ctx, "Stop now", fmt.Sprintf("remove every job of run %s immediately?", opts.runID), false)
		if err != nil {
			return promptError("failed to read confirmation", err)
		}
		if !ok {
			return report(opts, Result{RunID: opts.runID, Level: int(urgency), Urgency: urgency.String(), Endpoint: addr})
		}
	}

	c, err := client.New(addr, client.WithTimeout(opts.timeout))
	if err != nil {
		return shared.NewConfigError("invalid control endpoint", err)
	}

	if err := c.Stop(ctx, opts.runID, urgency); err != nil {
		var statusErr *client.StatusError
		if orcaerrors.As(err, &statusErr) {
			return shared.NewStopRejectedError(fmt.Sprintf("production at %s rejected the stop request", addr), err)
		}
		return shared.NewExecutionError(fmt.Sprintf("failed to reach production at %s", addr), err)
	}

	return report(opts, Result{RunID: opts.runID, Level: int(urgency), Urgency: urgency.String(), Endpoint: addr, Sent: true})
}

// resolveEndpoint picks host:port from flags, falling back to the endpoint
// file. A run id in the file fills an empty --runid.
func resolveEndpoint(opts *stopOptions) (string, error) {
	if opts.host != "" || opts.port != 0 {
		if opts.host == "" || opts.port <= 0 || opts.port > 65535 {
			return "", shared.NewConfigError("both --host and a --port between 1 and 65535 are required", nil)
		}
		return net.JoinHostPort(opts.host, strconv.Itoa(opts.port)), nil
	}
	if opts.endpointFile == "" {
		return "", shared.NewConfigError("no control endpoint given", fmt.Errorf("pass --host and --port, or --endpoint-file"))
	}
	addr, runID, err := production.ReadEndpointFile(opts.endpointFile)
	if err != nil {
		return "", shared.NewConfigError("failed to read endpoint file", err)
	}
	if opts.runID == "" {
		opts.runID = runID
	}
	return addr, nil
}

// promptError maps an abandoned prompt to an interrupted exit.
func promptError(msg string, err error) error {
	if orcaerrors.Is(err, prompt.ErrCancelled) || orcaerrors.Is(err, context.Canceled) {
		return shared.NewInterruptedError("stop cancelled", err)
	}
	return shared.NewConfigError(msg, err)
}

func describeUrgency(name string) string {
	u, err := lifecycle.ParseUrgency(name)
	if err != nil {
		return ""
	}
	return u.Description()
}

func resolveUrgency(ctx context.Context, opts stopOptions) (lifecycle.Urgency, error) {
	level := opts.level
	if level == "" {
		if !opts.prompter.IsInteractive() {
			return 0, shared.NewConfigError("urgency level is required", fmt.Errorf("pass --level"))
		}
		names := make([]string, 0, int(lifecycle.Now)+1)
		for u := lifecycle.FinishPendingData; u <= lifecycle.Now; u++ {
			names = append(names, u.String())
		}
		var err error
		level, err = opts.prompter.PromptEnum(ctx, "Urgency", "how soon the production should stop", names, lifecycle.Checkpoint.String())
		if err != nil {
			return 0, promptError("failed to read urgency level", err)
		}
	}
	urgency, err := lifecycle.ParseUrgency(level)
	if err != nil {
		return 0, shared.NewConfigError("invalid urgency level", err)
	}
	return urgency, nil
}

func report(opts stopOptions, res Result) error {
	if opts.json {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(opts.out, string(data))
		return nil
	}
	if shared.GetQuiet() {
		return nil
	}
	if !res.Sent {
		fmt.Fprintln(opts.out, shared.RenderWarn("stop cancelled"))
		return nil
	}
	fmt.Fprintln(opts.out, shared.RenderOK(fmt.Sprintf("stop requested for run %s at level %d (%s)", res.RunID, res.Level, res.Urgency)))
	return nil
}
