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

// Package status implements the command that shows recorded production
// state from the run-state database.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/commands/completion"
	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/config"
	"github.com/tombee/orca/internal/production"
)

type statusOptions struct {
	dbPath     string
	configPath string
	runID      string
	limit      int
	json       bool

	out io.Writer
}

// RunStatus is the --json shape of one run.
type RunStatus struct {
	RunID       string           `json:"run_id"`
	ShortName   string           `json:"short_name,omitempty"`
	State       string           `json:"state"`
	Urgency     string           `json:"urgency,omitempty"`
	ControlAddr string           `json:"control_addr,omitempty"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
	Workflows   []WorkflowStatus `json:"workflows,omitempty"`
}

// WorkflowStatus is the --json shape of one workflow.
type WorkflowStatus struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
	JobID    string `json:"job_id,omitempty"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// NewCommand creates the status command
func NewCommand() *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show recorded run and workflow state",
		Long: `Status reads the run-state database written by 'orca run' and lists recent
productions, or the workflows of one production when a run id is given.

The database is taken from --db, then production.state_db in the config
file, then ORCA_STATE_DB.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completion.CompleteRunIDs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.runID = args[0]
			}
			opts.configPath = shared.ResolveConfigPath()
			opts.json = shared.GetJSON()
			opts.out = cmd.OutOrStdout()
			return execute(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "Path to the run-state database")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Number of runs to list")

	return cmd
}

func execute(ctx context.Context, opts statusOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	path, err := resolveDB(opts)
	if err != nil {
		return err
	}
	if path == ":memory:" {
		return shared.NewConfigError("an in-memory run-state database cannot be inspected", nil)
	}
	if _, err := os.Stat(path); err != nil {
		return shared.NewConfigError(fmt.Sprintf("run-state database %s not found", path), err)
	}

	store, err := production.OpenStore(ctx, path)
	if err != nil {
		return shared.NewExecutionError("failed to open run-state database", err)
	}
	defer store.Close()

	if opts.runID == "" {
		runs, err := store.Runs(ctx, opts.limit)
		if err != nil {
			return shared.NewExecutionError("failed to list runs", err)
		}
		statuses := make([]RunStatus, len(runs))
		for i, r := range runs {
			statuses[i] = toRunStatus(r, nil)
		}
		if opts.json {
			return writeJSON(opts.out, statuses)
		}
		renderRuns(opts.out, statuses)
		return nil
	}

	run, err := store.Run(ctx, opts.runID)
	if err != nil {
		return shared.NewExecutionError("failed to read run", err)
	}
	if run == nil {
		return shared.NewExecutionError(fmt.Sprintf("no run %s recorded in %s", opts.runID, path), nil)
	}
	wfs, err := store.Workflows(ctx, opts.runID)
	if err != nil {
		return shared.NewExecutionError("failed to read workflows", err)
	}
	status := toRunStatus(*run, wfs)
	if opts.json {
		return writeJSON(opts.out, status)
	}
	renderRun(opts.out, status)
	return nil
}

func resolveDB(opts statusOptions) (string, error) {
	if opts.dbPath != "" {
		return opts.dbPath, nil
	}
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return "", shared.NewConfigError("failed to load production config", err)
		}
		if cfg.Production.StateDB != "" {
			return cfg.Production.StateDB, nil
		}
	}
	if env := os.Getenv("ORCA_STATE_DB"); env != "" {
		return env, nil
	}
	return "", shared.NewConfigError("no run-state database given", fmt.Errorf("pass --db, set production.state_db or ORCA_STATE_DB"))
}

func toRunStatus(r production.RunRecord, wfs []production.WorkflowRecord) RunStatus {
	s := RunStatus{
		RunID:       r.RunID,
		ShortName:   r.ShortName,
		State:       r.State,
		Urgency:     r.Urgency,
		ControlAddr: r.ControlAddr,
		UpdatedAt:   r.UpdatedAt,
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		s.StartedAt = &t
	}
	if !r.FinishedAt.IsZero() {
		t := r.FinishedAt
		s.FinishedAt = &t
	}
	for _, w := range wfs {
		s.Workflows = append(s.Workflows, WorkflowStatus{
			Name:     w.Workflow,
			Sequence: w.Sequence,
			JobID:    w.JobID,
			State:    w.State,
			Error:    w.Error,
		})
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func renderRuns(w io.Writer, runs []RunStatus) {
	if len(runs) == 0 {
		fmt.Fprintln(w, shared.Muted.Render("no runs recorded"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tNAME\tSTATE\tUPDATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RunID, r.ShortName, shared.RenderState(r.State), formatTime(r.UpdatedAt))
	}
	tw.Flush()
}

func renderRun(w io.Writer, r RunStatus) {
	fmt.Fprintln(w, shared.Header.Render("Production "+r.RunID))
	field := func(label, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %s %s\n", shared.RenderLabel(fmt.Sprintf("%-10s", label+":")), value)
		}
	}
	field("name", r.ShortName)
	field("state", shared.RenderState(r.State))
	field("urgency", r.Urgency)
	field("endpoint", r.ControlAddr)
	if r.StartedAt != nil {
		field("started", formatTime(*r.StartedAt))
	}
	if r.FinishedAt != nil {
		field("finished", formatTime(*r.FinishedAt))
	}

	if len(r.Workflows) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tWORKFLOW\tJOB\tSTATE\tERROR")
	for _, wf := range r.Workflows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", wf.Sequence, wf.Name, wf.JobID, shared.RenderState(wf.State), wf.Error)
	}
	tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
