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

package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/config"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// ValidationResult is the --json output of config validate.
type ValidationResult struct {
	Path      string   `json:"path"`
	Valid     bool     `json:"valid"`
	Problems  []string `json:"problems,omitempty"`
	Workflows []string `json:"workflows,omitempty"`
}

// NewValidateCommand creates the 'config validate' subcommand.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check the configuration without configuring workflows",
		Long: `Validate loads a production config and reports every problem found in it.

It does not look at DAG files, catalogs or scheduler commands; use
'orca run --check' for the full pre-launch check.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := shared.ResolveConfigPath()
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(cmd.OutOrStdout(), path, shared.GetJSON())
		},
	}
}

func runValidate(w io.Writer, path string, asJSON bool) error {
	if path == "" {
		return shared.NewConfigError("no production config found", nil)
	}

	result := validateFile(path)
	if asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	} else if result.Valid {
		fmt.Fprintln(w, shared.RenderOK(fmt.Sprintf("%s is valid (%d workflows)", path, len(result.Workflows))))
	} else {
		fmt.Fprintln(w, shared.RenderError(fmt.Sprintf("%s has %d problem(s):", path, len(result.Problems))))
		for _, p := range result.Problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}

	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitInvalidConfig, Message: "configuration is invalid"}
	}
	return nil
}

// validateFile parses without applying the environment, so the file itself
// is what gets judged.
func validateFile(path string) ValidationResult {
	result := ValidationResult{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Problems = []string{err.Error()}
		return result
	}
	cfg, err := config.Parse(data)
	if err != nil {
		result.Problems = []string{err.Error()}
		return result
	}
	for _, wf := range cfg.Workflows {
		result.Workflows = append(result.Workflows, wf.Name)
	}

	if err := cfg.Validate(); err != nil {
		var multi *orcaerrors.MultiIssueConfigurationError
		if orcaerrors.As(err, &multi) {
			result.Problems = multi.Problems()
		} else {
			result.Problems = []string{err.Error()}
		}
		return result
	}
	result.Valid = true
	return result
}
