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

// Package config implements the commands that inspect a production config.
package config

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/config"
)

const masked = "********"

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the production configuration",
		Long: `Inspect an orca production configuration.

Subcommands:
  show     - Display the effective configuration
  path     - Show which config file would be loaded
  validate - Check the configuration without configuring workflows`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())
	cmd.AddCommand(NewValidateCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd, args)
	}

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Long: `Display the configuration after defaults and ORCA_* environment overrides.

Telemetry headers are masked. Use --json for machine-readable output.`,
		RunE: runConfigShow,
	}
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path of the production config file orca would load.`,
		RunE:  runConfigPath,
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgPath := shared.ResolveConfigPath()
	if cfgPath == "" {
		return shared.NewConfigError("no production config found", fmt.Errorf("pass --config, set ORCA_CONFIG or create %s", config.ConfigFileName))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return shared.NewConfigError("failed to load config", err)
	}

	return showConfig(cmd.OutOrStdout(), cfgPath, maskSensitiveConfig(cfg), shared.GetJSON())
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	cfgPath := shared.ResolveConfigPath()
	if cfgPath == "" {
		return shared.NewConfigError("no production config found", nil)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfgPath)
	return nil
}

// maskSensitiveConfig returns a copy with telemetry header values hidden.
func maskSensitiveConfig(cfg *config.Config) *config.Config {
	out := *cfg
	if len(cfg.Telemetry.Headers) > 0 {
		out.Telemetry.Headers = make(map[string]string, len(cfg.Telemetry.Headers))
		for k := range cfg.Telemetry.Headers {
			out.Telemetry.Headers[k] = masked
		}
	}
	return &out
}

func showConfig(w io.Writer, path string, cfg *config.Config, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprintf(w, "# %s\n", path)
	fmt.Fprint(w, string(data))
	return nil
}
