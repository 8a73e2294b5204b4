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

// Package config loads the production run description: the run-level
// settings plus the ordered list of workflows handed to the scheduler.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Plugin names accepted in workflows[].plugin.
const (
	PluginCondor  = "condor"
	PluginPegasus = "pegasus"
)

// Config is the root of an orca.yaml file.
type Config struct {
	Production ProductionConfig `yaml:"production"`
	Workflows  []WorkflowConfig `yaml:"workflows"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ProductionConfig holds run-level settings.
type ProductionConfig struct {
	// ShortName labels the production in logs and the state store.
	ShortName string `yaml:"short_name"`

	// RunID identifies the run. The CLI flag wins; a uuid is generated
	// when neither is set.
	RunID string `yaml:"run_id,omitempty"`

	// ConfigCheckCare sets how thoroughly the configuration is checked before
	// launch. Zero means the default care of 1; a negative value skips the
	// check entirely.
	ConfigCheckCare int `yaml:"config_check_care,omitempty"`

	// StopTimeout bounds how long stopProduction waits for every workflow.
	StopTimeout time.Duration `yaml:"stop_timeout,omitempty"`

	// StopPollInterval is how often stopProduction re-checks isRunning.
	StopPollInterval time.Duration `yaml:"stop_poll_interval,omitempty"`

	Control ControlConfig `yaml:"control"`

	// StateDB is a sqlite path for run-state records. Empty disables
	// persistence; ":memory:" keeps it in process.
	StateDB string `yaml:"state_db,omitempty"`

	// LockFile, when set, is held for the life of the production so a second
	// orca process cannot launch the same workflows.
	LockFile string `yaml:"lock_file,omitempty"`

	Logger LoggerConfig `yaml:"logger"`
}

// ControlConfig configures the stop endpoint.
type ControlConfig struct {
	Host string `yaml:"host,omitempty"`

	// Port 0 binds an ephemeral port.
	Port int `yaml:"port,omitempty"`

	// EndpointFile, when set, receives the bound host:port once listening.
	EndpointFile string `yaml:"endpoint_file,omitempty"`
}

// LoggerConfig describes the external per-run logger process.
type LoggerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command,omitempty"`
	Broker  string `yaml:"broker,omitempty"`
	DBHost  string `yaml:"db_host,omitempty"`
	DBPort  int    `yaml:"db_port,omitempty"`
	DBName  string `yaml:"db_name,omitempty"`

	// Grace bounds how long a monitor waits for loggers to report end of
	// life after the scheduler stopped listing the job.
	Grace time.Duration `yaml:"grace,omitempty"`
}

// Trace exporters accepted in telemetry.exporter.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
)

// TelemetryConfig configures tracing export and the metrics listener.
type TelemetryConfig struct {
	// Exporter selects where spans go. Default: none.
	Exporter string `yaml:"exporter,omitempty"`

	// Endpoint is the OTLP collector address.
	Endpoint string `yaml:"endpoint,omitempty"`

	Insecure bool              `yaml:"insecure,omitempty"`
	Headers  map[string]string `yaml:"headers,omitempty"`

	// SampleRate is the fraction of traces recorded. Default: 1.
	SampleRate float64 `yaml:"sample_rate,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics on /metrics.
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// WorkflowConfig describes one workflow.
type WorkflowConfig struct {
	Name   string `yaml:"name"`
	Plugin string `yaml:"plugin"`

	// LocalScratch is the directory submission commands run in.
	LocalScratch string `yaml:"local_scratch"`

	// StatusCheckInterval is the monitor's polling period.
	StatusCheckInterval time.Duration `yaml:"status_check_interval,omitempty"`

	// QueryRate caps scheduler queue queries per second. Zero is unlimited.
	QueryRate float64 `yaml:"query_rate,omitempty"`

	// FailureWarnThreshold is how many consecutive scheduler failures the
	// monitor tolerates between escalation warnings.
	FailureWarnThreshold int `yaml:"failure_warn_threshold,omitempty"`

	Condor  *CondorConfig  `yaml:"condor,omitempty"`
	Pegasus *PegasusConfig `yaml:"pegasus,omitempty"`
}

// CondorConfig holds HTCondor DAGMan submission inputs.
type CondorConfig struct {
	DAGFile string `yaml:"dag_file"`
}

// PegasusConfig holds pegasus-plan inputs.
type PegasusConfig struct {
	DAXFile               string `yaml:"dax_file"`
	SiteCatalog           string `yaml:"site_catalog"`
	TransformationCatalog string `yaml:"transformation_catalog"`
	Site                  string `yaml:"site,omitempty"`
}

// Default returns a configuration with every defaultable field populated.
// It has no workflows, so it does not validate on its own.
func Default() *Config {
	return &Config{
		Production: ProductionConfig{
			StopTimeout:      1800 * time.Second,
			StopPollInterval: 200 * time.Millisecond,
			Control: ControlConfig{
				Host: "0.0.0.0",
			},
			Logger: LoggerConfig{
				Command: "Logger.py",
				Broker:  "localhost",
				Grace:   30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Exporter:   ExporterNone,
			SampleRate: 1,
		},
	}
}

// Default per-workflow values.
const (
	DefaultStatusCheckInterval  = 5 * time.Second
	DefaultFailureWarnThreshold = 10
	DefaultPegasusSite          = "lsstvc"
)

// Load reads path, fills defaults, applies ORCA_* environment overrides and
// validates the result.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &orcaerrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML bytes, then applies defaults. It neither reads the
// environment nor validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &orcaerrors.ConfigError{Key: "config_file", Reason: "failed to parse YAML", Cause: err}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// applyDefaults fills zero values so minimal files work.
func (c *Config) applyDefaults() {
	defaults := Default()
	p := &c.Production

	if p.StopTimeout == 0 {
		p.StopTimeout = defaults.Production.StopTimeout
	}
	if p.StopPollInterval == 0 {
		p.StopPollInterval = defaults.Production.StopPollInterval
	}
	if p.Control.Host == "" {
		p.Control.Host = defaults.Production.Control.Host
	}
	if p.Logger.Command == "" {
		p.Logger.Command = defaults.Production.Logger.Command
	}
	if p.Logger.Broker == "" {
		p.Logger.Broker = defaults.Production.Logger.Broker
	}
	if p.Logger.Grace == 0 {
		p.Logger.Grace = defaults.Production.Logger.Grace
	}

	t := &c.Telemetry
	t.Exporter = strings.ToLower(strings.TrimSpace(t.Exporter))
	if t.Exporter == "" {
		t.Exporter = defaults.Telemetry.Exporter
	}
	if t.SampleRate == 0 {
		t.SampleRate = defaults.Telemetry.SampleRate
	}

	for i := range c.Workflows {
		wf := &c.Workflows[i]
		wf.Plugin = strings.ToLower(strings.TrimSpace(wf.Plugin))
		if wf.StatusCheckInterval == 0 {
			wf.StatusCheckInterval = DefaultStatusCheckInterval
		}
		if wf.FailureWarnThreshold == 0 {
			wf.FailureWarnThreshold = DefaultFailureWarnThreshold
		}
		if wf.Pegasus != nil && wf.Pegasus.Site == "" {
			wf.Pegasus.Site = DefaultPegasusSite
		}
	}
}

// loadFromEnv overrides run-level settings from ORCA_* variables. Values that
// fail to parse are ignored.
func (c *Config) loadFromEnv() {
	p := &c.Production

	if val := os.Getenv("ORCA_RUN_ID"); val != "" {
		p.RunID = val
	}
	if val := os.Getenv("ORCA_STATE_DB"); val != "" {
		p.StateDB = val
	}
	if val := os.Getenv("ORCA_LOCK_FILE"); val != "" {
		p.LockFile = val
	}
	if val := os.Getenv("ORCA_CONTROL_HOST"); val != "" {
		p.Control.Host = val
	}
	if val := os.Getenv("ORCA_CONTROL_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			p.Control.Port = port
		}
	}
	if val := os.Getenv("ORCA_STOP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			p.StopTimeout = d
		}
	}
	if val := os.Getenv("ORCA_METRICS_ADDR"); val != "" {
		c.Telemetry.MetricsAddr = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" && c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = val
	}
}

// CheckCare resolves the configured care level: 1 unless overridden.
func (p ProductionConfig) CheckCare() int {
	if p.ConfigCheckCare != 0 {
		return p.ConfigCheckCare
	}
	return 1
}

// Workflow returns the named workflow configuration.
func (c *Config) Workflow(name string) (WorkflowConfig, bool) {
	for _, wf := range c.Workflows {
		if wf.Name == name {
			return wf, true
		}
	}
	return WorkflowConfig{}, false
}

// Validate checks the whole configuration and reports every problem at once
// as a *errors.MultiIssueConfigurationError.
func (c *Config) Validate() error {
	problems := orcaerrors.NewMultiIssueConfigurationError("configuration validation failed", "")
	p := c.Production

	if strings.TrimSpace(p.ShortName) == "" {
		problems.AddProblem("production.short_name is required")
	}
	if p.StopTimeout <= 0 {
		problems.AddProblemf("production.stop_timeout must be positive, got %v", p.StopTimeout)
	}
	if p.StopPollInterval <= 0 {
		problems.AddProblemf("production.stop_poll_interval must be positive, got %v", p.StopPollInterval)
	}
	if p.Control.Port < 0 || p.Control.Port > 65535 {
		problems.AddProblemf("production.control.port must be between 0 and 65535, got %d", p.Control.Port)
	}
	if p.Logger.Enabled && strings.TrimSpace(p.Logger.Command) == "" {
		problems.AddProblem("production.logger.command is required when the logger is enabled")
	}
	if p.Logger.DBPort < 0 {
		problems.AddProblemf("production.logger.db_port must not be negative, got %d", p.Logger.DBPort)
	}

	switch c.Telemetry.Exporter {
	case "", ExporterNone, ExporterStdout:
	case ExporterOTLPHTTP, ExporterOTLPGRPC:
		if c.Telemetry.Endpoint == "" {
			problems.AddProblemf("telemetry.endpoint is required for the %s exporter", c.Telemetry.Exporter)
		}
	default:
		problems.AddProblemf("telemetry.exporter %q is not one of none, stdout, otlp-http, otlp-grpc", c.Telemetry.Exporter)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		problems.AddProblemf("telemetry.sample_rate must be between 0 and 1, got %v", c.Telemetry.SampleRate)
	}

	if len(c.Workflows) == 0 {
		problems.AddProblem("at least one workflow is required")
	}

	seen := make(map[string]bool, len(c.Workflows))
	for i, wf := range c.Workflows {
		key := fmt.Sprintf("workflows[%d]", i)
		if wf.Name == "" {
			problems.AddProblemf("%s.name is required", key)
		} else {
			if seen[wf.Name] {
				problems.AddProblemf("%s.name %q is not unique", key, wf.Name)
			}
			seen[wf.Name] = true
			key = fmt.Sprintf("workflow %q", wf.Name)
		}
		if wf.LocalScratch == "" {
			problems.AddProblemf("%s: local_scratch is required", key)
		}
		if wf.StatusCheckInterval <= 0 {
			problems.AddProblemf("%s: status_check_interval must be positive, got %v", key, wf.StatusCheckInterval)
		}
		if wf.QueryRate < 0 {
			problems.AddProblemf("%s: query_rate must not be negative, got %v", key, wf.QueryRate)
		}

		switch wf.Plugin {
		case PluginCondor:
			if wf.Condor == nil || wf.Condor.DAGFile == "" {
				problems.AddProblemf("%s: condor.dag_file is required for the condor plugin", key)
			}
		case PluginPegasus:
			if wf.Pegasus == nil || wf.Pegasus.DAXFile == "" {
				problems.AddProblemf("%s: pegasus.dax_file is required for the pegasus plugin", key)
			} else {
				if wf.Pegasus.SiteCatalog == "" {
					problems.AddProblemf("%s: pegasus.site_catalog is required", key)
				}
				if wf.Pegasus.TransformationCatalog == "" {
					problems.AddProblemf("%s: pegasus.transformation_catalog is required", key)
				}
			}
		case "":
			problems.AddProblemf("%s: plugin is required", key)
		default:
			problems.AddProblemf("%s: unknown plugin %q (want %s or %s)", key, wf.Plugin, PluginCondor, PluginPegasus)
		}
	}

	if problems.HasProblems() {
		return problems
	}
	return nil
}
