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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	orcaerrors "github.com/tombee/orca/pkg/errors"
)

const validYAML = `
production:
  short_name: demo
  config_check_care: 2
  control:
    port: 0
    endpoint_file: /tmp/orca.endpoint
workflows:
  - name: wf1
    plugin: Condor
    local_scratch: /tmp/wf1
    condor:
      dag_file: wf1.dag
  - name: wf2
    plugin: pegasus
    local_scratch: /tmp/wf2
    status_check_interval: 2s
    query_rate: 1.5
    pegasus:
      dax_file: wf2.dax
      site_catalog: sites.xml
      transformation_catalog: tc.txt
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orca.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ORCA_RUN_ID", "ORCA_STATE_DB", "ORCA_LOCK_FILE", "ORCA_CONTROL_HOST", "ORCA_CONTROL_PORT", "ORCA_STOP_TIMEOUT", "ORCA_METRICS_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Production.StopTimeout != 1800*time.Second {
		t.Errorf("expected stop timeout 1800s, got %v", cfg.Production.StopTimeout)
	}
	if cfg.Production.StopPollInterval != 200*time.Millisecond {
		t.Errorf("expected stop poll interval 200ms, got %v", cfg.Production.StopPollInterval)
	}
	if cfg.Production.Control.Host != "0.0.0.0" || cfg.Production.Control.Port != 0 {
		t.Errorf("expected ephemeral bind on 0.0.0.0, got %s:%d", cfg.Production.Control.Host, cfg.Production.Control.Port)
	}
	if cfg.Production.CheckCare() != 1 {
		t.Errorf("expected default check care 1, got %d", cfg.Production.CheckCare())
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Workflows) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(cfg.Workflows))
	}
	wf1 := cfg.Workflows[0]
	if wf1.Plugin != PluginCondor {
		t.Errorf("plugin should be normalized, got %q", wf1.Plugin)
	}
	if wf1.StatusCheckInterval != DefaultStatusCheckInterval {
		t.Errorf("expected default interval, got %v", wf1.StatusCheckInterval)
	}
	if wf1.FailureWarnThreshold != DefaultFailureWarnThreshold {
		t.Errorf("expected default failure threshold, got %d", wf1.FailureWarnThreshold)
	}

	wf2, ok := cfg.Workflow("wf2")
	if !ok {
		t.Fatal("wf2 not found")
	}
	if wf2.StatusCheckInterval != 2*time.Second {
		t.Errorf("expected 2s interval, got %v", wf2.StatusCheckInterval)
	}
	if wf2.Pegasus.Site != DefaultPegasusSite {
		t.Errorf("expected default site, got %q", wf2.Pegasus.Site)
	}
	if cfg.Production.CheckCare() != 2 {
		t.Errorf("expected check care 2, got %d", cfg.Production.CheckCare())
	}
	if cfg.Production.Control.EndpointFile != "/tmp/orca.endpoint" {
		t.Errorf("endpoint file = %q", cfg.Production.Control.EndpointFile)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ORCA_RUN_ID", "run-from-env")
	t.Setenv("ORCA_CONTROL_PORT", "9090")
	t.Setenv("ORCA_STOP_TIMEOUT", "45s")
	t.Setenv("ORCA_STATE_DB", ":memory:")
	t.Setenv("ORCA_LOCK_FILE", "/var/run/orca/demo.lock")

	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Production.RunID != "run-from-env" {
		t.Errorf("run id = %q", cfg.Production.RunID)
	}
	if cfg.Production.Control.Port != 9090 {
		t.Errorf("port = %d", cfg.Production.Control.Port)
	}
	if cfg.Production.StopTimeout != 45*time.Second {
		t.Errorf("stop timeout = %v", cfg.Production.StopTimeout)
	}
	if cfg.Production.StateDB != ":memory:" {
		t.Errorf("state db = %q", cfg.Production.StateDB)
	}
	if cfg.Production.LockFile != "/var/run/orca/demo.lock" {
		t.Errorf("lock file = %q", cfg.Production.LockFile)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var cfgErr *orcaerrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Key != "config_file" {
		t.Errorf("key = %q", cfgErr.Key)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("expected the read error in the chain")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "production: [unclosed"))
	var cfgErr *orcaerrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg, err := Parse([]byte(`
production:
  control:
    port: 70000
  logger:
    enabled: true
workflows:
  - name: a
    plugin: slurm
  - name: a
    plugin: pegasus
    local_scratch: /tmp
    pegasus:
      dax_file: a.dax
  - plugin: condor
    local_scratch: /tmp
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	err = cfg.Validate()
	var multi *orcaerrors.MultiIssueConfigurationError
	if !errors.As(err, &multi) {
		t.Fatalf("expected MultiIssueConfigurationError, got %T %v", err, err)
	}
	if multi.Error() != "configuration validation failed" {
		t.Errorf("Error() = %q", multi.Error())
	}

	wantFragments := []string{
		"short_name is required",
		"control.port must be between",
		`workflow "a": local_scratch is required`,
		`unknown plugin "slurm"`,
		`workflows[1].name "a" is not unique`,
		"pegasus.site_catalog is required",
		"pegasus.transformation_catalog is required",
		"workflows[2].name is required",
		"condor.dag_file is required",
	}
	joined := strings.Join(multi.Problems(), "\n")
	for _, frag := range wantFragments {
		if !strings.Contains(joined, frag) {
			t.Errorf("expected problem containing %q in:\n%s", frag, joined)
		}
	}
}

func TestValidate_NoWorkflows(t *testing.T) {
	cfg := Default()
	cfg.Production.ShortName = "demo"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "at least one workflow is required" {
		t.Errorf("single problem should be reported verbatim, got %q", err.Error())
	}
}

func TestCheckCare(t *testing.T) {
	tests := []struct {
		configured int
		want       int
	}{
		{0, 1},
		{3, 3},
		{-1, -1},
	}
	for _, tt := range tests {
		p := ProductionConfig{ConfigCheckCare: tt.configured}
		if got := p.CheckCare(); got != tt.want {
			t.Errorf("CheckCare(%d) = %d, want %d", tt.configured, got, tt.want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("explicit.yaml"); got != "explicit.yaml" {
		t.Errorf("ResolvePath(explicit) = %q", got)
	}

	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Chdir(t.TempDir())

	if got := ResolvePath(""); got != "" {
		t.Errorf("expected empty path when nothing exists, got %q", got)
	}

	dir := filepath.Join(xdg, "orca")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	candidate := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(candidate, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(""); got != candidate {
		t.Errorf("ResolvePath() = %q, want %q", got, candidate)
	}
}

func TestValidate_Telemetry(t *testing.T) {
	tests := []struct {
		name    string
		tel     TelemetryConfig
		wantErr string
	}{
		{name: "disabled", tel: TelemetryConfig{Exporter: ExporterNone, SampleRate: 1}},
		{name: "stdout", tel: TelemetryConfig{Exporter: ExporterStdout, SampleRate: 0.5}},
		{name: "otlp needs endpoint", tel: TelemetryConfig{Exporter: ExporterOTLPGRPC, SampleRate: 1}, wantErr: "telemetry.endpoint is required"},
		{name: "otlp http", tel: TelemetryConfig{Exporter: ExporterOTLPHTTP, Endpoint: "collector:4318", SampleRate: 1}},
		{name: "unknown exporter", tel: TelemetryConfig{Exporter: "jaeger", SampleRate: 1}, wantErr: `telemetry.exporter "jaeger"`},
		{name: "bad rate", tel: TelemetryConfig{Exporter: ExporterNone, SampleRate: 2}, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			cfg.Telemetry = tt.tel

			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_TelemetryDefaults(t *testing.T) {
	cfg, err := Parse([]byte(validYAML + "telemetry:\n  exporter: OTLP-HTTP\n  endpoint: localhost:4318\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Telemetry.Exporter != ExporterOTLPHTTP {
		t.Errorf("exporter not normalised: %q", cfg.Telemetry.Exporter)
	}
	if cfg.Telemetry.SampleRate != 1 {
		t.Errorf("expected default sample rate 1, got %v", cfg.Telemetry.SampleRate)
	}
}
