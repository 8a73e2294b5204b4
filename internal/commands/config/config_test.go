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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/config"
)

const validYAML = `production:
  short_name: nightly
workflows:
  - name: calexp
    plugin: condor
    local_scratch: /scratch
    condor:
      dag_file: calexp.dag
telemetry:
  exporter: otlp-http
  endpoint: collector:4318
  headers:
    authorization: Bearer secret-token
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orca.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestShowConfig_MasksHeaders(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, showConfig(&buf, "orca.yaml", maskSensitiveConfig(cfg), false))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "# orca.yaml\n"))
	assert.Contains(t, out, "short_name: nightly")
	assert.Contains(t, out, masked)
	assert.NotContains(t, out, "secret-token")
	assert.Equal(t, "Bearer secret-token", cfg.Telemetry.Headers["authorization"], "original must be untouched")
}

func TestShowConfig_JSON(t *testing.T) {
	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, showConfig(&buf, "orca.yaml", cfg, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "Production")
}

func TestRunValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, runValidate(&buf, writeFile(t, validYAML), false))
		assert.Contains(t, buf.String(), "is valid (1 workflows)")
	})

	t.Run("problems listed", func(t *testing.T) {
		var buf bytes.Buffer
		err := runValidate(&buf, writeFile(t, "production:\n  short_name: \"\"\nworkflows: []\n"), false)
		require.Error(t, err)
		assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
		assert.Contains(t, buf.String(), "production.short_name is required")
		assert.Contains(t, buf.String(), "at least one workflow is required")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		err := runValidate(&buf, writeFile(t, "production: [unclosed"), true)
		require.Error(t, err)
		var result ValidationResult
		require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
		assert.False(t, result.Valid)
		assert.Len(t, result.Problems, 1)
	})

	t.Run("missing file", func(t *testing.T) {
		err := runValidate(&bytes.Buffer{}, filepath.Join(t.TempDir(), "none.yaml"), false)
		assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
	})
}
