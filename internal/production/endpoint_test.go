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

package production

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
)

type stopRecorder struct {
	mu    sync.Mutex
	calls []lifecycle.Urgency
}

func (s *stopRecorder) stop(u lifecycle.Urgency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, u)
}

func (s *stopRecorder) urgencies() []lifecycle.Urgency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lifecycle.Urgency(nil), s.calls...)
}

func newTestEndpoint(rec *stopRecorder) *Endpoint {
	return NewEndpoint(EndpointConfig{
		Host:   "127.0.0.1",
		RunID:  "run-1",
		Stop:   rec.stop,
		Logger: orcalog.Discard(),
	})
}

func TestEndpoint_Responses(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantStop   []lifecycle.Urgency
		wantBody   *errorBody
	}{
		{
			name:       "accepted",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":"run-1","level":2}`,
			wantStatus: http.StatusNoContent,
			wantStop:   []lifecycle.Urgency{lifecycle.Checkpoint},
		},
		{
			name:       "level zero accepted",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":"run-1","level":0}`,
			wantStatus: http.StatusNoContent,
			wantStop:   []lifecycle.Urgency{lifecycle.FinishPendingData},
		},
		{
			name:       "other run",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":"run-2","level":3}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   &unprocessable,
		},
		{
			name:       "malformed json",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   &unprocessable,
		},
		{
			name:       "missing level",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":"run-1"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   &unprocessable,
		},
		{
			name:       "unknown level",
			method:     http.MethodDelete,
			path:       ProductionPath,
			body:       `{"runid":"run-1","level":7}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   &unprocessable,
		},
		{
			name:       "wrong method",
			method:     http.MethodPost,
			path:       ProductionPath,
			body:       `{"runid":"run-1","level":3}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   &unsupported,
		},
		{
			name:       "wrong path",
			method:     http.MethodDelete,
			path:       "/api/v1/workflows",
			body:       `{"runid":"run-1","level":3}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   &unsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &stopRecorder{}
			ep := newTestEndpoint(rec)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			ep.Handler().ServeHTTP(w, req)
			ep.WaitStops()

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStop, rec.urgencies())
			if tt.wantBody != nil {
				var got errorBody
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, *tt.wantBody, got)
			} else {
				assert.Empty(t, w.Body.String())
			}
		})
	}
}

func TestEndpoint_OversizedBodyRejected(t *testing.T) {
	rec := &stopRecorder{}
	ep := newTestEndpoint(rec)

	body := `{"runid":"run-1","level":3,"pad":"` + strings.Repeat("x", maxStopRequestBytes) + `"}`
	w := httptest.NewRecorder()
	ep.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, ProductionPath, strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, rec.urgencies())
}

func TestEndpoint_ServesOverTCP(t *testing.T) {
	rec := &stopRecorder{}
	ep := newTestEndpoint(rec)
	require.NoError(t, ep.Start())
	defer ep.Shutdown(context.Background())

	assert.NotZero(t, ep.Port())
	assert.True(t, strings.HasPrefix(ep.Addr(), "127.0.0.1:"))

	req, err := http.NewRequest(http.MethodDelete, "http://"+ep.Addr()+ProductionPath,
		bytes.NewBufferString(`{"runid":"run-1","level":3}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	ep.WaitStops()
	assert.Equal(t, []lifecycle.Urgency{lifecycle.Now}, rec.urgencies())
}

func TestEndpoint_ShutsDownWhenProductionEnds(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	ep := NewEndpoint(EndpointConfig{
		Host:         "127.0.0.1",
		RunID:        "run-1",
		Running:      running.Load,
		PollInterval: 5 * time.Millisecond,
		Logger:       orcalog.Discard(),
	})
	require.NoError(t, ep.Start())

	select {
	case <-ep.Done():
		t.Fatal("endpoint closed while the production was running")
	case <-time.After(30 * time.Millisecond):
	}

	running.Store(false)
	select {
	case <-ep.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("endpoint still serving after the production ended")
	}
}

func TestEndpoint_ShutdownBeforeStart(t *testing.T) {
	ep := newTestEndpoint(&stopRecorder{})
	require.NoError(t, ep.Shutdown(context.Background()))
	<-ep.Done()
	assert.Empty(t, ep.Addr())
	assert.Zero(t, ep.Port())
}

func TestEndpointFile_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/endpoint"
	require.NoError(t, os.WriteFile(path, []byte(FormatEndpointFile("127.0.0.1:4000", "run-9")), 0o600))

	addr, runID, err := ReadEndpointFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", addr)
	assert.Equal(t, "run-9", runID)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	_, _, err = ReadEndpointFile(path)
	assert.Error(t, err)
}
