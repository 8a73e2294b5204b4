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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/metrics"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// ProductionPath is the only route the control endpoint serves.
const ProductionPath = "/api/v1/production"

const maxStopRequestBytes = 4096

// errorBody is the JSON body of every error response.
type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

var (
	unprocessable = errorBody{Status: "Unprocessable entity", Message: "Error in syntax of message"}
	unsupported   = errorBody{Status: "Bad Request", Message: "Request is unsupported"}
)

// EndpointConfig configures an Endpoint.
type EndpointConfig struct {
	Host string
	// Port 0 binds an ephemeral port.
	Port  int
	RunID string

	// Stop is invoked in its own goroutine for every accepted request.
	Stop func(lifecycle.Urgency)

	// Running is polled every PollInterval; once it reports false the
	// endpoint shuts itself down. Nil keeps serving until Shutdown.
	Running      func() bool
	PollInterval time.Duration

	Logger *slog.Logger
}

// Endpoint serves remote stop requests for one production run.
type Endpoint struct {
	cfg    EndpointConfig
	logger *slog.Logger
	router chi.Router
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
	stops    sync.WaitGroup
	closing  sync.Once
}

// NewEndpoint builds the endpoint and its routes. Start begins listening.
func NewEndpoint(cfg EndpointConfig) *Endpoint {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Stop == nil {
		cfg.Stop = func(lifecycle.Urgency) {}
	}
	e := &Endpoint{
		cfg:    cfg,
		logger: orcalog.WithRunContext(orcalog.WithComponent(cfg.Logger, "control-endpoint"), cfg.RunID, ""),
		done:   make(chan struct{}),
	}
	e.router = e.setupRouter()
	e.server = &http.Server{
		Handler:           e.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return e
}

func (e *Endpoint) setupRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(orcalog.HTTPMiddleware(e.logger))
	r.Use(middleware.Recoverer)

	r.Delete(ProductionPath, e.handleStop)
	r.NotFound(e.handleUnsupported)
	r.MethodNotAllowed(e.handleUnsupported)
	return r
}

// Handler exposes the router, mainly for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.router
}

// Start binds the listener and serves in the background.
func (e *Endpoint) Start() error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return orcaerrors.Wrapf(err, "listening on %s", addr)
	}

	e.mu.Lock()
	e.listener = ln
	e.mu.Unlock()

	e.logger.Info("control endpoint listening", slog.String("addr", ln.Addr().String()))

	go func() {
		err := e.server.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("control endpoint stopped", orcalog.Error(err))
		}
		e.closing.Do(func() { close(e.done) })
	}()
	if e.cfg.Running != nil {
		go e.watch()
	}
	return nil
}

// watch shuts the server down once the production stops running.
func (e *Endpoint) watch() {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			if e.cfg.Running() {
				continue
			}
			e.logger.Debug("production no longer running, closing endpoint")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = e.Shutdown(ctx)
			cancel()
			return
		}
	}
}

// Addr returns the bound address, or "" before Start.
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

// Port returns the bound port, or 0 before Start.
func (e *Endpoint) Port() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener == nil {
		return 0
	}
	if tcp, ok := e.listener.Addr().(*net.TCPAddr); ok {
		return tcp.Port
	}
	return 0
}

// Done is closed when the server has stopped serving.
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}

// Shutdown stops accepting requests and waits for in-flight ones.
// Stops already handed off keep running.
func (e *Endpoint) Shutdown(ctx context.Context) error {
	err := e.server.Shutdown(ctx)
	e.mu.Lock()
	started := e.listener != nil
	e.mu.Unlock()
	if !started {
		e.closing.Do(func() { close(e.done) })
	}
	return err
}

// WaitStops blocks until every stop started by the endpoint has returned.
func (e *Endpoint) WaitStops() {
	e.stops.Wait()
}

// stopRequest mirrors lifecycle.StopRequest with presence detection.
type stopRequest struct {
	RunID *string `json:"runid"`
	Level *int    `json:"level"`
}

func (e *Endpoint) decode(r *http.Request) (lifecycle.StopRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStopRequestBytes))
	if err != nil {
		return lifecycle.StopRequest{}, &orcaerrors.InvalidStopRequest{Reason: "unreadable body", Cause: err}
	}

	var req stopRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&req); err != nil {
		return lifecycle.StopRequest{}, &orcaerrors.InvalidStopRequest{Reason: "malformed JSON", Cause: err}
	}
	if req.RunID == nil || req.Level == nil {
		return lifecycle.StopRequest{}, &orcaerrors.InvalidStopRequest{Reason: "runid and level are required"}
	}

	out := lifecycle.StopRequest{RunID: *req.RunID, Level: *req.Level}
	if !out.Urgency().Valid() {
		return out, &orcaerrors.InvalidStopRequest{RunID: out.RunID, Reason: "level " + strconv.Itoa(out.Level) + " is not a known urgency"}
	}
	if out.RunID != e.cfg.RunID {
		return out, &orcaerrors.InvalidStopRequest{RunID: out.RunID, Reason: "run id does not match"}
	}
	return out, nil
}

func (e *Endpoint) handleStop(w http.ResponseWriter, r *http.Request) {
	req, err := e.decode(r)
	if err != nil {
		metrics.RecordStopRequest(metrics.ResultRejected)
		e.logger.Warn("rejected stop request", orcalog.Error(err))
		writeError(w, http.StatusUnprocessableEntity, unprocessable)
		return
	}

	metrics.RecordStopRequest(metrics.ResultAccepted)
	urgency := req.Urgency()
	e.logger.Info("stop requested", slog.String(orcalog.UrgencyKey, urgency.String()))
	w.WriteHeader(http.StatusNoContent)

	e.stops.Add(1)
	go func() {
		defer e.stops.Done()
		e.cfg.Stop(urgency)
	}()
}

func (e *Endpoint) handleUnsupported(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusBadRequest, unsupported)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// FormatEndpointFile renders the endpoint file: the bound address on the
// first line and the run id on the second.
func FormatEndpointFile(addr, runID string) string {
	return addr + "\n" + runID + "\n"
}

// ReadEndpointFile parses a file written by FormatEndpointFile.
func ReadEndpointFile(path string) (addr, runID string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read endpoint file: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	addr = strings.TrimSpace(lines[0])
	if addr == "" {
		return "", "", fmt.Errorf("endpoint file %s is empty", path)
	}
	if len(lines) > 1 {
		runID = strings.TrimSpace(lines[1])
	}
	return addr, runID, nil
}
