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

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/orca/internal/lifecycle"
)

// ProductionPath is the control endpoint route.
const ProductionPath = "/api/v1/production"

// Client talks to one control endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) error {
		c.httpClient = &http.Client{Transport: transport, Timeout: defaultTimeout}
		return nil
	}
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %v", d)
		}
		if c.httpClient == nil {
			c.httpClient = &http.Client{Transport: NewTransport()}
		}
		c.httpClient.Timeout = d
		return nil
	}
}

const defaultTimeout = 30 * time.Second

// New creates a client for addr, given as host:port or as a full http URL.
func New(addr string, opts ...Option) (*Client, error) {
	base, err := baseURL(addr)
	if err != nil {
		return nil, err
	}
	c := &Client{baseURL: base}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: NewTransport(), Timeout: defaultTimeout}
	}
	return c, nil
}

// NewHostPort is New for a separate host and port.
func NewHostPort(host string, port int, opts ...Option) (*Client, error) {
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return New(net.JoinHostPort(host, strconv.Itoa(port)), opts...)
}

func baseURL(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("control endpoint address is required")
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/"), nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return "", fmt.Errorf("invalid control endpoint address %q: %w", addr, err)
	}
	return "http://" + addr, nil
}

// BaseURL returns the endpoint's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// StatusError is returned when the endpoint answers with anything but 204.
type StatusError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Status != "" || e.Message != "" {
		return fmt.Sprintf("control endpoint returned %d: %s: %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("control endpoint returned %d", e.StatusCode)
}

type stopRequest struct {
	RunID string `json:"runid"`
	Level int    `json:"level"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Stop asks the production identified by runID to shut down at urgency.
func (c *Client) Stop(ctx context.Context, runID string, urgency lifecycle.Urgency) error {
	if !urgency.Valid() {
		return fmt.Errorf("invalid urgency level %d", int(urgency))
	}
	data, err := json.Marshal(stopRequest{RunID: runID, Level: int(urgency)})
	if err != nil {
		return fmt.Errorf("failed to marshal stop request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+ProductionPath, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var decoded errorResponse
	if json.Unmarshal(body, &decoded) == nil {
		statusErr.Status = decoded.Status
		statusErr.Message = decoded.Message
	} else {
		statusErr.Message = strings.TrimSpace(string(body))
	}
	return statusErr
}
