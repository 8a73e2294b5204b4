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

package scheduler

import (
	"context"
	"strings"
	"sync"
)

// scriptedResponse is one canned reply for a command line.
type scriptedResponse struct {
	lines []string
	err   error
}

// fakeRunner replays queued responses per command line and records calls.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string][]scriptedResponse
	calls     []Command
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string][]scriptedResponse)}
}

// on queues a response. The last queued response for a command repeats.
func (f *fakeRunner) on(cmdLine string, lines []string, err error) *fakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[cmdLine] = append(f.responses[cmdLine], scriptedResponse{lines: lines, err: err})
	return f
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)

	queue := f.responses[cmd.String()]
	if len(queue) == 0 {
		return nil, nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[cmd.String()] = queue[1:]
	}
	return resp.lines, resp.err
}

func (f *fakeRunner) callLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.String()
	}
	return out
}

func lines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
