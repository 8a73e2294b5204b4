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

package prompt

import (
	"context"
	"fmt"
)

// MockPrompter implements Prompter with scripted responses for testing.
type MockPrompter struct {
	responses    []interface{}
	currentIndex int
	interactive  bool
	callLog      []string
}

// NewMockPrompter creates a new mock prompter with pre-scripted responses.
func NewMockPrompter(interactive bool, responses ...interface{}) *MockPrompter {
	return &MockPrompter{
		responses:   responses,
		interactive: interactive,
	}
}

func (mp *MockPrompter) next(call string) (interface{}, bool, error) {
	mp.callLog = append(mp.callLog, call)
	if !mp.interactive {
		return nil, false, ErrNonInteractive
	}
	if mp.currentIndex >= len(mp.responses) {
		return nil, false, nil
	}
	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++
	if err, ok := resp.(error); ok {
		return nil, false, err
	}
	return resp, true, nil
}

// PromptString returns the next string response.
func (mp *MockPrompter) PromptString(ctx context.Context, name, desc string, def string) (string, error) {
	resp, ok, err := mp.next(fmt.Sprintf("PromptString(%s)", name))
	if err != nil || !ok {
		return def, err
	}
	if str, ok := resp.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("mock response is not a string")
}

// PromptBool returns the next boolean response.
func (mp *MockPrompter) PromptBool(ctx context.Context, name, desc string, def bool) (bool, error) {
	resp, ok, err := mp.next(fmt.Sprintf("PromptBool(%s)", name))
	if err != nil || !ok {
		return def, err
	}
	if b, ok := resp.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("mock response is not a boolean")
}

// PromptEnum returns the next enum response.
func (mp *MockPrompter) PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error) {
	resp, ok, err := mp.next(fmt.Sprintf("PromptEnum(%s)", name))
	if err != nil || !ok {
		return def, err
	}
	str, isStr := resp.(string)
	if !isStr {
		return "", fmt.Errorf("mock response is not a string")
	}
	for _, o := range options {
		if o == str {
			return str, nil
		}
	}
	return "", fmt.Errorf("mock response %q is not one of %v", str, options)
}

// IsInteractive returns the configured interactive flag.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// CallLog returns the prompts issued so far, in order.
func (mp *MockPrompter) CallLog() []string {
	return mp.callLog
}
