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

// Package prompt collects the operator input the stop command needs when it
// was not given on the command line.
package prompt

import (
	"context"
	"errors"
)

var (
	// ErrNonInteractive is returned by prompters that cannot reach a terminal.
	ErrNonInteractive = errors.New("cannot prompt in non-interactive mode")

	// ErrCancelled is returned when the operator interrupts a prompt.
	ErrCancelled = errors.New("prompt cancelled")
)

// Prompter defines the interface for interactive input collection.
// Implementations include SurveyPrompter (production) and MockPrompter (testing).
type Prompter interface {
	// PromptString collects a string input from the user
	PromptString(ctx context.Context, name, desc string, def string) (string, error)

	// PromptBool collects a yes/no answer from the user
	PromptBool(ctx context.Context, name, desc string, def bool) (bool, error)

	// PromptEnum presents a list of options and collects the user's selection
	PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}
