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
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// SurveyPrompter asks on the controlling terminal through survey.
type SurveyPrompter struct {
	interactive bool
	opts        []survey.AskOpt
	describe    func(option string) string
}

// NewSurveyPrompter returns a prompter. Extra AskOpts apply to every
// question; tests pass survey.WithStdio.
func NewSurveyPrompter(interactive bool, opts ...survey.AskOpt) *SurveyPrompter {
	return &SurveyPrompter{interactive: interactive, opts: opts}
}

// WithDescriptions sets the help line shown under each PromptEnum option.
func (sp *SurveyPrompter) WithDescriptions(describe func(option string) string) *SurveyPrompter {
	sp.describe = describe
	return sp
}

func (sp *SurveyPrompter) ask(ctx context.Context, p survey.Prompt, out interface{}, extra ...survey.AskOpt) error {
	if !sp.interactive {
		return ErrNonInteractive
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	err := survey.AskOne(p, out, append(extra, sp.opts...)...)
	if errors.Is(err, terminal.InterruptErr) {
		return ErrCancelled
	}
	return err
}

// PromptString reads a non-empty line.
func (sp *SurveyPrompter) PromptString(ctx context.Context, name, desc string, def string) (string, error) {
	var result string
	err := sp.ask(ctx, &survey.Input{
		Message: fmt.Sprintf("%s: %s", name, desc),
		Default: def,
	}, &result, survey.WithValidator(survey.Required))
	return result, err
}

// PromptBool asks a yes/no question.
func (sp *SurveyPrompter) PromptBool(ctx context.Context, name, desc string, def bool) (bool, error) {
	var result bool
	err := sp.ask(ctx, &survey.Confirm{
		Message: fmt.Sprintf("%s: %s", name, desc),
		Default: def,
	}, &result)
	return result, err
}

// PromptEnum offers options as a single-choice list.
func (sp *SurveyPrompter) PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error) {
	if len(options) == 0 {
		return "", fmt.Errorf("no options provided for %s", name)
	}
	sel := &survey.Select{
		Message: fmt.Sprintf("%s: %s", name, desc),
		Options: options,
		Default: def,
	}
	if sp.describe != nil {
		sel.Description = func(value string, _ int) string { return sp.describe(value) }
	}

	var result string
	err := sp.ask(ctx, sel, &result)
	return result, err
}

// IsInteractive reports whether prompts can be shown.
func (sp *SurveyPrompter) IsInteractive() bool {
	return sp.interactive
}
