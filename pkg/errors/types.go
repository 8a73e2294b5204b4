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

package errors

import (
	"fmt"
	"strings"
	"time"
)

// SubmissionParseError is returned when a scheduler accepted a submission
// command but its acknowledgment did not contain a recognizable job id.
// A launch that fails this way is not retried.
type SubmissionParseError struct {
	// Command is the submission command line that was run.
	Command string

	// Output holds the lines the command printed.
	Output []string
}

// Error implements the error interface.
func (e *SubmissionParseError) Error() string {
	if len(e.Output) == 0 {
		return fmt.Sprintf("no job id found in output of %q: command printed nothing", e.Command)
	}
	return fmt.Sprintf("no job id found in output of %q (%d lines)", e.Command, len(e.Output))
}

// ErrorType implements ErrorClassifier.
func (e *SubmissionParseError) ErrorType() string { return "submission_parse" }

// IsRetryable implements ErrorClassifier.
func (e *SubmissionParseError) IsRetryable() bool { return false }

// AdapterUnavailableError means the scheduler command itself could not be run
// or exited non-zero. It is distinct from a query that succeeded and simply
// did not list the job.
type AdapterUnavailableError struct {
	// Command is the scheduler command that failed (e.g., "condor_q").
	Command string

	// ExitCode is the process exit status, or -1 if it never started.
	ExitCode int

	// Stderr is whatever the command wrote to standard error, trimmed.
	Stderr string

	// Cause is the underlying exec error
	Cause error
}

// Error implements the error interface.
func (e *AdapterUnavailableError) Error() string {
	msg := fmt.Sprintf("scheduler command %s unavailable", e.Command)
	if e.ExitCode >= 0 {
		msg = fmt.Sprintf("%s (exit %d)", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	} else if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AdapterUnavailableError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *AdapterUnavailableError) ErrorType() string { return "adapter_unavailable" }

// IsRetryable implements ErrorClassifier.
func (e *AdapterUnavailableError) IsRetryable() bool { return true }

// ConfigError represents a single configuration problem.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "workflows[0].plugin")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "configuration" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }

const (
	unspecifiedProblemsMsg = "Unspecified configuration problems encountered"
	multipleProblemsMsg    = "Multiple configuration problems encountered"
)

// MultiIssueConfigurationError collects every problem found while checking
// a configuration so they can be reported together.
//
// The message depends on how many problems were recorded: none yields a
// generic "unspecified" message, exactly one yields that problem verbatim,
// and more than one yields Message (or a generic summary when Message is
// empty).
type MultiIssueConfigurationError struct {
	// Message summarizes the set of problems.
	Message string

	problems []string
}

// NewMultiIssueConfigurationError creates an error with an optional summary
// message and optional first problem.
func NewMultiIssueConfigurationError(message, problem string) *MultiIssueConfigurationError {
	e := &MultiIssueConfigurationError{Message: message}
	if problem != "" {
		e.problems = append(e.problems, problem)
	}
	return e
}

// AddProblem records another problem.
func (e *MultiIssueConfigurationError) AddProblem(problem string) {
	e.problems = append(e.problems, problem)
}

// AddProblemf records another problem built from a format string.
func (e *MultiIssueConfigurationError) AddProblemf(format string, args ...interface{}) {
	e.AddProblem(fmt.Sprintf(format, args...))
}

// HasProblems reports whether at least one problem was recorded.
func (e *MultiIssueConfigurationError) HasProblems() bool {
	return len(e.problems) > 0
}

// Problems returns a copy of the recorded problems in insertion order.
func (e *MultiIssueConfigurationError) Problems() []string {
	out := make([]string, len(e.problems))
	copy(out, e.problems)
	return out
}

// Error implements the error interface.
func (e *MultiIssueConfigurationError) Error() string {
	switch len(e.problems) {
	case 0:
		return unspecifiedProblemsMsg
	case 1:
		return e.problems[0]
	default:
		if e.Message != "" {
			return e.Message
		}
		return multipleProblemsMsg
	}
}

// Detail renders the summary followed by every problem on its own line.
func (e *MultiIssueConfigurationError) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	if len(e.problems) > 1 {
		for _, p := range e.problems {
			b.WriteString("\n  - ")
			b.WriteString(p)
		}
	}
	return b.String()
}

// ErrorType implements ErrorClassifier.
func (e *MultiIssueConfigurationError) ErrorType() string { return "configuration" }

// IsRetryable implements ErrorClassifier.
func (e *MultiIssueConfigurationError) IsRetryable() bool { return false }

// InvalidStopRequest is returned by the control endpoint when a stop request
// is malformed or names a run the receiving manager does not own.
type InvalidStopRequest struct {
	// RunID is the run id carried by the request, if it could be decoded.
	RunID string

	// Reason explains why the request was rejected
	Reason string

	// Cause is the underlying decode error, if any
	Cause error
}

// Error implements the error interface.
func (e *InvalidStopRequest) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("invalid stop request for run %s: %s", e.RunID, e.Reason)
	}
	return fmt.Sprintf("invalid stop request: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *InvalidStopRequest) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "stop production")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *TimeoutError) ErrorType() string { return "timeout" }

// IsRetryable implements ErrorClassifier.
func (e *TimeoutError) IsRetryable() bool { return true }
