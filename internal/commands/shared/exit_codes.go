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

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Exit codes for orca commands
const (
	ExitSuccess       = 0
	ExitFailed        = 1
	ExitInvalidConfig = 2
	ExitStopRejected  = 3
	ExitTimeout       = 4
	ExitInterrupted   = 130
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for production run failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// NewConfigError creates an error for configuration problems
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidConfig, Message: msg, Cause: cause}
}

// NewStopRejectedError creates an error for a stop request the endpoint refused
func NewStopRejectedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitStopRejected, Message: msg, Cause: cause}
}

// NewTimeoutError creates an error for operations that ran out of time
func NewTimeoutError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitTimeout, Message: msg, Cause: cause}
}

// NewInterruptedError creates an error for input the operator abandoned
func NewInterruptedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInterrupted, Message: msg, Cause: cause}
}

// ExitCode returns the code err should exit with.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailed
}

// PrintError writes err to w, expanding configuration problem lists.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(w, RenderError("Error: "+err.Error()))

	var multi *orcaerrors.MultiIssueConfigurationError
	if errors.As(err, &multi) && len(multi.Problems()) > 1 {
		for _, p := range multi.Problems() {
			fmt.Fprintf(w, "  - %s\n", p)
		}
	}
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCode(err))
}
