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

package errors_test

import (
	"errors"
	"strings"
	"testing"

	orcaerrors "github.com/tombee/orca/pkg/errors"
)

func TestWrap(t *testing.T) {
	t.Run("wraps error with context", func(t *testing.T) {
		original := errors.New("original error")
		wrapped := orcaerrors.Wrap(original, "additional context")

		if wrapped == nil {
			t.Fatal("Wrap should not return nil for non-nil error")
		}
		msg := wrapped.Error()
		if !strings.Contains(msg, "additional context") || !strings.Contains(msg, "original error") {
			t.Errorf("unexpected wrapped message: %s", msg)
		}
		if !errors.Is(wrapped, original) {
			t.Error("wrapped error should match original with errors.Is")
		}
	})

	t.Run("returns nil for nil error", func(t *testing.T) {
		if wrapped := orcaerrors.Wrap(nil, "context"); wrapped != nil {
			t.Errorf("Wrap(nil, _) should return nil, got: %v", wrapped)
		}
	})
}

func TestWrapf(t *testing.T) {
	original := errors.New("exit status 1")
	wrapped := orcaerrors.Wrapf(original, "submitting %s", "wf1")
	if got := wrapped.Error(); got != "submitting wf1: exit status 1" {
		t.Errorf("Wrapf() = %q", got)
	}
	if orcaerrors.Wrapf(nil, "submitting %s", "wf1") != nil {
		t.Error("Wrapf(nil) should return nil")
	}
}

func TestAs(t *testing.T) {
	err := orcaerrors.Wrap(&orcaerrors.SubmissionParseError{Command: "condor_submit"}, "launch")

	var parseErr *orcaerrors.SubmissionParseError
	if !orcaerrors.As(err, &parseErr) {
		t.Fatal("As should find SubmissionParseError in chain")
	}
	if parseErr.Command != "condor_submit" {
		t.Errorf("Command = %q", parseErr.Command)
	}
}

func TestJoin(t *testing.T) {
	a := errors.New("a")
	joined := orcaerrors.Join(nil, a, nil)
	if !orcaerrors.Is(joined, a) {
		t.Error("Join should keep non-nil errors")
	}
	if orcaerrors.Join(nil, nil) != nil {
		t.Error("Join of nils should be nil")
	}
}
