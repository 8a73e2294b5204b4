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
	"fmt"
	"strings"
	"unicode"
)

// MaxInputSize is the maximum allowed input size in bytes.
const MaxInputSize = 1024

// ValidationError represents an input validation failure.
type ValidationError struct {
	InputName string
	Reason    string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ValidateRunID accepts a non-empty run id without whitespace.
func ValidateRunID(s string) error {
	if strings.TrimSpace(s) == "" {
		return &ValidationError{InputName: "run id", Reason: "run id is required"}
	}
	if len(s) > MaxInputSize {
		return &ValidationError{
			InputName: "run id",
			Reason:    fmt.Sprintf("run id exceeds maximum length of %d bytes", MaxInputSize),
		}
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return &ValidationError{InputName: "run id", Reason: "run id must not contain whitespace"}
	}
	return nil
}
