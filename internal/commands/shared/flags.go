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

// Package shared holds state and helpers common to every orca command.
package shared

// Global flag values - set by root command
var (
	verboseFlag   int
	quietFlag     bool
	jsonFlag      bool
	configFlag    string
	logFormatFlag string

	// Build-time version information
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// Flags bundles pointers to the persistent flag variables for binding.
type Flags struct {
	Verbose   *int
	Quiet     *bool
	JSON      *bool
	Config    *string
	LogFormat *string
}

// RegisterFlagPointers returns pointers to flag variables for binding.
// Called by root command to register flags.
func RegisterFlagPointers() Flags {
	return Flags{
		Verbose:   &verboseFlag,
		Quiet:     &quietFlag,
		JSON:      &jsonFlag,
		Config:    &configFlag,
		LogFormat: &logFormatFlag,
	}
}

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version = v
	commit = c
	buildDate = b
}

// GetVerbosity returns how many times --verbose was given.
func GetVerbosity() int {
	return verboseFlag
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quietFlag
}

// GetJSON returns the JSON output flag value
func GetJSON() bool {
	return jsonFlag
}

// GetConfigPath returns the config file path
func GetConfigPath() string {
	return configFlag
}

// GetLogFormat returns the --log-format value, or "".
func GetLogFormat() string {
	return logFormatFlag
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ResetFlagsForTest restores every flag to its zero value.
func ResetFlagsForTest() {
	verboseFlag = 0
	quietFlag = false
	jsonFlag = false
	configFlag = ""
	logFormatFlag = ""
}

// SetConfigPathForTest sets the config path for testing purposes
func SetConfigPathForTest(path string) {
	configFlag = path
}
