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

package completion

import (
	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/lifecycle"
)

// CompleteUrgency provides completion for stop --level values.
func CompleteUrgency(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		levels := make([]string, 0, int(lifecycle.Now)+1)
		for u := lifecycle.FinishPendingData; u <= lifecycle.Now; u++ {
			levels = append(levels, u.String()+"\t"+u.Description())
		}
		return levels, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteLogFormats provides completion for --log-format values.
func CompleteLogFormats(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"json\tOne JSON object per line",
			"text\tHuman-readable key=value",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}
