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
	"context"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/production"
)

const (
	runCacheTTL   = 2 * time.Second
	storeTimeout  = 500 * time.Millisecond
	maxRunsListed = 50
)

// runCacheEntry holds cached run completions with expiry.
type runCacheEntry struct {
	path      string
	runs      []runInfo
	expiresAt time.Time
}

type runInfo struct {
	id          string
	state       string
	description string
}

var (
	runCache   *runCacheEntry
	runCacheMu sync.RWMutex
)

// CompleteRunIDs completes run ids recorded in the run-state database.
func CompleteRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeRuns(cmd, false)
}

// CompleteActiveRunIDs completes only runs still marked running or stopping.
func CompleteActiveRunIDs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return completeRuns(cmd, true)
}

func completeRuns(cmd *cobra.Command, activeOnly bool) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		runs, err := getRunCompletions(stateDBPath(cmd))
		if err != nil || len(runs) == 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		completions := make([]string, 0, len(runs))
		for _, r := range runs {
			if activeOnly && !isActive(r.state) {
				continue
			}
			completions = append(completions, r.id+"\t"+r.description)
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
}

// stateDBPath prefers the command's own --db flag over ORCA_STATE_DB.
func stateDBPath(cmd *cobra.Command) string {
	if cmd != nil {
		if f := cmd.Flags().Lookup("db"); f != nil && f.Value.String() != "" {
			return f.Value.String()
		}
	}
	return os.Getenv("ORCA_STATE_DB")
}

func getRunCompletions(path string) ([]runInfo, error) {
	if path == "" || path == ":memory:" {
		return nil, nil
	}

	runCacheMu.RLock()
	if runCache != nil && runCache.path == path && time.Now().Before(runCache.expiresAt) {
		cached := runCache.runs
		runCacheMu.RUnlock()
		return cached, nil
	}
	runCacheMu.RUnlock()

	runs, err := fetchRuns(path)
	if err != nil {
		return nil, err
	}

	runCacheMu.Lock()
	runCache = &runCacheEntry{path: path, runs: runs, expiresAt: time.Now().Add(runCacheTTL)}
	runCacheMu.Unlock()
	return runs, nil
}

func fetchRuns(path string) ([]runInfo, error) {
	// Opening would create the database; completion must not.
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	store, err := production.OpenStore(ctx, path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	records, err := store.Runs(ctx, maxRunsListed)
	if err != nil {
		return nil, err
	}

	runs := make([]runInfo, 0, len(records))
	for _, r := range records {
		description := r.State
		if r.ShortName != "" {
			description = r.ShortName + " (" + r.State + ")"
		}
		runs = append(runs, runInfo{id: r.RunID, state: r.State, description: description})
	}
	return runs, nil
}

func isActive(state string) bool {
	return state == production.StateRunning || state == production.StateStopping
}

// resetCache clears cached completions. Tests only.
func resetCache() {
	runCacheMu.Lock()
	runCache = nil
	runCacheMu.Unlock()
}
