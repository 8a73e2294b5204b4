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

// Package filewaiter blocks until files come into existence. A launch is
// confirmed by waiting for the files its jobs create.
//
// An entry may be a doublestar glob ("logs/**/*.log"); it counts as present
// once anything matches it.
package filewaiter

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	orcalog "github.com/tombee/orca/internal/log"
)

// DefaultPollInterval is how often missing files are re-checked when no
// filesystem event arrives.
const DefaultPollInterval = time.Second

// Waiter waits on a fixed list of files.
type Waiter struct {
	files        []string
	pollInterval time.Duration
	logger       *slog.Logger
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Waiter) {
		w.logger = logger
	}
}

// New creates a Waiter for files. Order matters: WaitForFirstFile waits on
// files[0].
func New(files []string, opts ...Option) (*Waiter, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("at least one file is required")
	}
	w := &Waiter{
		files:        make([]string, 0, len(files)),
		pollInterval: DefaultPollInterval,
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", f, err)
		}
		w.files = append(w.files, abs)
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = orcalog.WithComponent(w.logger, "filewaiter")
	return w, nil
}

// ReadFileList reads one path per line from listPath. Blank lines and lines
// starting with # are skipped; relative paths resolve against the list's
// directory.
func ReadFileList(listPath string) ([]string, error) {
	f, err := os.Open(listPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file list: %w", err)
	}
	defer f.Close()

	base := filepath.Dir(listPath)
	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(base, line)
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file list: %w", err)
	}
	return files, nil
}

// Files returns the absolute paths being waited on.
func (w *Waiter) Files() []string {
	return append([]string(nil), w.files...)
}

// WaitForFirstFile blocks until the first file in the list exists.
func (w *Waiter) WaitForFirstFile(ctx context.Context) error {
	w.logger.Info("waiting for log file to be created to confirm launch", slog.String("file", w.files[0]))
	return w.wait(ctx, w.files[:1])
}

// WaitForAllFiles blocks until every file in the list exists.
func (w *Waiter) WaitForAllFiles(ctx context.Context) error {
	w.logger.Info("waiting for all log files to be created to confirm launch", slog.Int("files", len(w.files)))
	return w.wait(ctx, w.files)
}

func (w *Waiter) wait(ctx context.Context, files []string) error {
	pending := missing(files)
	if len(pending) == 0 {
		return nil
	}

	events, closeWatch := w.watch(pending)
	defer closeWatch()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d file(s): %w", len(pending), ctx.Err())
		case <-events:
		case <-ticker.C:
		}
		pending = missing(pending)
		if len(pending) == 0 {
			w.logger.Debug("all awaited files exist")
			return nil
		}
	}
}

// watch subscribes to create events in the parent directory of every
// pending file. Directories that do not exist yet are covered by polling
// alone.
func (w *Waiter) watch(files []string) (<-chan struct{}, func()) {
	notify := make(chan struct{}, 1)

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Debug("file events unavailable, polling only", orcalog.Error(err))
		return notify, func() {}
	}

	watched := make(map[string]bool)
	for _, f := range files {
		dir := watchDir(f)
		if watched[dir] {
			continue
		}
		if err := fsWatcher.Add(dir); err != nil {
			w.logger.Debug("cannot watch directory, polling it", slog.String("dir", dir), orcalog.Error(err))
			continue
		}
		watched[dir] = true
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Write) {
					select {
					case notify <- struct{}{}:
					default:
					}
				}
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				w.logger.Debug("file watcher error", orcalog.Error(err))
			}
		}
	}()

	return notify, func() {
		close(done)
		fsWatcher.Close()
	}
}

func missing(files []string) []string {
	var out []string
	for _, f := range files {
		if !exists(f) {
			out = append(out, f)
		}
	}
	return out
}

func isPattern(f string) bool {
	return strings.ContainsAny(f, "*?[{")
}

func exists(f string) bool {
	if isPattern(f) {
		matches, err := doublestar.FilepathGlob(f)
		return err == nil && len(matches) > 0
	}
	_, err := os.Stat(f)
	return err == nil
}

// watchDir is the deepest directory known before any glob segment. Events
// below it in nested directories are caught by polling.
func watchDir(f string) string {
	if !isPattern(f) {
		return filepath.Dir(f)
	}
	base, _ := doublestar.SplitPattern(filepath.ToSlash(f))
	return filepath.FromSlash(base)
}
