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

// Package waitfiles implements the command that blocks until the files named
// in a list exist.
package waitfiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/filewaiter"
)

type waitOptions struct {
	listFile     string
	files        []string
	first        bool
	all          bool
	timeout      time.Duration
	pollInterval time.Duration

	out    io.Writer
	logger *slog.Logger
}

// NewCommand creates the wait-files command
func NewCommand() *cobra.Command {
	var opts waitOptions

	cmd := &cobra.Command{
		Use:   "wait-files [-f|-l] <list-file>",
		Short: "Block until files appear",
		Long: `Wait-files reads a list of paths, one per line, and blocks until they exist.
Blank lines and lines starting with # are ignored; relative paths are taken
relative to the list file. Entries may be doublestar glob patterns, which
count as present once anything matches.

  -f, --first   wait only for the first file in the list
  -l, --list    wait for every file in the list (default)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.listFile = args[0]
			}
			opts.out = cmd.OutOrStdout()
			logger, _ := shared.NewLogger(cmd.ErrOrStderr())
			opts.logger = logger
			return execute(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.first, "first", "f", false, "Wait for the first file in the list only")
	cmd.Flags().BoolVarP(&opts.all, "list", "l", false, "Wait for all the files in the list")
	cmd.Flags().StringSliceVar(&opts.files, "file", nil, "Additional path or glob to wait for (repeatable)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Give up after this long (default: wait forever)")
	cmd.Flags().DurationVar(&opts.pollInterval, "poll-interval", time.Second, "Fallback polling interval")
	cmd.MarkFlagsMutuallyExclusive("first", "list")

	return cmd
}

func execute(ctx context.Context, opts waitOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var files []string
	if opts.listFile != "" {
		listed, err := filewaiter.ReadFileList(opts.listFile)
		if err != nil {
			return shared.NewConfigError("failed to read file list", err)
		}
		files = append(files, listed...)
	}
	files = append(files, opts.files...)
	if len(files) == 0 {
		return shared.NewConfigError("no files to wait for", fmt.Errorf("give a list file or --file"))
	}

	waitOpts := []filewaiter.Option{filewaiter.WithPollInterval(opts.pollInterval)}
	if opts.logger != nil {
		waitOpts = append(waitOpts, filewaiter.WithLogger(opts.logger))
	}
	w, err := filewaiter.New(files, waitOpts...)
	if err != nil {
		return shared.NewConfigError("invalid file list", err)
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if opts.first {
		err = w.WaitForFirstFile(ctx)
	} else {
		err = w.WaitForAllFiles(ctx)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return shared.NewTimeoutError(fmt.Sprintf("files did not appear within %v", opts.timeout), err)
		}
		return shared.NewExecutionError("wait for files failed", err)
	}

	if !shared.GetQuiet() {
		n := len(w.Files())
		if opts.first {
			n = 1
		}
		fmt.Fprintln(opts.out, shared.RenderOK(fmt.Sprintf("%d file(s) present", n)))
	}
	return nil
}
