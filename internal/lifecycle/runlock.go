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

package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	// ErrInvalidPID is returned when a lock file holds something other than
	// a positive pid.
	ErrInvalidPID = errors.New("invalid PID in lock file")

	// ErrUnsafeDirectory is returned when the lock file's parent is
	// world-writable.
	ErrUnsafeDirectory = errors.New("lock file directory is world-writable")
)

// LockedError reports that a live process already holds a run lock.
type LockedError struct {
	Path string
	PID  int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("production lock %s is held by running process %d", e.Path, e.PID)
}

// RunLock is an exclusive, flock-backed pid file that keeps two orca
// processes from launching the same production.
type RunLock struct {
	path string
	file *os.File
}

// AcquireRunLock writes pid to path. A lock left behind by a process that
// no longer exists is replaced; one held by a live process yields a
// *LockedError.
func AcquireRunLock(path string, pid int) (*RunLock, error) {
	dir := filepath.Dir(path)
	if err := verifyDirectorySafety(dir); err != nil {
		return nil, fmt.Errorf("unsafe lock file location: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create lock file directory: %w", err)
	}

	l, err := create(path, pid)
	if err == nil || !os.IsExist(err) {
		return l, err
	}

	holder, readErr := ReadLockPID(path)
	if readErr == nil {
		if alive, _ := process.PidExists(int32(holder)); alive {
			return nil, &LockedError{Path: path, PID: holder}
		}
	}
	// Stale or unreadable: replace it once.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale lock file: %w", err)
	}
	l, err = create(path, pid)
	if os.IsExist(err) {
		return nil, &LockedError{Path: path}
	}
	return l, err
}

func create(path string, pid int) (*RunLock, error) {
	// O_EXCL refuses symlinks and loses races cleanly.
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		os.Remove(path)
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, &LockedError{Path: path}
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", pid); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to sync lock file: %w", err)
	}

	return &RunLock{path: path, file: f}, nil
}

// ReadLockPID returns the pid stored in the lock file at path.
func ReadLockPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, pidStr)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}

// Path returns the lock file location.
func (l *RunLock) Path() string {
	return l.path
}

// Release unlocks and removes the lock file. Releasing twice is a no-op.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	l.file.Close()
	l.file = nil

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// verifyDirectorySafety rejects world-writable parents, where another user
// could plant a symlink at the lock path.
func verifyDirectorySafety(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if mode := info.Mode(); mode&0o002 != 0 && mode&os.ModeSticky == 0 {
		return fmt.Errorf("%w: %s has mode %04o", ErrUnsafeDirectory, dir, mode&os.ModePerm)
	}
	return nil
}
