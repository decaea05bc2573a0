// Package lock provides the per-session mutual-exclusion primitive.
// The lock is a file created with O_EXCL, so it excludes other holders
// across independent processes, not just goroutines. The holder's pid is
// written into the file for operator inspection.
//
// There is no holder-liveness detection: a lock file left behind by a
// crashed process blocks every later caller until timeout, until the file
// is removed by hand. Acquisition is not reentrant.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

// Lock is a held session lock. Release must be called exactly once.
type Lock struct {
	path string
	file *os.File
}

// Acquire creates the lock file at path, retrying every poll until timeout
// elapses. On timeout it returns *gccerr.LockTimeout.
func Acquire(path string, timeout, poll time.Duration) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &gccerr.StorageError{Msg: "create lock directory", Path: path, Err: err}
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			return &Lock{path: path, file: f}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, &gccerr.StorageError{Msg: "create lock file", Path: path, Err: err}
		}
		if time.Now().After(deadline) {
			return nil, &gccerr.LockTimeout{Path: path, Timeout: timeout}
		}
		time.Sleep(poll)
	}
}

// Release removes the lock file. Cleanup failures are swallowed so that
// they never mask the result of the guarded operation.
func (l *Lock) Release() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	os.Remove(l.path)
}

// HolderPID reads the pid recorded in a lock file. Used by tests and
// operator tooling; returns 0 when the file is missing or malformed.
func HolderPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}

// With runs fn while holding the lock at path, releasing it on any exit.
func With(path string, timeout, poll time.Duration, fn func() error) error {
	l, err := Acquire(path, timeout, poll)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
