package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gitcontext/gcc-mcp/internal/gccerr"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "session", ".lock")
}

func TestAcquireRelease(t *testing.T) {
	path := lockPath(t)

	l, err := Acquire(path, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := HolderPID(path); got != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", got, os.Getpid())
	}

	l.Release()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed after Release, stat err = %v", err)
	}
}

func TestAcquireTimesOutWhileHeld(t *testing.T) {
	path := lockPath(t)

	l, err := Acquire(path, time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	start := time.Now()
	_, err = Acquire(path, 150*time.Millisecond, 20*time.Millisecond)
	if err == nil {
		t.Fatal("second Acquire should fail while lock is held")
	}
	var lt *gccerr.LockTimeout
	if !errors.As(err, &lt) {
		t.Fatalf("error = %T, want *gccerr.LockTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("returned before timeout elapsed: %v", elapsed)
	}
}

func TestStaleLockBlocksUntilTimeout(t *testing.T) {
	// A lock file left behind by a dead holder is not auto-expired.
	path := lockPath(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path, 100*time.Millisecond, 20*time.Millisecond)
	var lt *gccerr.LockTimeout
	if !errors.As(err, &lt) {
		t.Fatalf("error = %v, want LockTimeout for stale lock", err)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	path := lockPath(t)
	sentinel := errors.New("guarded failure")

	err := With(path, time.Second, 10*time.Millisecond, func() error {
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("With should propagate the guarded error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file should be removed after a failed guarded scope")
	}
}

func TestMutualExclusion(t *testing.T) {
	path := lockPath(t)

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(path, 5*time.Second, time.Millisecond, func() error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("With: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}
