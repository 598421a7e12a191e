package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newLock(t *testing.T, dir string) *FileLock {
	t.Helper()

	lock, err := NewFileLock(dir)
	if err != nil {
		t.Fatalf("NewFileLock failed: %v", err)
	}
	return lock
}

func TestNewFileLock(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	lock := newLock(t, dir)

	expectedPath := filepath.Join(dir, LockFileName)
	if lock.Path() != expectedPath {
		t.Errorf("expected lock path %s, got %s", expectedPath, lock.Path())
	}
	if lock.staleTimeout != DefaultStaleTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultStaleTimeout, lock.staleTimeout)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("lock directory not created: %v", err)
	}
}

func TestAcquireRelease(t *testing.T) {
	lock := newLock(t, t.TempDir())

	if err := lock.Acquire("persist"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); err != nil {
		t.Error("lock file does not exist after acquire")
	}
	if !lock.IsLocked() {
		t.Error("lock should be held")
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Error("lock file still exists after release")
	}
	if lock.IsLocked() {
		t.Error("lock should not be held after release")
	}
}

// Re-acquiring with a different operation must keep l.info in step with the
// file, otherwise Release reports the lock as stolen.
func TestAcquireTwice_ThenRelease(t *testing.T) {
	dir := t.TempDir()
	lock := newLock(t, dir)

	if err := lock.Acquire("persist"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := lock.Acquire("delete"); err != nil {
		t.Fatalf("Second acquire failed: %v", err)
	}

	holder, err := lock.GetHolder()
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.Operation != "delete" {
		t.Errorf("expected operation 'delete', got %q", holder.Operation)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release after re-acquire failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("Lock file still exists after release")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	dir := t.TempDir()

	const goroutines = 10
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	acquired := make([]bool, goroutines)
	errs := make([]error, goroutines)
	locks := make([]*FileLock, goroutines)

	for i := 0; i < goroutines; i++ {
		locks[i] = newLock(t, dir)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			start.Wait()
			if err := locks[idx].Acquire("persist"); err != nil {
				errs[idx] = err
				return
			}
			acquired[idx] = true
		}(i)
	}
	start.Done()
	wg.Wait()

	acquireCount := 0
	lockErrorCount := 0
	for i := 0; i < goroutines; i++ {
		if acquired[i] {
			acquireCount++
			locks[i].Release()
		}
		if errs[i] != nil && IsLockError(errs[i]) {
			lockErrorCount++
		}
	}

	if acquireCount != 1 {
		t.Errorf("expected exactly 1 acquire, got %d", acquireCount)
	}
	if lockErrorCount != goroutines-1 {
		t.Errorf("expected %d lock errors, got %d", goroutines-1, lockErrorCount)
	}
}

func TestWith(t *testing.T) {
	dir := t.TempDir()
	lock := newLock(t, dir)
	other := newLock(t, dir)

	ran := false
	err := lock.With("persist", func() error {
		ran = true
		if err := other.Acquire("persist"); !IsLockError(err) {
			t.Errorf("expected LockError while held, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("With failed: %v", err)
	}
	if !ran {
		t.Error("fn was not called")
	}
	if lock.IsLocked() {
		t.Error("lock still held after With")
	}

	wantErr := errors.New("boom")
	if err := lock.With("persist", func() error { return wantErr }); !errors.Is(err, wantErr) {
		t.Errorf("expected fn error, got %v", err)
	}
	if lock.IsLocked() {
		t.Error("lock still held after failing fn")
	}
}

func TestGetHolder(t *testing.T) {
	lock := newLock(t, t.TempDir())

	if _, err := lock.GetHolder(); err == nil {
		t.Error("expected error when no lock is held")
	}

	if err := lock.Acquire("persist"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	holder, err := lock.GetHolder()
	if err != nil {
		t.Fatalf("GetHolder failed: %v", err)
	}
	if holder.PID != os.Getpid() {
		t.Errorf("expected PID %d, got %d", os.Getpid(), holder.PID)
	}
	hostname, _ := os.Hostname()
	if holder.Hostname != hostname {
		t.Errorf("expected hostname %s, got %s", hostname, holder.Hostname)
	}
	if holder.Operation != "persist" {
		t.Errorf("expected operation persist, got %s", holder.Operation)
	}
	if time.Since(holder.StartTime) > time.Second {
		t.Error("start time should be recent")
	}
}

func TestForceRelease(t *testing.T) {
	lock := newLock(t, t.TempDir())
	lock.Acquire("persist")

	if err := lock.ForceRelease(); err != nil {
		t.Fatalf("ForceRelease failed: %v", err)
	}
	if lock.IsLocked() {
		t.Error("lock should not be held after force release")
	}
}

func TestStaleDetection(t *testing.T) {
	hostname, _ := os.Hostname()

	tests := []struct {
		name string
		info *LockInfo
	}{
		{"dead process", &LockInfo{
			PID:       999999,
			Hostname:  hostname,
			StartTime: time.Now().Add(-time.Hour),
			Operation: "persist",
		}},
		{"foreign host past timeout", &LockInfo{
			PID:       12345,
			Hostname:  fmt.Sprintf("foreign-host-%d", time.Now().UnixNano()),
			StartTime: time.Now().Add(-time.Hour),
			Operation: "persist",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := newLock(t, t.TempDir())
			lock.SetStaleTimeout(100 * time.Millisecond)

			if err := lock.writeLockInfo(tt.info); err != nil {
				t.Fatalf("failed to write lock info: %v", err)
			}
			if !lock.isStale(tt.info) {
				t.Fatal("expected lock to be stale")
			}
			if err := lock.Acquire("persist"); err != nil {
				t.Fatalf("should acquire stale lock: %v", err)
			}
			defer lock.Release()

			holder, err := lock.GetHolder()
			if err != nil {
				t.Fatalf("GetHolder failed: %v", err)
			}
			if holder.PID != os.Getpid() {
				t.Error("expected current process to be holder")
			}
		})
	}
}

func TestStaleDetection_LiveProcessIgnoresTimeout(t *testing.T) {
	dir := t.TempDir()
	lock := newLock(t, dir)
	lock.SetStaleTimeout(10 * time.Millisecond)

	if err := lock.Acquire("persist"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	time.Sleep(50 * time.Millisecond)

	if !lock.IsLocked() {
		t.Error("lock of a live process should not be considered stale")
	}

	err := newLock(t, dir).Acquire("persist")
	if !IsLockError(err) {
		t.Errorf("expected LockError, got: %v", err)
	}
}

func TestLockError(t *testing.T) {
	err := fmt.Errorf("persist: %w", &LockError{
		Holder: &LockInfo{PID: 1, Hostname: "h", Operation: "persist"},
		Reason: "lock is held by another process",
	})

	if !IsLockError(err) {
		t.Error("wrapped LockError not detected")
	}
	if IsLockError(errors.New("other")) {
		t.Error("plain error detected as LockError")
	}
	if err.Error() == "" {
		t.Error("error message should not be empty")
	}
}
