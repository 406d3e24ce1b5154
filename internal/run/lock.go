package run

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// RunLock is an exclusive flock held for the lifetime of a run. It
// marks the run as live: a reader that can acquire the lock knows the
// owning process is gone.
type RunLock struct {
	file *os.File
}

// AcquireRunLock locks <runDir>/run.lock without blocking. A held lock
// means another process owns this run directory.
func AcquireRunLock(runDir string) (*RunLock, error) {
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	path := filepath.Join(runDir, "run.lock")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("run %s is already in use: %w", filepath.Base(runDir), err)
	}
	return &RunLock{file: file}, nil
}

// RunAlive reports whether some process currently holds the run lock.
func RunAlive(runDir string) bool {
	path := filepath.Join(runDir, "run.lock")
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return false
	}
	defer func() { _ = file.Close() }()
	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return true
	}
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	return false
}

// Release releases the lock.
func (l *RunLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = l.file.Close()
		return err
	}
	return l.file.Close()
}
