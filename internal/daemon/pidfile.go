// Package daemon tracks the serve process through a PID file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Ning0612/Diskgraph/internal/domain"
)

// PIDFileName is the default PID file name inside the state directory
const PIDFileName = "serve.pid"

// PIDFile manages the serve process ID file
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file manager for path
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// DefaultPIDPath returns the PID file path inside stateDir, creating the directory
func DefaultPIDPath(stateDir string) (string, error) {
	if stateDir == "" {
		return "", fmt.Errorf("state directory cannot be empty")
	}
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create PID directory: %w", err)
	}
	return filepath.Join(stateDir, PIDFileName), nil
}

// Path returns the PID file location
func (p *PIDFile) Path() string {
	return p.path
}

// Write records the current process. A file left by a dead process is replaced.
func (p *PIDFile) Write() error {
	if running, err := p.IsRunning(); err == nil && running {
		return fmt.Errorf("%w: PID file %s", domain.ErrAlreadyRunning, p.path)
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return fmt.Errorf("failed to create PID directory: %w", err)
	}

	content := strconv.Itoa(os.Getpid()) + "\n"
	if err := os.WriteFile(p.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

// Read returns the recorded PID
func (p *PIDFile) Read() (int, error) {
	content, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w: no PID file at %s", domain.ErrNotRunning, p.path)
		}
		return 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid PID in file: %q", pidStr)
	}
	return pid, nil
}

// Remove deletes the PID file; a missing file is not an error
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning reports whether the recorded process is alive
func (p *PIDFile) IsRunning() (bool, error) {
	pid, err := p.Read()
	if err != nil {
		return false, err
	}
	return isProcessRunning(pid), nil
}

// Terminate asks the recorded process to shut down and waits until it has
// exited or ctx is done
func (p *PIDFile) Terminate(ctx context.Context) error {
	pid, err := p.Read()
	if err != nil {
		return err
	}
	if !isProcessRunning(pid) {
		p.Remove()
		return fmt.Errorf("%w: process %d has exited", domain.ErrNotRunning, pid)
	}

	if err := terminateProcess(pid); err != nil {
		return err
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for isProcessRunning(pid) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("process %d still running: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}
