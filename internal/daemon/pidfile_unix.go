//go:build !windows

package daemon

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func isProcessRunning(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// terminateProcess sends SIGTERM so serve shuts down gracefully
func terminateProcess(pid int) error {
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}
	return nil
}
