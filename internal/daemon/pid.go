package daemon

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile enforces single-instance daemon operation, adapted from the
// teacher's internal/daemon/pid.go with no behavioral changes.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Acquire writes the current process PID to the file, failing if another
// daemon instance is already running.
func (p *PIDFile) Acquire() error {
	if _, err := os.Stat(p.path); err == nil {
		existingPID, err := ReadPID(p.path)
		if err != nil {
			return fmt.Errorf("daemon: reading existing PID file: %w", err)
		}
		if existingPID > 0 && IsProcessRunning(existingPID) {
			return fmt.Errorf("daemon: already running with PID %d", existingPID)
		}
		if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("daemon: removing stale PID file: %w", err)
		}
	}

	pidStr := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(p.path, []byte(pidStr), 0o644); err != nil {
		return fmt.Errorf("daemon: writing PID file: %w", err)
	}
	return nil
}

// Release removes the PID file. Safe to call multiple times.
func (p *PIDFile) Release() error {
	err := os.Remove(p.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsProcessRunning reports whether a process with the given PID exists.
func IsProcessRunning(pid int) bool {
	return syscall.Kill(pid, syscall.Signal(0)) == nil
}

// ReadPID reads the PID recorded in path.
func ReadPID(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pidStr := strings.TrimSpace(string(content))
	if pidStr == "" {
		return 0, fmt.Errorf("daemon: PID file %s is empty", path)
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("daemon: invalid PID in %s: %w", path, err)
	}
	return pid, nil
}
