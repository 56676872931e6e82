package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"webupload/internal/config"
	"webupload/internal/daemonrun"
	"webupload/internal/ipc"
)

// ErrDaemonNotRunning is returned by StopAndTerminate when nothing answers
// on the control socket.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult describes how the engine went down.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate asks the engine to shut down and waits up to gracePeriod
// for it to go away. An engine that still holds its lock afterwards is
// killed.
func StopAndTerminate(socketPath string, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if IsDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	var result StopResult
	if status, err := client.Status(); err == nil && status != nil {
		result.PID = status.Status.PID
	}
	resp, err := client.Shutdown("stop requested")
	_ = client.Close()
	if err != nil {
		return result, err
	}
	result.StopAcknowledged = resp != nil && resp.Acknowledged

	exited := poll(gracePeriod, func() (bool, error) {
		running, _, err := ProcessInfo(socketPath)
		if err != nil || running {
			return false, err
		}
		return !lockHeld(cfg.LockPath()), nil
	})
	if exited == nil {
		return result, nil
	}
	pid, err := ForceKillProcess(daemonrun.PIDPath(cfg), cfg.LockPath(), result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(socketPath)
	result.ForcedKill = true
	result.PID = pid
	return result, nil
}

// ForceKillProcess sends SIGKILL to the pid recorded in pidPath, or to
// fallbackPID when the file is missing, and removes the pid and lock files.
func ForceKillProcess(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid, err := readPID(pidPath, fallbackPID)
	if err != nil {
		return 0, err
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{pidPath, lockPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return pid, nil
}

func readPID(pidPath string, fallback int) (int, error) {
	data, err := os.ReadFile(pidPath)
	switch {
	case err == nil:
		if pid, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && pid > 0 {
			return pid, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if fallback <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	return fallback, nil
}

// lockHeld reports whether some process still holds the engine lock. The
// lock is only probed, never kept.
func lockHeld(path string) bool {
	if path == "" {
		return false
	}
	lock := flock.New(path)
	acquired, err := lock.TryLock()
	if err != nil {
		return false
	}
	if acquired {
		_ = lock.Unlock()
	}
	return !acquired
}
