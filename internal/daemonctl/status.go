package daemonctl

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"webupload/internal/api"
	"webupload/internal/config"
	"webupload/internal/ipc"
	"webupload/internal/jobstore"
	"webupload/internal/preflight"
)

const pollInterval = 200 * time.Millisecond

// poll calls check every pollInterval until it reports done or timeout
// elapses. The last check error explains a timeout.
func poll(timeout time.Duration, check func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		done, err := check()
		if done {
			return nil
		}
		lastErr = err
		if time.Now().Add(pollInterval).After(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}
	if lastErr == nil {
		lastErr = errors.New("timed out")
	}
	return lastErr
}

// ProcessInfo reports whether an engine answers on socketPath, and its pid.
// A missing or refusing socket is not an error.
func ProcessInfo(socketPath string) (running bool, pid int, err error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if IsDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return resp.Status.Running, resp.Status.PID, nil
}

// StatusSnapshot returns the running engine's status. When the engine is
// down it builds a stopped status from the job store and preflight checks.
func StatusSnapshot(ctx context.Context, socketPath string, cfg *config.Config) (api.DaemonStatus, error) {
	if cfg == nil {
		return api.DaemonStatus{}, errors.New("configuration not available")
	}
	if client, err := ipc.Dial(socketPath); err == nil {
		resp, statusErr := client.Status()
		client.Close()
		if statusErr == nil && resp != nil {
			return resp.Status, nil
		}
	}

	status := api.DaemonStatus{
		Engine:       api.EngineStatus{State: "stopped"},
		LockPath:     cfg.LockPath(),
		DatabasePath: cfg.DatabasePath(),
		Jobs:         []api.JobItem{},
		StoredCounts: map[string]int{},
		Checks:       api.FromChecks(preflight.RunAll(ctx, cfg)),
	}
	store, err := jobstore.Open(cfg)
	if err != nil {
		return status, err
	}
	defer store.Close()

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	summaries, err := store.Summaries(queryCtx)
	if err != nil {
		return status, err
	}
	for _, sum := range summaries {
		status.StoredCounts[string(sum.Status)]++
	}
	return status, nil
}

// IsDaemonUnavailable reports whether err means nothing listens on the socket.
func IsDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
