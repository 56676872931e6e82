package preflight

import (
	"context"

	"webupload/internal/accounts"
	"webupload/internal/config"
	"webupload/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	for _, status := range CheckWorkers(cfg) {
		results = append(results, workerResult(status))
	}

	if cfg.Connectivity.ProbeAddress != "" {
		results = append(results, CheckReachable(ctx, "Connectivity", cfg.Connectivity.ProbeAddress, cfg.ProbeTimeout()))
	}
	return results
}

// CheckWorkers reports the availability of every configured service worker.
func CheckWorkers(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(accounts.NewResolver(cfg).Requirements())
}

func workerResult(status deps.Status) Result {
	name := "Worker " + status.Name
	if status.Available {
		return Result{Name: name, Passed: true, Detail: status.Resolved}
	}
	detail := status.Detail
	if status.Optional {
		return Result{Name: name, Passed: true, Detail: detail + " (no enabled accounts)"}
	}
	return Result{Name: name, Detail: detail}
}
