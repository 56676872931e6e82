package staging

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"webupload/internal/logging"
)

const jobDirPrefix = "job-"

// JobDir returns the staging directory holding processed copies for a job.
func JobDir(stagingDir, jobID string) string {
	return filepath.Join(stagingDir, jobDirPrefix+jobID)
}

// RemoveJob deletes the staging directory of a finished job.
func RemoveJob(stagingDir, jobID string) error {
	if strings.TrimSpace(stagingDir) == "" || strings.TrimSpace(jobID) == "" {
		return nil
	}
	return os.RemoveAll(JobDir(stagingDir, jobID))
}

// SweepResult lists what a Sweep removed and the directories it could not.
type SweepResult struct {
	Removed []string
	Failed  map[string]error
}

// Sweep removes every job directory under stagingDir whose job ID is not
// reported live by isLive. Entries that do not look like job directories are
// never touched. A missing staging directory is not an error.
func Sweep(ctx context.Context, stagingDir string, isLive func(jobID string) bool, logger *slog.Logger) SweepResult {
	result := SweepResult{Failed: map[string]error{}}
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			result.Failed[stagingDir] = err
		}
		return result
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		jobID, ok := strings.CutPrefix(entry.Name(), jobDirPrefix)
		if !ok || !entry.IsDir() || jobID == "" || isLive(jobID) {
			continue
		}
		path := filepath.Join(stagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			result.Failed[path] = err
			logging.WarnWithContext(logger, "staging directory not removed", "staging_sweep_failed",
				logging.String("path", path),
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, path)
		logger.Debug("staging directory removed",
			logging.String("path", path),
			logging.String(logging.FieldJobID, jobID),
			logging.String(logging.FieldEventType, "staging_swept"),
		)
	}
	return result
}
