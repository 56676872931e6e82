package preprocess

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sys/unix"

	"webupload/internal/fileutil"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/staging"
)

const mebibyte = 1024 * 1024

// CopyPreprocessor stages a verified copy of each item under the staging
// directory so uploads survive the source becoming unavailable. Resize and
// metadata stripping are left to the worker.
type CopyPreprocessor struct {
	StagingDir string
	// MinFreeMiB is the free space that must remain after the copy.
	MinFreeMiB int64
	// FreeSpace reports available bytes for a path. Defaults to statfs.
	FreeSpace func(path string) (uint64, error)
}

// NewCopyPreprocessor returns a CopyPreprocessor using statfs.
func NewCopyPreprocessor(stagingDir string, minFreeMiB int64) *CopyPreprocessor {
	return &CopyPreprocessor{StagingDir: stagingDir, MinFreeMiB: minFreeMiB, FreeSpace: statfsAvailable}
}

// Process implements Preprocessor.
func (p *CopyPreprocessor) Process(ctx context.Context, desc queue.Descriptor, index int) (string, error) {
	media := desc.Media(index)
	info, err := os.Stat(media.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", services.WithHint(
				services.Wrap(services.ErrSourceFileMissing, "preprocess", "stat source", media.SourcePath, err),
				"restore the file or cancel the job",
			)
		}
		return "", services.Wrap(services.ErrSourceFileMissing, "preprocess", "stat source", media.SourcePath, err)
	}

	dir := staging.JobDir(p.StagingDir, desc.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", classifyIOError("create staging directory", dir, err)
	}

	freeSpace := p.FreeSpace
	if freeSpace == nil {
		freeSpace = statfsAvailable
	}
	available, err := freeSpace(dir)
	if err != nil {
		return "", fmt.Errorf("check free space: %w", err)
	}
	required := uint64(info.Size()) + uint64(max(p.MinFreeMiB, 0))*mebibyte
	if available < required {
		return "", services.WithHint(
			services.Wrap(services.ErrStorageFull, "preprocess", "check free space",
				fmt.Sprintf("%d bytes available, %d required", available, required), nil),
			"free space in staging_dir or lower preprocess.min_free_mib",
		)
	}

	ext := filepath.Ext(media.SourcePath)
	if mime, err := mimetype.DetectFile(media.SourcePath); err == nil && mime.Extension() != "" {
		ext = mime.Extension()
	}
	target := filepath.Join(dir, strconv.Itoa(index)+ext)
	if _, err := fileutil.CopyFile(ctx, media.SourcePath, target); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", classifyIOError("copy media", media.SourcePath, err)
	}
	return target, nil
}

func classifyIOError(op, path string, err error) error {
	switch {
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT):
		return services.WithHint(services.Wrap(services.ErrStorageFull, "preprocess", op, path, err), "free space in staging_dir")
	case errors.Is(err, fs.ErrNotExist):
		return services.Wrap(services.ErrSourceFileMissing, "preprocess", op, path, err)
	default:
		return services.Wrap(services.ErrCustom, "preprocess", op, path, err)
	}
}

func statfsAvailable(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
