package jobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pelletier/go-toml/v2"

	"webupload/internal/queue"
	"webupload/internal/services"
)

// Submission is the TOML document accepted by `webupload submit`.
type Submission struct {
	Account string            `toml:"account"`
	Media   []SubmissionMedia `toml:"media"`
}

// SubmissionMedia names one file of a submission.
type SubmissionMedia struct {
	Path string `toml:"path"`
}

// ReadSubmission decodes a submission file. Relative media paths are
// resolved against the submission file's directory.
func ReadSubmission(path string) (*Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrSourceFileMissing, "jobstore", "read submission", path, err)
		}
		return nil, fmt.Errorf("read submission: %w", err)
	}
	var sub Submission
	if err := toml.Unmarshal(data, &sub); err != nil {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "read submission", fmt.Sprintf("decode %s", path), err)
	}
	base := filepath.Dir(path)
	for i := range sub.Media {
		p := strings.TrimSpace(sub.Media[i].Path)
		if p != "" && !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		sub.Media[i].Path = p
	}
	return &sub, nil
}

// Paths returns the media paths in submission order.
func (s *Submission) Paths() []string {
	out := make([]string, 0, len(s.Media))
	for _, m := range s.Media {
		out = append(out, m.Path)
	}
	return out
}

// BuildMedia stats and classifies the given files. An item needs processing
// when preprocessing is enabled and its detected type is in processTypes.
func BuildMedia(paths []string, processTypes []string, preprocess bool) ([]queue.Media, error) {
	if len(paths) == 0 {
		return nil, services.Wrap(services.ErrValidation, "jobstore", "build media", "no media files given", nil)
	}
	media := make([]queue.Media, 0, len(paths))
	for _, raw := range paths {
		path, err := filepath.Abs(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", raw, err)
		}
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, services.Wrap(services.ErrSourceFileMissing, "jobstore", "build media", path, err)
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, services.Wrap(services.ErrValidation, "jobstore", "build media", fmt.Sprintf("%s is a directory", path), nil)
		}
		mime, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("detect type of %s: %w", path, err)
		}
		media = append(media, queue.Media{
			SourcePath:      path,
			MimeType:        mime.String(),
			Size:            info.Size(),
			NeedsProcessing: preprocess && matchesType(mime, processTypes),
		})
	}
	return media, nil
}

func matchesType(mime *mimetype.MIME, types []string) bool {
	for _, t := range types {
		if mime.Is(t) {
			return true
		}
	}
	return false
}
