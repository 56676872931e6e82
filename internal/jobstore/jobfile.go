package jobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// JobFile is the TOML document a worker reads after StartUpload.
type JobFile struct {
	ID        string         `toml:"id"`
	Account   string         `toml:"account"`
	Source    string         `toml:"source"`
	CreatedAt time.Time      `toml:"created_at"`
	Attempts  int            `toml:"attempts"`
	Media     []JobFileMedia `toml:"media"`
}

// JobFileMedia is one entry of a job file.
type JobFileMedia struct {
	Index    int    `toml:"index"`
	Path     string `toml:"path"`
	Original string `toml:"original,omitempty"`
	MimeType string `toml:"mime_type,omitempty"`
	Size     int64  `toml:"size"`
	Sent     bool   `toml:"sent"`
}

// ReadJobFile decodes a job file from disk.
func ReadJobFile(path string) (*JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var file JobFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode job file %s: %w", path, err)
	}
	return &file, nil
}

func (d *Descriptor) jobFileContents() JobFile {
	d.mu.Lock()
	defer d.mu.Unlock()
	file := JobFile{
		ID:        d.id,
		Account:   d.account,
		Source:    d.sourcePath,
		CreatedAt: d.createdAt,
		Attempts:  d.attempts,
		Media:     make([]JobFileMedia, 0, len(d.media)),
	}
	for idx, m := range d.media {
		entry := JobFileMedia{
			Index:    idx,
			Path:     m.UploadPath(),
			MimeType: m.MimeType,
			Size:     m.Size,
			Sent:     m.Sent,
		}
		if m.ProcessedPath != "" {
			entry.Original = m.SourcePath
		}
		file.Media = append(file.Media, entry)
	}
	return file
}

// writeJobFile rewrites the job file atomically.
func (d *Descriptor) writeJobFile() error {
	data, err := toml.Marshal(d.jobFileContents())
	if err != nil {
		return fmt.Errorf("encode job file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(d.jobFile), 0o755); err != nil {
		return fmt.Errorf("create job file directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(d.jobFile), ".job-*.toml")
	if err != nil {
		return fmt.Errorf("create job file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write job file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close job file: %w", err)
	}
	if err := os.Rename(tmpName, d.jobFile); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("install job file: %w", err)
	}
	return nil
}
