package testsupport

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"webupload/internal/config"
	"webupload/internal/jobstore"
	"webupload/internal/queue"
)

// MustOpenStore opens a jobstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobstore.Store {
	t.Helper()

	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("jobstore.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewStoredJob writes size-byte files under the test base directory and
// stores a queued job for account covering them.
func NewStoredJob(t testing.TB, cfg *config.Config, store *jobstore.Store, account string, names ...string) *jobstore.Descriptor {
	t.Helper()

	media := make([]queue.Media, 0, len(names))
	for _, name := range names {
		path := filepath.Join(BaseDir(cfg), "media", name)
		WriteFile(t, path, 1024)
		media = append(media, queue.Media{SourcePath: path, Size: 1024, MimeType: "application/octet-stream"})
	}
	desc, err := store.Create(context.Background(), jobstore.NewJob{
		SourcePath: filepath.Join(BaseDir(cfg), "media", strings.Join(names, "+")),
		Account:    account,
		Media:      media,
	})
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return desc
}
