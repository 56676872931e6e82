package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"webupload/internal/logging"
)

func noneLive(string) bool { return false }

func TestSweepIgnoresMissingOrBlankDir(t *testing.T) {
	for _, dir := range []string{"", "   ", filepath.Join(t.TempDir(), "absent")} {
		result := Sweep(context.Background(), dir, noneLive, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Failed) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", dir, result)
		}
	}
}

func TestSweepKeepsLiveJobsAndForeignEntries(t *testing.T) {
	dir := t.TempDir()
	for _, id := range []string{"a", "b", "c"} {
		if err := os.MkdirAll(JobDir(dir, id), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	foreign := filepath.Join(dir, "keep-me")
	if err := os.Mkdir(foreign, 0o755); err != nil {
		t.Fatalf("mkdir foreign: %v", err)
	}
	stray := filepath.Join(dir, "job-file")
	if err := os.WriteFile(stray, []byte("x"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	result := Sweep(context.Background(), dir, func(id string) bool { return id == "b" }, nil)
	if len(result.Removed) != 2 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	for _, keep := range []string{JobDir(dir, "b"), foreign, stray} {
		if _, err := os.Stat(keep); err != nil {
			t.Fatalf("%s should survive: %v", keep, err)
		}
	}
	if _, err := os.Stat(JobDir(dir, "a")); !os.IsNotExist(err) {
		t.Fatalf("orphaned job dir should be gone: %v", err)
	}
}

func TestSweepStopsWhenContextDone(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(JobDir(dir, "a"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if result := Sweep(ctx, dir, noneLive, nil); len(result.Removed) != 0 {
		t.Fatalf("cancelled sweep removed %v", result.Removed)
	}
}

func TestRemoveJob(t *testing.T) {
	dir := t.TempDir()
	jobDir := JobDir(dir, "x")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "0.jpg"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RemoveJob(dir, "x"); err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("job dir should be gone: %v", err)
	}
	if err := RemoveJob(dir, " "); err != nil {
		t.Fatalf("blank job id should be a no-op: %v", err)
	}
}
