package jobstore_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"webupload/internal/jobstore"
	"webupload/internal/services"
	"webupload/internal/testsupport"
	"webupload/internal/wire"
)

func TestCreateWritesRowAndJobFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	desc := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg", "b.jpg")
	if desc.Status() != jobstore.StatusQueued {
		t.Fatalf("status = %s, want queued", desc.Status())
	}
	if desc.MediaCount() != 2 || desc.TotalSize() != 2048 {
		t.Fatalf("media=%d size=%d", desc.MediaCount(), desc.TotalSize())
	}
	if filepath.Dir(desc.Path()) != cfg.JobFilesDir() {
		t.Fatalf("job file %s not under %s", desc.Path(), cfg.JobFilesDir())
	}

	file, err := jobstore.ReadJobFile(desc.Path())
	if err != nil {
		t.Fatalf("ReadJobFile: %v", err)
	}
	if file.ID != desc.ID() || file.Account != "acct" || len(file.Media) != 2 {
		t.Fatalf("unexpected job file %+v", file)
	}

	loaded, err := store.Get(context.Background(), desc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.MediaCount() != 2 || loaded.Media(1).SourcePath != desc.Media(1).SourcePath {
		t.Fatalf("loaded media mismatch: %+v", loaded.Media(1))
	}
}

func TestCreateRejectsEmptyJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	_, err := store.Create(context.Background(), jobstore.NewJob{Account: "acct"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkFailedStopsRetryingAtLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Engine.MaxAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	desc := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg")
	failure := services.WithHint(services.Wrap(services.ErrServiceRejected, "worker", "upload", "quota", nil), "free space")

	retry, err := desc.MarkFailed(ctx, failure)
	if err != nil || !retry {
		t.Fatalf("first MarkFailed = %v, %v", retry, err)
	}
	retry, err = desc.MarkFailed(ctx, failure)
	if err != nil || retry {
		t.Fatalf("second MarkFailed = %v, %v", retry, err)
	}

	loaded, err := store.Get(ctx, desc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Status() != jobstore.StatusFailed || loaded.Attempts() != 2 {
		t.Fatalf("status=%s attempts=%d", loaded.Status(), loaded.Attempts())
	}
	last := loaded.LastError()
	if last.Kind != services.KindServiceRejected.String() || last.Hint != "free space" {
		t.Fatalf("unexpected last error %+v", last)
	}

	if err := desc.Requeue(ctx); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	loaded, _ = store.Get(ctx, desc.ID())
	if loaded.Status() != jobstore.StatusQueued || loaded.Attempts() != 0 {
		t.Fatalf("after requeue status=%s attempts=%d", loaded.Status(), loaded.Attempts())
	}
}

func TestMarkSentAndDone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	desc := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg", "b.jpg", "c.jpg")
	if err := desc.MarkSent(ctx, 2); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if desc.MediaSentCount() != 2 || desc.UnsentSize() != 1024 {
		t.Fatalf("sent=%d unsent=%d", desc.MediaSentCount(), desc.UnsentSize())
	}
	file, err := jobstore.ReadJobFile(desc.Path())
	if err != nil {
		t.Fatalf("ReadJobFile: %v", err)
	}
	if !file.Media[1].Sent || file.Media[2].Sent {
		t.Fatalf("job file sent flags wrong: %+v", file.Media)
	}

	if err := desc.MarkDone(ctx); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if _, err := os.Stat(desc.Path()); !os.IsNotExist(err) {
		t.Fatalf("job file should be removed, stat err=%v", err)
	}
	unfinished, err := store.ListUnfinished(ctx)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(unfinished) != 0 {
		t.Fatalf("expected no unfinished jobs, got %d", len(unfinished))
	}
}

func TestSetProcessedPathChangesUploadPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	desc := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg")
	staged := filepath.Join(cfg.Paths.StagingDir, "a.jpg")
	if err := desc.SetProcessedPath(ctx, 0, staged); err != nil {
		t.Fatalf("SetProcessedPath: %v", err)
	}
	if err := desc.SetProcessedPath(ctx, 5, staged); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("out of range index should fail validation, got %v", err)
	}

	loaded, err := store.Get(ctx, desc.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded.Media(0).UploadPath() != staged {
		t.Fatalf("upload path = %s, want %s", loaded.Media(0).UploadPath(), staged)
	}
	file, _ := jobstore.ReadJobFile(desc.Path())
	if file.Media[0].Path != staged || file.Media[0].Original == "" {
		t.Fatalf("job file entry = %+v", file.Media[0])
	}
}

func TestListUnfinishedOldestFirstAndCancel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg")
	time.Sleep(2 * time.Millisecond)
	second := testsupport.NewStoredJob(t, cfg, store, "acct", "b.jpg")
	time.Sleep(2 * time.Millisecond)
	third := testsupport.NewStoredJob(t, cfg, store, "acct", "c.jpg")
	if _, err := second.MarkFailed(ctx, services.ErrConnectivityLost); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := third.MarkDone(ctx); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	unfinished, err := store.ListUnfinished(ctx)
	if err != nil {
		t.Fatalf("ListUnfinished: %v", err)
	}
	if len(unfinished) != 2 || unfinished[0].ID() != first.ID() || unfinished[1].ID() != second.ID() {
		t.Fatalf("unexpected unfinished order")
	}

	count, err := store.CancelUnfinished(ctx)
	if err != nil || count != 2 {
		t.Fatalf("CancelUnfinished = %d, %v", count, err)
	}
	summaries, err := store.Summaries(ctx, jobstore.StatusCancelled)
	if err != nil {
		t.Fatalf("Summaries: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 cancelled summaries, got %d", len(summaries))
	}
}

func TestPruneFinished(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	done := testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg")
	keep := testsupport.NewStoredJob(t, cfg, store, "acct", "b.jpg")
	if err := done.MarkDone(ctx); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	pruned, err := store.PruneFinished(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("PruneFinished: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("pruned = %d, want 1", pruned)
	}
	if _, err := store.Get(ctx, keep.ID()); err != nil {
		t.Fatalf("queued job should survive: %v", err)
	}
}

func TestOpenRejectsForeignSchemaVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := jobstore.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", cfg.DatabasePath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	db.Close()

	if _, err := jobstore.Open(cfg); !errors.Is(err, jobstore.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestOptionsUpsertAndList(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	changes := []wire.OptionValueChanged{
		{Name: "album", Value: wire.StringVariant("Summer"), MediaIndex: -1},
		{Name: "public", Value: wire.BoolVariant(true), MediaIndex: -1},
		{Name: "album", Value: wire.StringVariant("Winter"), MediaIndex: -1},
		{Name: "quota", Value: wire.IntVariant(12), MediaIndex: -1},
	}
	for _, change := range changes {
		if err := store.SaveOption(ctx, "acct", change); err != nil {
			t.Fatalf("SaveOption: %v", err)
		}
	}
	options, err := store.ListOptions(ctx, "acct")
	if err != nil {
		t.Fatalf("ListOptions: %v", err)
	}
	if len(options) != 3 {
		t.Fatalf("expected 3 options, got %d", len(options))
	}
	if options[0].Name != "album" || options[0].Value.Str != "Winter" {
		t.Fatalf("album not upserted: %+v", options[0])
	}
	if options[1].Value.Type != wire.VariantBool || !options[1].Value.Bool {
		t.Fatalf("public = %+v", options[1].Value)
	}
	if options[2].Value.Int != 12 {
		t.Fatalf("quota = %+v", options[2].Value)
	}
	if err := store.SaveOption(ctx, "", changes[0]); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildMediaDetectsTypes(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "pic.png")
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	if err := os.WriteFile(png, pngHeader, 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello world\n"), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}

	media, err := jobstore.BuildMedia([]string{png, txt}, []string{"image/png"}, true)
	if err != nil {
		t.Fatalf("BuildMedia: %v", err)
	}
	if media[0].MimeType != "image/png" || !media[0].NeedsProcessing {
		t.Fatalf("png entry = %+v", media[0])
	}
	if media[1].NeedsProcessing {
		t.Fatalf("text entry should not need processing: %+v", media[1])
	}

	media, err = jobstore.BuildMedia([]string{png}, []string{"image/png"}, false)
	if err != nil || media[0].NeedsProcessing {
		t.Fatalf("preprocess disabled should skip processing: %+v %v", media, err)
	}

	_, err = jobstore.BuildMedia([]string{filepath.Join(dir, "missing.jpg")}, nil, true)
	if services.KindOf(err) != services.KindSourceFileMissing {
		t.Fatalf("expected source file missing, got %v", err)
	}
}

func TestReadSubmissionResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "job.toml")
	content := "account = \"acct\"\n\n[[media]]\npath = \"a.jpg\"\n\n[[media]]\npath = \"/abs/b.jpg\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write submission: %v", err)
	}
	sub, err := jobstore.ReadSubmission(path)
	if err != nil {
		t.Fatalf("ReadSubmission: %v", err)
	}
	paths := sub.Paths()
	if sub.Account != "acct" || paths[0] != filepath.Join(dir, "a.jpg") || paths[1] != "/abs/b.jpg" {
		t.Fatalf("unexpected submission %+v", sub)
	}
}
