package daemon_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"webupload/internal/config"
	"webupload/internal/daemon"
	"webupload/internal/engine"
	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/testsupport"
)

func TestHelperProcess(t *testing.T) {
	testsupport.RunFakeWorkerIfHelper()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAccount("acct", "photos", "photos-worker"),
		testsupport.WithStubWorker("photos-worker"),
	)
	cfg.Engine.Immortal = true
	return cfg
}

func newDaemon(t *testing.T, cfg *config.Config, mode string) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, cfg)
	record := filepath.Join(testsupport.BaseDir(cfg), "worker.log")
	d, err := daemon.New(cfg, store, logging.NewNop(), daemon.Options{
		Command: testsupport.HelperCommand("TestHelperProcess", mode, record),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, testsupport.ModeUploadOK)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Engine.State != "idle" {
		t.Fatalf("engine state = %q, want idle", status.Engine.State)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}
	status, err = d.Status(ctx)
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running || status.Engine.State != "stopped" {
		t.Fatalf("expected stopped daemon, got %+v", status)
	}
}

func TestLockPreventsSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIBind = ""
	first := newDaemon(t, cfg, testsupport.ModeUploadOK)
	second := newDaemon(t, cfg, testsupport.ModeUploadOK)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		t.Fatal("expected lock conflict")
	}
}

func TestSubmitUploadsAndRecordsDone(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, testsupport.ModeUploadOK)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	media := filepath.Join(testsupport.BaseDir(cfg), "in", "a.bin")
	testsupport.WriteFile(t, media, 2048)
	item, err := d.Submit(ctx, engine.SubmitRequest{Account: "acct", Files: []string{media}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		stored, err := d.StoredJob(ctx, item.ID)
		if err != nil {
			t.Fatalf("StoredJob: %v", err)
		}
		if stored.Status == string(jobstore.StatusDone) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never finished: %+v", stored)
		}
		time.Sleep(20 * time.Millisecond)
	}

	status, err := d.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Jobs) != 0 || status.StoredCounts[string(jobstore.StatusDone)] != 1 {
		t.Fatalf("unexpected status: jobs=%d counts=%v", len(status.Jobs), status.StoredCounts)
	}
}

func TestAPIServerRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.APIToken = "secret"
	d := newDaemon(t, cfg, testsupport.ModeUploadOK)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := d.APIAddress()
	if addr == "" {
		t.Fatal("expected api server to listen")
	}

	get := func(path, token string) int {
		req, err := http.NewRequest(http.MethodGet, "http://"+addr+path, nil)
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/api/health", ""); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if code := get("/api/status", ""); code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", code)
	}
	if code := get("/api/status", "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("status with wrong token = %d", code)
	}
	if code := get("/api/jobs", "secret"); code != http.StatusOK {
		t.Fatalf("jobs with token = %d", code)
	}
}

func TestUpdateOptionsCachesValues(t *testing.T) {
	cfg := testConfig(t)
	d := newDaemon(t, cfg, testsupport.ModeOptionsOK)
	ctx := context.Background()

	res, err := d.UpdateOptions(ctx, "acct", "", "")
	if err != nil {
		t.Fatalf("UpdateOptions: %v", err)
	}
	if len(res.Changes) != 1 || res.Changes[0].Name != "album" {
		t.Fatalf("unexpected changes: %+v", res.Changes)
	}

	opts, err := d.ListOptions(ctx, "acct")
	if err != nil {
		t.Fatalf("ListOptions: %v", err)
	}
	if len(opts) != 1 || opts[0].Value != "Holidays" {
		t.Fatalf("unexpected options: %+v", opts)
	}

	if _, err := d.UpdateOptions(ctx, "acct", "", "value"); err == nil {
		t.Fatal("expected a value without option name to be rejected")
	}
}
