package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webupload/internal/daemon"
	"webupload/internal/ipc"
	"webupload/internal/logging"
	"webupload/internal/testsupport"
)

func TestHelperProcess(t *testing.T) {
	testsupport.RunFakeWorkerIfHelper()
}

func startServer(t *testing.T, mode string) (*daemon.Daemon, *ipc.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t,
		testsupport.WithAccount("acct", "photos", "photos-worker"),
		testsupport.WithStubWorker("photos-worker"),
	)
	cfg.Engine.Immortal = true
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	record := filepath.Join(testsupport.BaseDir(cfg), "worker.log")
	logger := logging.NewNop()

	d, err := daemon.New(cfg, store, logger, daemon.Options{
		Command: testsupport.HelperCommand("TestHelperProcess", mode, record),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	socket := filepath.Join(cfg.Paths.LogDir, "webupload.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	media := filepath.Join(testsupport.BaseDir(cfg), "in", "a.bin")
	testsupport.WriteFile(t, media, 512)
	return d, client, media
}

func waitLive(t *testing.T, client *ipc.Client, what string, pred func(*ipc.JobsResponse) bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := client.Jobs(false)
		if err != nil {
			t.Fatalf("Jobs: %v", err)
		}
		if pred(resp) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %+v", what, resp.Live)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIPCServerClient(t *testing.T) {
	d, client, media := startServer(t, testsupport.ModeUploadWait)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Status.Running {
		t.Fatal("expected daemon to report running")
	}

	submitted, err := client.Submit(ipc.SubmitRequest{Account: "acct", Files: []string{media}})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	id := submitted.Job.ID
	if id == "" {
		t.Fatal("expected job id")
	}
	if _, err := client.Submit(ipc.SubmitRequest{Account: "acct", Files: []string{media}}); err == nil {
		t.Fatal("expected duplicate submission to fail")
	}

	waitLive(t, client, "upload", func(resp *ipc.JobsResponse) bool {
		return len(resp.Live) == 1 && resp.Live[0].Owner == "upload_worker"
	})

	show, err := client.Show(id)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if show.Live == nil || show.Stored == nil || show.Stored.Status != "queued" {
		t.Fatalf("unexpected show response: %+v", show)
	}

	if _, err := client.Repair(id); err == nil || !strings.Contains(err.Error(), "not awaiting repair") {
		t.Fatalf("expected repair of a healthy job to fail, got %v", err)
	}

	resp, err := client.Cancel(id)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !resp.Applied || resp.ID != id {
		t.Fatalf("unexpected cancel response: %+v", resp)
	}
	waitLive(t, client, "cancellation", func(resp *ipc.JobsResponse) bool {
		return len(resp.Live) == 0
	})

	jobs, err := client.Jobs(true, "cancelled")
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs.Stored) != 1 || jobs.Stored[0].ID != id {
		t.Fatalf("expected cancelled job in store, got %+v", jobs.Stored)
	}
	if _, err := client.Jobs(true, "bogus"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}

	if _, err := client.Show("missing"); err == nil {
		t.Fatal("expected unknown job to fail")
	}

	if _, err := client.Shutdown("test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop after shutdown")
	}
}

func TestIPCOptions(t *testing.T) {
	_, client, _ := startServer(t, testsupport.ModeOptionsOK)

	updated, err := client.OptionsUpdate(ipc.OptionsUpdateRequest{Account: "acct", Option: "album", Value: "Trips"})
	if err != nil {
		t.Fatalf("OptionsUpdate: %v", err)
	}
	if len(updated.Changes) != 1 || updated.Changes[0].Value != "Trips" {
		t.Fatalf("unexpected changes: %+v", updated.Changes)
	}

	list, err := client.OptionsList("acct")
	if err != nil {
		t.Fatalf("OptionsList: %v", err)
	}
	if len(list.Options) != 1 || list.Options[0].Name != "album" || list.Options[0].Type != "string" {
		t.Fatalf("unexpected options: %+v", list.Options)
	}
}
