package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"webupload/internal/config"
	"webupload/internal/jobstore"
	"webupload/internal/testsupport"
)

func TestStatusShowsRunningEngine(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadOK)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Engine ==")
	requireContains(t, out, "[OK] Idle")
	requireContains(t, out, "Queue is empty")
}

func TestStatusFallsBackWhenEngineIsDown(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadOK)
	missing := filepath.Join(t.TempDir(), "missing.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[ERROR] Not running")
}

func TestSubmitShowAndCancel(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadWait)

	out, _, err := runCLI(t, []string{"submit", "--account", "acct", env.mediaPath}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Queued job")
	fields := strings.Fields(out)
	if len(fields) < 3 {
		t.Fatalf("unexpected submit output %q", out)
	}
	id := fields[2]

	out, _, err = runCLI(t, []string{"show", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	requireContains(t, out, "Account:     acct")
	requireContains(t, out, env.mediaPath)

	out, _, err = runCLI(t, []string{"jobs"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("jobs: %v", err)
	}
	requireContains(t, out, id)

	out, _, err = runCLI(t, []string{"cancel", id}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	requireContains(t, out, "Cancelled job "+id)

	waitFor(t, 10*time.Second, func() bool {
		stored, err := env.daemon.StoredJob(context.Background(), id)
		return err == nil && stored.Status == string(jobstore.StatusCancelled)
	})

	out, _, err = runCLI(t, []string{"jobs", "--status", "cancelled"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("jobs --status: %v", err)
	}
	requireContains(t, out, id)
	requireContains(t, out, "Cancelled")
}

func TestControlCommandsReportEngineErrors(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadOK)

	if _, _, err := runCLI(t, []string{"promote", "missing"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected promote of an unknown job to fail")
	}
	if _, _, err := runCLI(t, []string{"jobs", "--status", "bogus"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOptionsUpdateAndList(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeOptionsOK)

	out, _, err := runCLI(t, []string{"options", "update", "acct"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("options update: %v", err)
	}
	requireContains(t, out, "album")
	requireContains(t, out, "Holidays")

	out, _, err = runCLI(t, []string{"options", "list", "acct"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("options list: %v", err)
	}
	requireContains(t, out, "Holidays")

	if _, _, err := runCLI(t, []string{"options", "update", "acct", "--add", "x"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected --add without an option name to fail")
	}
}

func TestStopWhenEngineIsDown(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadOK)
	missing := filepath.Join(t.TempDir(), "missing.sock")

	out, _, err := runCLI(t, []string{"stop"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Engine is not running")
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected second init to refuse overwrite")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "", ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidateRunsChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithAccount("acct", "photos", "photos-worker"),
		testsupport.WithStubWorker("photos-worker"),
	)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Worker photos:")
	requireContains(t, out, "[OK]")

	cfg.Services["photos"] = config.Service{Worker: "absent-worker"}
	writeTestConfig(t, configPath, cfg)
	out, _, err = runCLI(t, []string{"config", "validate"}, "", configPath)
	if err == nil {
		t.Fatalf("expected failing worker check, got output:\n%s", out)
	}
	requireContains(t, out, "[ERROR]")

	if _, _, err := runCLI(t, []string{"config", "validate", "--no-checks"}, "", configPath); err != nil {
		t.Fatalf("validate --no-checks: %v", err)
	}
}

func TestBuildSubmitRequest(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	req, err := buildSubmitRequest("", []string{"job.toml"})
	if err != nil {
		t.Fatalf("job file: %v", err)
	}
	if req.JobFile != filepath.Join(dir, "job.toml") || len(req.Files) != 0 {
		t.Fatalf("unexpected job file request: %+v", req)
	}

	if _, err := buildSubmitRequest("", []string{"a.jpg"}); err == nil {
		t.Fatal("expected media files without account to fail")
	}

	req, err = buildSubmitRequest(" acct ", []string{"a.jpg", "b.jpg"})
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if req.Account != "acct" || len(req.Files) != 2 || req.Files[1] != filepath.Join(dir, "b.jpg") {
		t.Fatalf("unexpected files request: %+v", req)
	}
}

func TestWrapDialError(t *testing.T) {
	err := wrapDialError(syscall.ENOENT, "/tmp/x.sock")
	requireContains(t, err.Error(), "webupload start")

	err = wrapDialError(syscall.ECONNREFUSED, "/tmp/x.sock")
	requireContains(t, err.Error(), "refused")

	base := errors.New("boom")
	if err := wrapDialError(base, "/tmp/x.sock"); !errors.Is(err, base) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestLogsPrintsTrailingLines(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.ModeUploadOK)
	logPath := filepath.Join(env.cfg.Paths.LogDir, "webuploadd.log")
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}
