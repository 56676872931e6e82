package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"webupload/internal/jobstore"
	"webupload/internal/testsupport"
)

func TestForceKillProcessRefusesSelf(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "webuploadd.pid")
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestForceKillProcessNeedsPID(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "missing.pid")
	if _, err := ForceKillProcess(pidPath, "", 0); err == nil {
		t.Fatal("expected error without a pid")
	}
}

func TestStatusSnapshotFallsBackToStore(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAccount("acct", "photos", "photos-worker"))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewStoredJob(t, cfg, store, "acct", "a.jpg")
	done := testsupport.NewStoredJob(t, cfg, store, "acct", "b.jpg")
	if err := done.MarkDone(context.Background()); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}

	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")
	status, err := StatusSnapshot(context.Background(), socket, cfg)
	if err != nil {
		t.Fatalf("StatusSnapshot: %v", err)
	}
	if status.Running || status.Engine.State != "stopped" {
		t.Fatalf("expected stopped status, got %+v", status.Engine)
	}
	if status.StoredCounts[string(jobstore.StatusQueued)] != 1 || status.StoredCounts[string(jobstore.StatusDone)] != 1 {
		t.Fatalf("unexpected counts: %v", status.StoredCounts)
	}
	if len(status.Checks) == 0 {
		t.Fatal("expected preflight checks in offline status")
	}
}

func TestProcessInfoWithoutSocket(t *testing.T) {
	alive, pid, err := ProcessInfo(filepath.Join(t.TempDir(), "none.sock"))
	if err != nil || alive || pid != 0 {
		t.Fatalf("ProcessInfo = %v %d %v", alive, pid, err)
	}
}

func TestLockHeldProbesWithoutKeeping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webuploadd.lock")
	if lockHeld(path) {
		t.Fatal("unlocked path reported as held")
	}

	holder := flock.New(path)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	defer holder.Unlock()
	if !lockHeld(path) {
		t.Fatal("held lock not detected")
	}
}

func TestLaunchOptionsArgs(t *testing.T) {
	args := LaunchOptions{SocketPath: "/run/w.sock", ConfigPath: " ", Immortal: true}.args()
	want := []string{"--socket", "/run/w.sock", "--immortal"}
	if strings.Join(args, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v, want %v", args, want)
	}
}
