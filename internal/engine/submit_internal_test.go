package engine

import (
	"errors"
	"testing"

	"webupload/internal/accounts"
	"webupload/internal/preprocess"
	"webupload/internal/queue"
	"webupload/internal/testsupport"
)

func newIdleEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	e, err := New(Options{
		Config:       cfg,
		Store:        testsupport.MustOpenStore(t, cfg),
		Resolver:     accounts.NewResolver(cfg),
		Preprocessor: preprocess.NewCopyPreprocessor(cfg.Paths.StagingDir, 0),
		Immortal:     true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.upload.Close)
	return e
}

func TestAbandonedReservationIsReleased(t *testing.T) {
	e := newIdleEngine(t)

	reply := make(chan error, 1)
	e.handle(reserveInput{source: "/media/a.jpg", reply: reply})
	e.handle(releaseInput{source: "/media/a.jpg", pending: reply})

	if e.constructing != 0 {
		t.Fatalf("expected no reservations left, got %d", e.constructing)
	}
	if e.queue.Contains("/media/a.jpg") {
		t.Fatal("source should be free after the abandoned reservation is released")
	}
}

func TestRejectedReservationIsNotReleased(t *testing.T) {
	e := newIdleEngine(t)

	granted := make(chan error, 1)
	e.handle(reserveInput{source: "/media/a.jpg", reply: granted})
	if err := <-granted; err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	rejected := make(chan error, 1)
	e.handle(reserveInput{source: "/media/a.jpg", reply: rejected})
	e.handle(releaseInput{source: "/media/a.jpg", pending: rejected})

	if e.constructing != 1 {
		t.Fatalf("expected the granted reservation to remain, got %d", e.constructing)
	}
	if !e.queue.Contains("/media/a.jpg") {
		t.Fatal("granted reservation should still guard the source")
	}
}

func TestRejectedPushCancelsDescriptor(t *testing.T) {
	e := newIdleEngine(t)
	kept := testsupport.NewMemDescriptor("job-1", "acct", queue.Media{SourcePath: "/media/a.jpg", Size: 1})

	first := make(chan pushReply, 1)
	e.handle(pushInput{desc: kept, reply: first, cancelOnReject: true})
	if res := <-first; res.err != nil {
		t.Fatalf("first push: %v", res.err)
	}
	if cancelled, _ := kept.State(); cancelled {
		t.Fatal("accepted push must not cancel the descriptor")
	}

	e.shuttingDown = true
	late := testsupport.NewMemDescriptor("job-2", "acct", queue.Media{SourcePath: "/media/b.jpg", Size: 1})
	reply := make(chan pushReply, 1)
	e.handle(pushInput{desc: late, reply: reply, cancelOnReject: true})
	if res := <-reply; !errors.Is(res.err, ErrShuttingDown) {
		t.Fatalf("expected shutting down, got %v", res.err)
	}
	if cancelled, _ := late.State(); !cancelled {
		t.Fatal("rejected push should cancel the descriptor")
	}
}
