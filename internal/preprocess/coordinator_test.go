package preprocess_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"webupload/internal/logging"
	"webupload/internal/preprocess"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/testsupport"
)

type fakePreprocessor struct {
	dir   string
	mu    sync.Mutex
	calls []int
	fail  map[int]error
	block bool
}

func (f *fakePreprocessor) Process(ctx context.Context, desc queue.Descriptor, index int) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, index)
	failure := f.fail[index]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failure != nil {
		return "", failure
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%s-%d", desc.ID(), index))
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakePreprocessor) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type harness struct {
	coord   *preprocess.Coordinator
	results chan preprocess.Result
}

func newHarness(pre preprocess.Preprocessor) *harness {
	results := make(chan preprocess.Result, 8)
	coord := preprocess.New(preprocess.Options{
		Preprocessor: pre,
		Post:         func(r preprocess.Result) { results <- r },
		Logger:       logging.NewNop(),
	})
	return &harness{coord: coord, results: results}
}

// drive feeds results to the coordinator until it reports something other
// than progress.
func (h *harness) drive(t *testing.T) preprocess.Outcome {
	t.Helper()
	for {
		select {
		case res := <-h.results:
			out := h.coord.Handle(res)
			if out.Kind != preprocess.OutcomeProgress {
				return out
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for preprocessing result")
		}
	}
}

func mediaNeedingProcessing(n int) []queue.Media {
	media := make([]queue.Media, n)
	for i := range media {
		media[i] = queue.Media{SourcePath: fmt.Sprintf("/src/%d.jpg", i), Size: 10, NeedsProcessing: true}
	}
	return media
}

func TestCoordinatorProcessesItemsInOrder(t *testing.T) {
	pre := &fakePreprocessor{dir: t.TempDir()}
	h := newHarness(pre)

	media := mediaNeedingProcessing(3)
	media[1].NeedsProcessing = false
	desc := testsupport.NewMemDescriptor("a", "acct", media...)
	job := queue.NewJob(desc)
	if job.Processed() {
		t.Fatal("job should start unprocessed")
	}

	if !h.coord.Start(job) {
		t.Fatal("Start returned false")
	}
	if job.Owner() != queue.OwnerPreprocessor {
		t.Fatalf("owner = %s, want preprocessor", job.Owner())
	}

	out := h.drive(t)
	if out.Kind != preprocess.OutcomeDone || out.Job != job {
		t.Fatalf("outcome = %+v", out)
	}
	if !job.Processed() || job.Owner() != queue.OwnerQueue || !h.coord.Idle() {
		t.Fatalf("processed=%v owner=%s idle=%v", job.Processed(), job.Owner(), h.coord.Idle())
	}
	calls := pre.Calls()
	if len(calls) != 2 || calls[0] != 0 || calls[1] != 2 {
		t.Fatalf("calls = %v, want [0 2]", calls)
	}
	if desc.Media(2).ProcessedPath == "" {
		t.Fatal("processed path not recorded")
	}
}

func TestCoordinatorSingleJobAtATime(t *testing.T) {
	pre := &fakePreprocessor{dir: t.TempDir(), block: true}
	h := newHarness(pre)

	first := queue.NewJob(testsupport.NewMemDescriptor("a", "acct", mediaNeedingProcessing(1)...))
	second := queue.NewJob(testsupport.NewMemDescriptor("b", "acct", mediaNeedingProcessing(1)...))
	if !h.coord.Start(first) {
		t.Fatal("first Start failed")
	}
	if h.coord.Start(second) {
		t.Fatal("second Start should be rejected while busy")
	}
	if h.coord.Stop(second) {
		t.Fatal("Stop for a job not being driven should be a no-op")
	}
	if !h.coord.Stop(nil) {
		t.Fatal("Stop(nil) should stop the current job")
	}
	out := h.drive(t)
	if out.Kind != preprocess.OutcomeStopped || out.Job != first {
		t.Fatalf("outcome = %+v", out)
	}
	if first.Owner() != queue.OwnerQueue || first.StopRequested() {
		t.Fatalf("owner=%s stopRequested=%v after stop", first.Owner(), first.StopRequested())
	}
}

func TestCoordinatorClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{name: "storage", err: services.Wrap(services.ErrStorageFull, "test", "copy", "", nil), want: services.KindStorageFull},
		{name: "missing", err: services.Wrap(services.ErrSourceFileMissing, "test", "stat", "", nil), want: services.KindSourceFileMissing},
		{name: "generic", err: errors.New("boom"), want: services.KindCustom},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pre := &fakePreprocessor{dir: t.TempDir(), fail: map[int]error{1: tc.err}}
			h := newHarness(pre)
			job := queue.NewJob(testsupport.NewMemDescriptor("a", "acct", mediaNeedingProcessing(3)...))
			h.coord.Start(job)

			out := h.drive(t)
			if out.Kind != preprocess.OutcomeFailed {
				t.Fatalf("outcome = %s, want failed", out.Kind)
			}
			if got := services.KindOf(out.Err); got != tc.want {
				t.Fatalf("kind = %s, want %s", got, tc.want)
			}
			if calls := pre.Calls(); len(calls) != 2 {
				t.Fatalf("no items should run after a failure, calls=%v", calls)
			}
			if job.Processed() {
				t.Fatal("failed job must not be processed")
			}
		})
	}
}

func TestCoordinatorCancelledJobStopsAfterCurrentItem(t *testing.T) {
	pre := &fakePreprocessor{dir: t.TempDir()}
	h := newHarness(pre)
	job := queue.NewJob(testsupport.NewMemDescriptor("a", "acct", mediaNeedingProcessing(3)...))
	h.coord.Start(job)
	job.MarkCancelled()

	out := h.drive(t)
	if out.Kind != preprocess.OutcomeStopped {
		t.Fatalf("outcome = %s, want stopped", out.Kind)
	}
	if calls := pre.Calls(); len(calls) != 1 {
		t.Fatalf("calls = %v, want only the in-flight item", calls)
	}
	if job.Descriptor().Media(0).ProcessedPath == "" {
		t.Fatal("the finished item should still be recorded")
	}
}

func TestCoordinatorNothingToProcess(t *testing.T) {
	h := newHarness(&fakePreprocessor{dir: t.TempDir()})
	job := queue.NewJob(testsupport.NewMemDescriptor("a", "acct", queue.Media{SourcePath: "/x", Size: 1}))
	job.SetProcessed(false)
	h.coord.Start(job)

	out := h.drive(t)
	if out.Kind != preprocess.OutcomeDone || !job.Processed() {
		t.Fatalf("outcome=%s processed=%v", out.Kind, job.Processed())
	}
}

func TestCoordinatorIgnoresStaleResults(t *testing.T) {
	h := newHarness(&fakePreprocessor{dir: t.TempDir()})
	job := queue.NewJob(testsupport.NewMemDescriptor("a", "acct", mediaNeedingProcessing(1)...))
	out := h.coord.Handle(preprocess.Result{Job: job, Index: 0, Path: "/tmp/x"})
	if out.Kind != preprocess.OutcomeIgnored {
		t.Fatalf("outcome = %s, want ignored", out.Kind)
	}
}
