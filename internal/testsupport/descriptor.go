package testsupport

import (
	"context"
	"sync"

	"webupload/internal/queue"
)

// MemDescriptor is an in-memory queue.Descriptor for tests.
type MemDescriptor struct {
	mu          sync.Mutex
	id          string
	source      string
	path        string
	account     string
	media       []queue.Media
	maxAttempts int
	attempts    int

	Cancelled bool
	Done      bool
	Failures  []error
}

// NewMemDescriptor builds a descriptor with one item per media entry.
func NewMemDescriptor(id, account string, media ...queue.Media) *MemDescriptor {
	return &MemDescriptor{
		id:          id,
		source:      "/src/" + id,
		path:        "/jobs/" + id + ".toml",
		account:     account,
		media:       media,
		maxAttempts: 3,
	}
}

// WithMaxAttempts sets how many failures are retryable.
func (d *MemDescriptor) WithMaxAttempts(n int) *MemDescriptor {
	d.maxAttempts = n
	return d
}

// WithPath overrides the job file path.
func (d *MemDescriptor) WithPath(path string) *MemDescriptor {
	d.path = path
	return d
}

func (d *MemDescriptor) ID() string         { return d.id }
func (d *MemDescriptor) SourcePath() string { return d.source }
func (d *MemDescriptor) Path() string       { return d.path }
func (d *MemDescriptor) Account() string    { return d.account }

func (d *MemDescriptor) MediaCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.media)
}

func (d *MemDescriptor) Media(index int) queue.Media {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index < 0 || index >= len(d.media) {
		return queue.Media{}
	}
	return d.media[index]
}

func (d *MemDescriptor) MediaSentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	count := 0
	for _, m := range d.media {
		if m.Sent {
			count++
		}
	}
	return count
}

func (d *MemDescriptor) TotalSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, m := range d.media {
		total += m.Size
	}
	return total
}

func (d *MemDescriptor) UnsentSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total int64
	for _, m := range d.media {
		if !m.Sent {
			total += m.Size
		}
	}
	return total
}

func (d *MemDescriptor) SetProcessedPath(_ context.Context, index int, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if index >= 0 && index < len(d.media) {
		d.media[index].ProcessedPath = path
	}
	return nil
}

func (d *MemDescriptor) MarkSent(_ context.Context, index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < index && i < len(d.media); i++ {
		d.media[i].Sent = true
	}
	return nil
}

func (d *MemDescriptor) Cancel(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Cancelled = true
	return nil
}

func (d *MemDescriptor) Persist(context.Context) error { return nil }

func (d *MemDescriptor) MarkFailed(_ context.Context, err error) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	d.Failures = append(d.Failures, err)
	return d.attempts < d.maxAttempts, nil
}

func (d *MemDescriptor) Requeue(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = 0
	return nil
}

func (d *MemDescriptor) MarkDone(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.media {
		d.media[i].Sent = true
	}
	d.Done = true
	return nil
}

// State returns the cancelled and done flags under the lock.
func (d *MemDescriptor) State() (cancelled, done bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Cancelled, d.Done
}

var _ queue.Descriptor = (*MemDescriptor)(nil)
