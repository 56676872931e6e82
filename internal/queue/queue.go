package queue

import "slices"

// EventKind classifies head changes.
type EventKind int

const (
	// EventNewHead is emitted when an empty queue gains a job or the head is removed.
	EventNewHead EventKind = iota
	// EventHeadReplaced is emitted when a job is promoted over the current head.
	EventHeadReplaced
	// EventQueueEmpty is emitted when the last job is removed.
	EventQueueEmpty
)

func (k EventKind) String() string {
	switch k {
	case EventNewHead:
		return "new_head"
	case EventHeadReplaced:
		return "head_replaced"
	default:
		return "queue_empty"
	}
}

// Event describes a head change. Previous is set for EventHeadReplaced.
type Event struct {
	Kind     EventKind
	Job      *Job
	Previous *Job
}

// Listener receives queue events synchronously.
type Listener func(Event)

// Queue is an ordered list of jobs with promote-to-front.
type Queue struct {
	jobs         []*Job
	listener     Listener
	constructing map[string]struct{}
}

// New returns an empty queue reporting to listener.
func New(listener Listener) *Queue {
	return &Queue{listener: listener, constructing: make(map[string]struct{})}
}

func (q *Queue) emit(event Event) {
	if q.listener != nil {
		q.listener(event)
	}
}

// Push appends job. Nil and already-queued jobs are rejected.
func (q *Queue) Push(job *Job) bool {
	if job == nil || q.index(job) >= 0 || q.Find(job.ID()) != nil {
		return false
	}
	q.jobs = append(q.jobs, job)
	if len(q.jobs) == 1 {
		q.emit(Event{Kind: EventNewHead, Job: job})
	}
	return true
}

// PromoteToFront moves job to the head. It is a no-op when job is absent or
// already the head.
func (q *Queue) PromoteToFront(job *Job) bool {
	idx := q.index(job)
	if idx <= 0 {
		return false
	}
	previous := q.jobs[0]
	q.jobs = slices.Delete(q.jobs, idx, idx+1)
	q.jobs = slices.Insert(q.jobs, 0, job)
	q.emit(Event{Kind: EventHeadReplaced, Job: job, Previous: previous})
	return true
}

// MoveToBack moves a non-head job to the tail without emitting events.
func (q *Queue) MoveToBack(job *Job) bool {
	idx := q.index(job)
	if idx <= 0 {
		return false
	}
	q.jobs = slices.Delete(q.jobs, idx, idx+1)
	q.jobs = append(q.jobs, job)
	return true
}

// Remove drops job from the queue. Only jobs owned by the queue can be removed.
func (q *Queue) Remove(job *Job) error {
	idx := q.index(job)
	if idx < 0 {
		return ErrNotQueued
	}
	if job.Owner() != OwnerQueue {
		return ErrNotOwned
	}
	q.jobs = slices.Delete(q.jobs, idx, idx+1)
	if idx != 0 {
		return nil
	}
	if len(q.jobs) == 0 {
		q.emit(Event{Kind: EventQueueEmpty})
	} else {
		q.emit(Event{Kind: EventNewHead, Job: q.jobs[0]})
	}
	return nil
}

// NextAfter returns the job queued after job, or nil.
func (q *Queue) NextAfter(job *Job) *Job {
	idx := q.index(job)
	if idx < 0 || idx+1 >= len(q.jobs) {
		return nil
	}
	return q.jobs[idx+1]
}

// Head returns the first job, or nil.
func (q *Queue) Head() *Job {
	if len(q.jobs) == 0 {
		return nil
	}
	return q.jobs[0]
}

// IsHead reports whether job is the head.
func (q *Queue) IsHead(job *Job) bool {
	return job != nil && q.Head() == job
}

func (q *Queue) Len() int { return len(q.jobs) }

// Jobs returns the jobs in order. The slice is a copy.
func (q *Queue) Jobs() []*Job {
	return slices.Clone(q.jobs)
}

// Find returns the queued job with id, or nil.
func (q *Queue) Find(id string) *Job {
	for _, job := range q.jobs {
		if job.ID() == id {
			return job
		}
	}
	return nil
}

// BeginConstruction reserves sourcePath while its descriptor is built. It
// fails when the path is already reserved or queued.
func (q *Queue) BeginConstruction(sourcePath string) bool {
	if q.Contains(sourcePath) {
		return false
	}
	q.constructing[sourcePath] = struct{}{}
	return true
}

// EndConstruction releases a reservation made by BeginConstruction.
func (q *Queue) EndConstruction(sourcePath string) {
	delete(q.constructing, sourcePath)
}

// Contains reports whether sourcePath is being constructed or already queued.
func (q *Queue) Contains(sourcePath string) bool {
	if sourcePath == "" {
		return false
	}
	if _, ok := q.constructing[sourcePath]; ok {
		return true
	}
	for _, job := range q.jobs {
		if job.Descriptor().SourcePath() == sourcePath {
			return true
		}
	}
	return false
}

// ForeignOwned returns the jobs not owned by the queue. At most one is
// expected at any time.
func (q *Queue) ForeignOwned() []*Job {
	var out []*Job
	for _, job := range q.jobs {
		if job.Owner() != OwnerQueue {
			out = append(out, job)
		}
	}
	return out
}

func (q *Queue) index(job *Job) int {
	if job == nil {
		return -1
	}
	return slices.Index(q.jobs, job)
}
