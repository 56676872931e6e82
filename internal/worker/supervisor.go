package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"webupload/internal/logging"
	"webupload/internal/services"
	"webupload/internal/wire"
)

// DefaultStopTimeout is how long a stopping worker may run before it is killed.
const DefaultStopTimeout = 3 * time.Second

// exitGrace is how long a worker may outlive its closed stdout before the
// unit is settled without waiting for the exit status.
const exitGrace = 250 * time.Millisecond

// Tag describes the supervisor's current handle.
type Tag int

const (
	TagNone Tag = iota
	TagActive
	TagExiting
)

func (t Tag) String() string {
	switch t {
	case TagActive:
		return "active"
	case TagExiting:
		return "exiting"
	default:
		return "none"
	}
}

// EventKind classifies a supervisor event.
type EventKind int

const (
	EventMessage EventKind = iota
	EventDone
	EventStopped
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventDone:
		return "done"
	case EventStopped:
		return "stopped"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is delivered for every non-terminal worker message and once per unit
// for its terminal outcome. Message is nil for synthesized outcomes such as a
// crash; Err is set for EventFailed.
type Event struct {
	Supervisor string
	Unit       uint64
	Kind       EventKind
	Message    wire.Message
	Err        error
}

// Terminal reports whether the event settles its unit.
func (e Event) Terminal() bool {
	return e.Kind != EventMessage
}

// CommandFunc builds the command for a worker executable.
type CommandFunc func(name string, args ...string) *exec.Cmd

// Options configures a Supervisor.
type Options struct {
	// Name identifies the supervisor in events and logs ("upload", "options").
	Name        string
	StopTimeout time.Duration
	Logger      *slog.Logger
	Command     CommandFunc
}

type handle struct {
	unit     uint64
	path     string
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	tag      Tag
	stopping bool
	settled  bool
	exited   bool
	watchdog *time.Timer
	done     chan struct{}
}

// Supervisor spawns and tracks worker processes.
type Supervisor struct {
	name        string
	events      chan<- Event
	logger      *slog.Logger
	stopTimeout time.Duration
	command     CommandFunc

	mu       sync.Mutex
	active   *handle
	exiting  map[uint64]*handle
	nextUnit uint64

	quit      chan struct{}
	closeOnce sync.Once
}

// New constructs a supervisor that publishes events on events.
func New(events chan<- Event, opts Options) *Supervisor {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "worker"
	}
	timeout := opts.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	command := opts.Command
	if command == nil {
		command = exec.Command
	}
	return &Supervisor{
		name:        name,
		events:      events,
		logger:      logging.NewComponentLogger(opts.Logger, "worker."+name),
		stopTimeout: timeout,
		command:     command,
		exiting:     make(map[uint64]*handle),
		quit:        make(chan struct{}),
	}
}

// Name returns the supervisor name carried by its events.
func (s *Supervisor) Name() string {
	return s.name
}

// Start spawns the executable at path and makes it the Active handle. A
// previous Active handle is asked to stop. Missing executables fail without
// spawning anything.
func (s *Supervisor) Start(path string, args ...string) (uint64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, services.WithHint(
			services.Wrap(services.ErrAccountUnavailable, "worker", "start", "no worker executable configured", nil),
			"set services.<name>.worker in the config",
		)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, services.WithHint(
			services.Wrap(services.ErrAccountUnavailable, "worker", "start", fmt.Sprintf("worker %s unavailable", path), err),
			"install the worker or fix worker.workers_dir",
		)
	}
	if info.IsDir() {
		return 0, services.Wrap(services.ErrAccountUnavailable, "worker", "start", fmt.Sprintf("worker %s is a directory", path), nil)
	}

	cmd := s.command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return 0, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, fmt.Errorf("stdout pipe: %w", err)
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &stderrLogger{logger: s.logger}
	}
	if err := cmd.Start(); err != nil {
		return 0, services.Wrap(services.ErrWorkerCrashed, "worker", "start", fmt.Sprintf("spawn %s", path), err)
	}

	s.mu.Lock()
	s.nextUnit++
	h := &handle{
		unit:  s.nextUnit,
		path:  path,
		cmd:   cmd,
		stdin: stdin,
		tag:   TagActive,
		done:  make(chan struct{}),
	}
	previous := s.active
	s.active = h
	if previous != nil {
		s.retireLocked(previous)
	}
	s.mu.Unlock()

	s.logger.Debug("worker started",
		logging.String("path", path),
		logging.Int("pid", cmd.Process.Pid),
		logging.Uint64(logging.FieldWorkerUnit, h.unit),
		logging.String(logging.FieldEventType, "worker_started"),
	)

	go s.read(h, stdout)
	return h.unit, nil
}

// Send writes msg to the Active process. It returns false when there is no
// running Active handle or the write fails.
func (s *Supervisor) Send(msg wire.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.active
	if h == nil || h.exited || h.settled {
		return false
	}
	if err := wire.WriteMessage(h.stdin, msg); err != nil {
		s.logger.Debug("worker write failed",
			logging.Uint64(logging.FieldWorkerUnit, h.unit),
			logging.String("opcode", msg.Opcode().String()),
			logging.Error(err),
		)
		return false
	}
	return true
}

// IsActive reports whether an Active handle is running an unsettled unit.
func (s *Supervisor) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && !s.active.settled && !s.active.exited
}

// ActiveUnit returns the unit of the Active handle.
func (s *Supervisor) ActiveUnit() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0, false
	}
	return s.active.unit, true
}

// Tag returns Active when an Active handle exists, Exiting when only stopping
// processes remain, and None otherwise.
func (s *Supervisor) Tag() Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.active != nil:
		return TagActive
	case len(s.exiting) > 0:
		return TagExiting
	default:
		return TagNone
	}
}

// ExitingCount returns the number of processes still shutting down.
func (s *Supervisor) ExitingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.exiting)
}

// Stop asks the Active process to stop and returns its unit. The process is
// killed when it does not exit within the stop timeout. Stop never blocks on
// the process.
func (s *Supervisor) Stop() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.active
	if h == nil {
		return 0, false
	}
	s.retireLocked(h)
	return h.unit, true
}

// StopAndWait stops the Active process and waits until every tracked process
// has exited. Processes still running when ctx ends are killed.
func (s *Supervisor) StopAndWait(ctx context.Context) error {
	s.Stop()
	if err := s.Wait(ctx); err != nil {
		s.KillAll()
		return err
	}
	return nil
}

// Wait blocks until every tracked process has exited or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		var pending *handle
		if s.active != nil {
			pending = s.active
		} else {
			for _, h := range s.exiting {
				pending = h
				break
			}
		}
		s.mu.Unlock()
		if pending == nil {
			return nil
		}
		select {
		case <-pending.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// KillAll force-kills the Active and every Exiting process. Unsettled units
// are reported as Stopped.
func (s *Supervisor) KillAll() {
	s.mu.Lock()
	victims := make([]*handle, 0, len(s.exiting)+1)
	if h := s.active; h != nil {
		s.active = nil
		h.tag = TagExiting
		s.exiting[h.unit] = h
	}
	for _, h := range s.exiting {
		if !h.settled {
			h.stopping = true
		}
		if h.watchdog != nil {
			h.watchdog.Stop()
			h.watchdog = nil
		}
		victims = append(victims, h)
	}
	s.mu.Unlock()

	for _, h := range victims {
		s.kill(h, "kill_all")
	}
}

// Close kills every process and stops event delivery.
func (s *Supervisor) Close() {
	s.KillAll()
	s.closeOnce.Do(func() { close(s.quit) })
}

// retireLocked moves h out of the Active slot. An unsettled unit is marked
// stopping and sent Stop; a watchdog kills the process after the stop timeout.
func (s *Supervisor) retireLocked(h *handle) {
	if s.active == h {
		s.active = nil
	}
	if h.exited {
		return
	}
	h.tag = TagExiting
	s.exiting[h.unit] = h
	if !h.settled && !h.stopping {
		h.stopping = true
		if err := wire.WriteMessage(h.stdin, wire.Stop{}); err != nil {
			s.logger.Debug("worker stop write failed",
				logging.Uint64(logging.FieldWorkerUnit, h.unit),
				logging.Error(err),
			)
		}
	}
	_ = h.stdin.Close()
	s.armWatchdogLocked(h)
}

func (s *Supervisor) armWatchdogLocked(h *handle) {
	if h.watchdog != nil || h.exited {
		return
	}
	h.watchdog = time.AfterFunc(s.stopTimeout, func() {
		s.mu.Lock()
		exited := h.exited
		h.watchdog = nil
		s.mu.Unlock()
		if exited {
			return
		}
		logging.WarnWithContext(s.logger, "worker did not exit in time; killing", "worker_stop_timeout",
			logging.Uint64(logging.FieldWorkerUnit, h.unit),
			logging.Duration("timeout", s.stopTimeout),
			logging.String(logging.FieldErrorHint, "check the worker honours Stop"),
			logging.String(logging.FieldImpact, "worker process was force-killed"),
		)
		s.kill(h, "watchdog")
	})
}

func (s *Supervisor) kill(h *handle, reason string) {
	if h.cmd.Process == nil {
		return
	}
	if err := unix.Kill(h.cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		s.logger.Debug("worker kill failed",
			logging.Uint64(logging.FieldWorkerUnit, h.unit),
			logging.String("reason", reason),
			logging.Error(err),
		)
	}
}

func (s *Supervisor) read(h *handle, stdout io.Reader) {
	decoder := wire.NewDecoder()
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, msg := range decoder.Feed(buf[:n]) {
				s.dispatch(h, msg)
			}
		}
		if err != nil {
			break
		}
	}
	if desyncs, malformed := decoder.Desyncs(), decoder.Malformed(); desyncs > 0 || malformed > 0 {
		logging.WarnWithContext(s.logger, "worker stream contained invalid frames", "worker_protocol_desync",
			logging.Uint64(logging.FieldWorkerUnit, h.unit),
			logging.Int("desyncs", desyncs),
			logging.Int("malformed", malformed),
			logging.String(logging.FieldErrorKind, services.KindProtocolDesync.String()),
			logging.String(logging.FieldImpact, "invalid frames were dropped"),
		)
	}
	waited := make(chan error, 1)
	go func() { waited <- h.cmd.Wait() }()
	select {
	case err := <-waited:
		s.exited(h, err)
		return
	case <-time.After(exitGrace):
	}
	// Output is gone but the process lingers: settle now and let the
	// watchdog reap it.
	s.outputClosed(h)
	s.exited(h, <-waited)
}

// outputClosed settles a unit whose worker closed stdout without a terminal
// message and without exiting.
func (s *Supervisor) outputClosed(h *handle) {
	s.mu.Lock()
	if h.settled || h.exited {
		s.mu.Unlock()
		return
	}
	event := s.unsettledOutcomeLocked(h, "closed its output before finishing", nil)
	s.settleLocked(h)
	s.mu.Unlock()

	s.logger.Debug("worker closed its output",
		logging.Uint64(logging.FieldWorkerUnit, h.unit),
		logging.String("outcome", event.Kind.String()),
	)
	s.emit(event)
}

// unsettledOutcomeLocked is the terminal event for a unit that ended without
// reporting one: Stopped when a stop was requested, WorkerCrashed otherwise.
func (s *Supervisor) unsettledOutcomeLocked(h *handle, what string, cause error) Event {
	if h.stopping {
		return Event{Supervisor: s.name, Unit: h.unit, Kind: EventStopped}
	}
	return Event{
		Supervisor: s.name,
		Unit:       h.unit,
		Kind:       EventFailed,
		Err: services.WithHint(
			services.Wrap(services.ErrWorkerCrashed, "worker", "wait", fmt.Sprintf("%s %s", h.path, what), cause),
			"check the worker log output",
		),
	}
}

func (s *Supervisor) dispatch(h *handle, msg wire.Message) {
	event := Event{Supervisor: s.name, Unit: h.unit, Kind: EventMessage, Message: msg}
	switch m := msg.(type) {
	case wire.Done:
		event.Kind = EventDone
	case wire.Stopped:
		event.Kind = EventStopped
	case wire.UploadFailed:
		event.Kind = EventFailed
		event.Err = services.FromRecord(m.Error)
		if event.Err == nil {
			event.Err = services.Wrap(services.ErrCustom, "worker", "upload", "worker reported failure without details", nil)
		}
	case wire.UpdateFailed:
		event.Kind = EventFailed
		event.Err = services.Wrap(services.ErrServiceRejected, "worker", "update",
			fmt.Sprintf("code %d for %s", m.ErrorCode, strings.Join(m.FailedIDs, ",")), nil)
	}

	s.mu.Lock()
	if h.settled {
		s.mu.Unlock()
		s.logger.Debug("dropping message for settled unit",
			logging.Uint64(logging.FieldWorkerUnit, h.unit),
			logging.String("opcode", msg.Opcode().String()),
		)
		return
	}
	if event.Terminal() {
		s.settleLocked(h)
	}
	s.mu.Unlock()

	s.emit(event)
}

// settleLocked records the unit's terminal outcome. The handle leaves the
// Active slot and is given the stop timeout to exit on its own.
func (s *Supervisor) settleLocked(h *handle) {
	h.settled = true
	h.stopping = false
	if s.active == h {
		s.active = nil
	}
	if !h.exited {
		h.tag = TagExiting
		s.exiting[h.unit] = h
		s.armWatchdogLocked(h)
	}
}

func (s *Supervisor) exited(h *handle, waitErr error) {
	s.mu.Lock()
	h.exited = true
	h.tag = TagNone
	if h.watchdog != nil {
		h.watchdog.Stop()
		h.watchdog = nil
	}
	if s.active == h {
		s.active = nil
	}
	delete(s.exiting, h.unit)

	var event *Event
	if !h.settled {
		outcome := s.unsettledOutcomeLocked(h, "exited before finishing", waitErr)
		event = &outcome
		h.settled = true
	}
	h.stopping = false
	_ = h.stdin.Close()
	close(h.done)
	s.mu.Unlock()

	s.logger.Debug("worker exited",
		logging.Uint64(logging.FieldWorkerUnit, h.unit),
		logging.Bool("crashed", event != nil && event.Kind == EventFailed),
		logging.Any("wait_error", waitErr),
	)
	if event != nil {
		s.emit(*event)
	}
}

func (s *Supervisor) emit(event Event) {
	select {
	case s.events <- event:
	case <-s.quit:
	}
}

// stderrLogger forwards worker stderr lines to the debug log.
type stderrLogger struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    []byte
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		idx := bytes.IndexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:idx]))
		w.buf = w.buf[idx+1:]
		if line != "" {
			w.logger.Debug("worker stderr", logging.String("line", line))
		}
	}
	return len(p), nil
}
