package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"webupload/internal/config"
	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/preprocess"
	"webupload/internal/queue"
	"webupload/internal/services"
	"webupload/internal/wire"
	"webupload/internal/worker"
)

const (
	inboxSize       = 64
	workerEventSize = 16
	shutdownWait    = 5 * time.Second
)

// JobStore persists descriptors and worker-reported account options.
type JobStore interface {
	Create(ctx context.Context, newJob jobstore.NewJob) (*jobstore.Descriptor, error)
	ListUnfinished(ctx context.Context) ([]*jobstore.Descriptor, error)
	SaveOption(ctx context.Context, accountID string, change wire.OptionValueChanged) error
}

// WorkerResolver maps an account to its worker executable.
type WorkerResolver interface {
	WorkerPath(accountID string) (string, error)
}

// Rechecker forces the connectivity monitor to report its next probe.
type Rechecker interface {
	Recheck()
}

// Options configures an Engine.
type Options struct {
	Config       *config.Config
	Store        JobStore
	Resolver     WorkerResolver
	Preprocessor preprocess.Preprocessor
	// Command overrides how worker executables are spawned.
	Command worker.CommandFunc
	Monitor Rechecker
	Logger  *slog.Logger
	// Immortal disables the idle exit.
	Immortal bool
	IdleExit time.Duration
}

// Engine coordinates the queue, preprocessing and the upload worker.
type Engine struct {
	cfg      *config.Config
	store    JobStore
	resolver WorkerResolver
	monitor  Rechecker
	logger   *slog.Logger
	immortal bool
	idleExit time.Duration

	inbox   chan input
	events  chan worker.Event
	done    chan struct{}
	running atomic.Bool

	// Everything below is owned by the Run goroutine.
	upload   *worker.Supervisor
	prep     *preprocess.Coordinator
	queue    *queue.Queue
	pending  []queue.Event
	progress *progressLog

	state        State
	online       bool
	massStorage  bool
	shuttingDown bool
	terminated   bool
	constructing int

	uploadJob  *queue.Job
	uploadUnit uint64
	stopReason stopReason

	idleGen   int
	idleTimer *time.Timer
}

// New validates opts and builds an engine. Call Run to start it.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("engine requires configuration")
	}
	if opts.Store == nil {
		return nil, errors.New("engine requires a job store")
	}
	if opts.Resolver == nil {
		return nil, errors.New("engine requires a worker resolver")
	}
	if opts.Preprocessor == nil {
		return nil, errors.New("engine requires a preprocessor")
	}

	logger := logging.NewComponentLogger(opts.Logger, "engine")
	e := &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		resolver: opts.Resolver,
		monitor:  opts.Monitor,
		logger:   logger,
		immortal: opts.Immortal,
		idleExit: opts.IdleExit,
		inbox:    make(chan input, inboxSize),
		events:   make(chan worker.Event, workerEventSize),
		done:     make(chan struct{}),
		progress: newProgressLog(0.05),
		online:   true,
	}
	e.upload = worker.New(e.events, worker.Options{
		Name:        "upload",
		StopTimeout: opts.Config.StopTimeout(),
		Logger:      opts.Logger,
		Command:     opts.Command,
	})
	e.prep = preprocess.New(preprocess.Options{
		Preprocessor: opts.Preprocessor,
		Post:         func(res preprocess.Result) { e.post(prepInput{result: res}) },
		Logger:       opts.Logger,
	})
	e.queue = queue.New(func(ev queue.Event) { e.pending = append(e.pending, ev) })
	return e, nil
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Run loads the recovered-job feed and processes inputs until shutdown, an
// idle exit or ctx cancellation.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}
	defer close(e.done)

	go e.forwardWorkerEvents()

	if n, err := e.loadRecovered(ctx); err != nil {
		logging.WarnWithContext(e.logger, "recovered job feed unavailable", "recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run webupload-recover to inspect unfinished jobs"),
			logging.String(logging.FieldImpact, "unfinished jobs were not resumed"),
		)
	} else if n > 0 {
		e.logger.Info("recovered unfinished jobs",
			logging.Int("count", n),
			logging.String(logging.FieldEventType, "jobs_recovered"),
		)
	}
	e.drain()
	if e.queue.Len() == 0 {
		e.armIdle()
	}
	e.logger.Info("engine started",
		logging.Bool("immortal", e.immortal),
		logging.Duration("idle_exit", e.idleExit),
		logging.String(logging.FieldEventType, "engine_started"),
	)

	ctxDone := ctx.Done()
	for !e.terminated {
		select {
		case <-ctxDone:
			ctxDone = nil
			e.beginShutdown("context cancelled")
		case in := <-e.inbox:
			e.handle(in)
		}
		e.drain()
		e.updateState()
	}

	e.disarmIdle()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	if err := e.upload.Wait(waitCtx); err != nil {
		e.logger.Warn("upload worker did not exit in time", logging.Error(err))
	}
	cancel()
	e.upload.Close()
	e.logger.Info("engine stopped", logging.String(logging.FieldEventType, "engine_stopped"))
	return nil
}

func (e *Engine) forwardWorkerEvents() {
	for {
		select {
		case ev := <-e.events:
			if !e.post(workerInput{event: ev}) {
				return
			}
		case <-e.done:
			return
		}
	}
}

// post delivers in unless the engine has exited.
func (e *Engine) post(in input) bool {
	select {
	case e.inbox <- in:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) request(ctx context.Context, in input) error {
	select {
	case e.inbox <- in:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func awaitReply[T any](ctx context.Context, e *Engine, reply chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-e.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (e *Engine) handle(in input) {
	switch v := in.(type) {
	case reserveInput:
		v.reply <- e.reserve(v.source)
	case releaseInput:
		// An unread reserve reply means the submitter gave up waiting; only a
		// granted reservation is released.
		if v.pending == nil || <-v.pending == nil {
			e.release(v.source)
		}
	case pushInput:
		view, err := e.push(v.desc, v.last)
		if err != nil && v.cancelOnReject {
			if cancelErr := v.desc.Cancel(services.WithJobID(context.Background(), v.desc.ID())); cancelErr != nil {
				e.logger.Warn("rejected job not cancelled in store", logging.String(logging.FieldJobID, v.desc.ID()), logging.Error(cancelErr))
			}
		}
		v.reply <- pushReply{view: view, err: err}
	case controlInput:
		v.reply <- e.control(v.kind, v.id)
	case connectivityInput:
		e.setOnline(v.online)
	case massStorageInput:
		e.setMassStorage(v.active)
	case workerInput:
		e.handleWorker(v.event)
	case prepInput:
		e.handlePrep(v.result)
	case snapshotInput:
		v.reply <- e.snapshot()
	case shutdownInput:
		e.beginShutdown(v.reason)
	case idleInput:
		if v.generation == e.idleGen && e.queue.Len() == 0 && e.constructing == 0 {
			e.beginShutdown("idle")
		}
	}
}

// drain dispatches queue events raised while handling an input, in order.
func (e *Engine) drain() {
	for len(e.pending) > 0 {
		ev := e.pending[0]
		e.pending = e.pending[1:]
		switch ev.Kind {
		case queue.EventNewHead:
			e.evaluateHead()
		case queue.EventHeadReplaced:
			e.preempt(ev.Previous)
			e.evaluateHead()
		case queue.EventQueueEmpty:
			e.armIdle()
		}
	}
}

func (e *Engine) updateState() {
	next := StateIdle
	switch {
	case e.shuttingDown:
		next = StateShuttingDown
	case e.massStorage:
		next = StateMassStorage
	case e.uploadJob != nil:
		next = StateSending
	case !e.online && e.queue.Len() > 0:
		next = StateOffline
	}
	if next == e.state {
		return
	}
	e.logger.Info("engine state changed",
		logging.String("from", e.state.String()),
		logging.String("to", next.String()),
		logging.String(logging.FieldEventType, "engine_state_changed"),
	)
	e.state = next
}

func (e *Engine) armIdle() {
	if e.immortal || e.idleExit <= 0 || e.shuttingDown {
		return
	}
	e.disarmIdle()
	gen := e.idleGen
	e.idleTimer = time.AfterFunc(e.idleExit, func() { e.post(idleInput{generation: gen}) })
}

func (e *Engine) disarmIdle() {
	e.idleGen++
	if e.idleTimer != nil {
		e.idleTimer.Stop()
		e.idleTimer = nil
	}
}

func (e *Engine) beginShutdown(reason string) {
	if e.shuttingDown {
		return
	}
	e.shuttingDown = true
	e.disarmIdle()
	e.logger.Info("engine shutting down",
		logging.String("reason", reason),
		logging.Int("queued", e.queue.Len()),
		logging.String(logging.FieldEventType, "engine_shutdown"),
	)
	e.upload.KillAll()
	e.prep.Stop(nil)
	e.maybeTerminate()
}

func (e *Engine) maybeTerminate() {
	if e.shuttingDown && e.prep.Idle() {
		e.terminated = true
	}
}

// jobContext tags store operations issued by the loop with the job and its
// account.
func jobContext(job *queue.Job) context.Context {
	ctx := services.WithJobID(context.Background(), job.ID())
	return services.WithAccount(ctx, job.Descriptor().Account())
}
