package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"webupload/internal/accounts"
	"webupload/internal/api"
	"webupload/internal/config"
	"webupload/internal/connectivity"
	"webupload/internal/devicemode"
	"webupload/internal/engine"
	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/options"
	"webupload/internal/preflight"
	"webupload/internal/preprocess"
	"webupload/internal/services"
	"webupload/internal/staging"
	"webupload/internal/worker"
)

// finishedRetention is how long done and cancelled jobs stay in the store.
const finishedRetention = 30 * 24 * time.Hour

// Options customises collaborators the daemon would otherwise build from
// configuration.
type Options struct {
	// Immortal disables the idle exit in addition to engine.immortal.
	Immortal bool
	LogPath  string
	// Command overrides how worker executables are spawned.
	Command      worker.CommandFunc
	Preprocessor preprocess.Preprocessor
	Probe        connectivity.ProbeFunc
}

// Daemon runs the engine and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *jobstore.Store
	engine  *engine.Engine
	options *options.Runner
	conn    *connectivity.Monitor
	device  *devicemode.Monitor
	api     *apiServer
	logPath string

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	cancel    context.CancelFunc
	runErr    error
	startedAt time.Time
	checks    []preflight.Result
	running   atomic.Bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobstore.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		logPath:  opts.LogPath,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}

	resolver := accounts.NewResolver(cfg)
	prep := opts.Preprocessor
	if prep == nil {
		prep = preprocess.NewCopyPreprocessor(cfg.Paths.StagingDir, int64(cfg.Preprocess.MinFreeMiB))
	}
	d.conn = connectivity.New(connectivity.Options{
		Address:  cfg.Connectivity.ProbeAddress,
		Interval: cfg.ProbeInterval(),
		Timeout:  cfg.ProbeTimeout(),
		Probe:    opts.Probe,
		Post:     func(online bool) { d.engine.SetOnline(online) },
		Logger:   logger,
	})
	d.device = devicemode.New(cfg, logger, func(enter bool) { d.engine.SetMassStorage(enter) })

	eng, err := engine.New(engine.Options{
		Config:       cfg,
		Store:        store,
		Resolver:     resolver,
		Preprocessor: prep,
		Command:      opts.Command,
		Monitor:      d.conn,
		Logger:       logger,
		Immortal:     opts.Immortal || cfg.Engine.Immortal,
		IdleExit:     cfg.IdleExit(),
	})
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	d.engine = eng
	d.options = options.New(options.Config{
		Store:       store,
		Resolver:    resolver,
		StopTimeout: cfg.StopTimeout(),
		Command:     opts.Command,
		Logger:      logger,
	})
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs startup housekeeping and launches the
// engine and its monitors.
func (d *Daemon) Start(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		d.running.Store(false)
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		d.running.Store(false)
		return errors.New("another webuploadd instance is already running")
	}

	d.housekeeping(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.startedAt = time.Now()
	d.mu.Unlock()

	go func() {
		err := d.engine.Run(runCtx)
		d.mu.Lock()
		d.runErr = err
		d.mu.Unlock()
	}()
	go d.conn.Run(runCtx)
	if err := d.device.Start(runCtx); err != nil {
		d.logger.Warn("device mode monitor unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "device_monitor_unavailable"),
			logging.String(logging.FieldErrorHint, "check udev netlink permissions"),
			logging.String(logging.FieldImpact, "mass-storage mode is not detected"),
		)
	}
	if err := d.api.start(); err != nil {
		d.logger.Warn("api server unavailable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_unavailable"),
			logging.String(logging.FieldErrorHint, "check paths.api_bind"),
			logging.String(logging.FieldImpact, "HTTP status API disabled"),
		)
	}

	d.logger.Info("webupload daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) housekeeping(ctx context.Context) {
	d.checks = preflight.RunAll(ctx, d.cfg)
	for _, check := range d.checks {
		if check.Passed {
			continue
		}
		d.logger.Warn("preflight check failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the configuration and restart webuploadd"),
			logging.String(logging.FieldImpact, "affected uploads will fail"),
		)
	}

	if pruned, err := d.store.PruneFinished(ctx, finishedRetention); err != nil {
		d.logger.Warn("prune finished jobs failed", logging.Error(err),
			logging.String(logging.FieldEventType, "prune_failed"),
			logging.String(logging.FieldErrorHint, "check the state directory"),
			logging.String(logging.FieldImpact, "old job rows are kept"),
		)
	} else if pruned > 0 {
		d.logger.Info("pruned finished jobs", logging.Int64("count", pruned))
	}

	unfinished, err := d.store.ListUnfinished(ctx)
	if err != nil {
		return
	}
	live := make(map[string]bool, len(unfinished))
	for _, desc := range unfinished {
		live[desc.ID()] = true
	}
	swept := staging.Sweep(ctx, d.cfg.Paths.StagingDir, func(id string) bool { return live[id] }, d.logger)
	if len(swept.Removed) > 0 {
		d.logger.Info("removed orphaned staging directories", logging.Int("count", len(swept.Removed)))
	}
}

// Done is closed once the engine has stopped, whether by request, idle exit
// or context cancellation.
func (d *Daemon) Done() <-chan struct{} {
	return d.engine.Done()
}

// Err returns the engine's exit error after Done is closed.
func (d *Daemon) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// Shutdown asks the engine to stop without waiting for it.
func (d *Daemon) Shutdown(reason string) {
	d.engine.Shutdown(reason)
}

// Stop stops the engine and monitors and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	<-d.engine.Done()

	d.device.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("webupload daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.options.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound HTTP API address, or "" when disabled.
func (d *Daemon) APIAddress() string {
	return d.api.addr()
}

func (d *Daemon) engineRunning() bool {
	if !d.running.Load() {
		return false
	}
	select {
	case <-d.engine.Done():
		return false
	default:
		return true
	}
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	d.mu.Lock()
	startedAt := d.startedAt
	checks := d.checks
	d.mu.Unlock()

	status := api.DaemonStatus{
		Running:      d.engineRunning(),
		PID:          os.Getpid(),
		LockPath:     d.lockPath,
		DatabasePath: d.store.Path(),
		LogPath:      d.logPath,
		Jobs:         []api.JobItem{},
		StoredCounts: map[string]int{},
		Checks:       api.FromChecks(checks),
	}
	if !startedAt.IsZero() {
		status.StartedAt = startedAt.UTC().Format(time.RFC3339)
	}
	if status.Running {
		snap, err := d.engine.Snapshot(ctx)
		switch {
		case err == nil:
			status.Engine, status.Jobs = api.FromSnapshot(snap)
		case errors.Is(err, engine.ErrStopped):
			status.Running = false
		default:
			return status, err
		}
	}
	if !status.Running {
		status.Engine.State = "stopped"
	}

	summaries, err := d.store.Summaries(ctx)
	if err != nil {
		return status, err
	}
	for _, sum := range summaries {
		status.StoredCounts[string(sum.Status)]++
	}
	return status, nil
}

// StoredJob returns the persisted view of a job.
func (d *Daemon) StoredJob(ctx context.Context, id string) (api.StoredJob, error) {
	desc, err := d.store.Get(ctx, id)
	if err != nil {
		return api.StoredJob{}, err
	}
	return api.FromSummary(desc.Summary()), nil
}

// StoredJobs lists persisted jobs with the given statuses (all when none).
func (d *Daemon) StoredJobs(ctx context.Context, statuses ...jobstore.Status) ([]api.StoredJob, error) {
	summaries, err := d.store.Summaries(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	out := make([]api.StoredJob, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, api.FromSummary(sum))
	}
	return out, nil
}

// Submit queues a new job.
func (d *Daemon) Submit(ctx context.Context, req engine.SubmitRequest) (api.JobItem, error) {
	view, err := d.engine.Submit(ctx, req)
	if err != nil {
		return api.JobItem{}, err
	}
	return api.FromJobView(view), nil
}

// Cancel cancels a queued job.
func (d *Daemon) Cancel(ctx context.Context, id string) error {
	return d.engine.Cancel(ctx, id)
}

// Promote moves a job to the head of the queue.
func (d *Daemon) Promote(ctx context.Context, id string) error {
	return d.engine.Promote(ctx, id)
}

// Repair requeues a failed job.
func (d *Daemon) Repair(ctx context.Context, id string) error {
	return d.engine.Repair(ctx, id)
}

// Recover pushes unfinished stored jobs that are not queued yet.
func (d *Daemon) Recover(ctx context.Context) (int, error) {
	return d.engine.Recover(ctx)
}

// CancelUnfinished cancels every unfinished job: queued ones through the
// engine, the rest directly in the store.
func (d *Daemon) CancelUnfinished(ctx context.Context) (int, error) {
	unfinished, err := d.store.ListUnfinished(ctx)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, desc := range unfinished {
		err := d.engine.Cancel(ctx, desc.ID())
		if errors.Is(err, services.ErrNotFound) {
			err = desc.Cancel(ctx)
		}
		if err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// UpdateOptions runs an option operation for account. An empty option
// refreshes every option; a non-empty value is added to option.
func (d *Daemon) UpdateOptions(ctx context.Context, account, option, value string) (options.Result, error) {
	account = strings.TrimSpace(account)
	switch {
	case option == "":
		if value != "" {
			return options.Result{}, services.Wrap(services.ErrValidation, "daemon", "options", "a value requires an option name", nil)
		}
		return d.options.UpdateAll(ctx, account)
	case value == "":
		return d.options.Update(ctx, account, option)
	default:
		return d.options.AddValue(ctx, account, option, value)
	}
}

// ListOptions returns the cached options of account.
func (d *Daemon) ListOptions(ctx context.Context, account string) ([]api.AccountOption, error) {
	records, err := d.options.List(ctx, strings.TrimSpace(account))
	if err != nil {
		return nil, err
	}
	out := make([]api.AccountOption, 0, len(records))
	for _, rec := range records {
		out = append(out, api.FromOption(rec))
	}
	return out, nil
}
