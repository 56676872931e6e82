// Package options runs account option operations (refresh all, refresh one,
// add a value) through a dedicated worker supervisor and caches the values
// the worker reports.
package options

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/services"
	"webupload/internal/wire"
	"webupload/internal/worker"
)

const stopGrace = 5 * time.Second

// Store caches option values.
type Store interface {
	SaveOption(ctx context.Context, accountID string, change wire.OptionValueChanged) error
	ListOptions(ctx context.Context, accountID string) ([]jobstore.OptionRecord, error)
}

// Resolver maps an account to its worker executable.
type Resolver interface {
	WorkerPath(accountID string) (string, error)
}

// Config configures a Runner.
type Config struct {
	Store       Store
	Resolver    Resolver
	StopTimeout time.Duration
	Command     worker.CommandFunc
	Logger      *slog.Logger
}

// Result lists the values a worker reported during one operation.
type Result struct {
	Account string                    `json:"account"`
	Changes []wire.OptionValueChanged `json:"changes"`
}

// Runner executes one option operation at a time.
type Runner struct {
	store    Store
	resolver Resolver
	logger   *slog.Logger

	mu         sync.Mutex
	events     chan worker.Event
	supervisor *worker.Supervisor
}

// New constructs a Runner.
func New(cfg Config) *Runner {
	events := make(chan worker.Event, 16)
	return &Runner{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		logger:   logging.NewComponentLogger(cfg.Logger, "options"),
		events:   events,
		supervisor: worker.New(events, worker.Options{
			Name:        "options",
			StopTimeout: cfg.StopTimeout,
			Logger:      cfg.Logger,
			Command:     cfg.Command,
		}),
	}
}

// Close kills any running option worker.
func (r *Runner) Close() {
	r.supervisor.Close()
}

// UpdateAll refreshes every option of account.
func (r *Runner) UpdateAll(ctx context.Context, account string) (Result, error) {
	return r.run(ctx, account, "update all", wire.UpdateAll{AccountID: account})
}

// Update refreshes a single option.
func (r *Runner) Update(ctx context.Context, account, option string) (Result, error) {
	if strings.TrimSpace(option) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "options", "update", "option is required", nil)
	}
	return r.run(ctx, account, "update", wire.Update{AccountID: account, OptionID: option})
}

// AddValue asks the service to add value to a list-style option.
func (r *Runner) AddValue(ctx context.Context, account, option, value string) (Result, error) {
	if strings.TrimSpace(option) == "" || value == "" {
		return Result{}, services.Wrap(services.ErrValidation, "options", "add value", "option and value are required", nil)
	}
	return r.run(ctx, account, "add value", wire.AddValue{AccountID: account, OptionID: option, Value: value})
}

// List returns the cached values of account.
func (r *Runner) List(ctx context.Context, account string) ([]jobstore.OptionRecord, error) {
	return r.store.ListOptions(ctx, account)
}

func (r *Runner) run(ctx context.Context, account, op string, msg wire.Message) (Result, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return Result{}, services.Wrap(services.ErrValidation, "options", op, "account is required", nil)
	}
	path, err := r.resolver.WorkerPath(account)
	if err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	unit, err := r.supervisor.Start(path)
	if err != nil {
		return Result{}, err
	}
	if !r.supervisor.Send(msg) {
		r.logger.Warn("option request not delivered",
			logging.String(logging.FieldAccount, account),
			logging.Uint64(logging.FieldWorkerUnit, unit),
		)
	}

	result := Result{Account: account}
	for {
		select {
		case ev := <-r.events:
			if ev.Unit != unit {
				continue
			}
			switch ev.Kind {
			case worker.EventMessage:
				r.handleMessage(ctx, &result, ev.Message)
			case worker.EventDone:
				r.logger.Info("account options updated",
					logging.String(logging.FieldAccount, account),
					logging.String("operation", op),
					logging.Int("changes", len(result.Changes)),
					logging.String(logging.FieldEventType, "options_updated"),
				)
				return result, nil
			case worker.EventStopped:
				return result, services.Wrap(services.ErrCustom, "options", op, "worker stopped before finishing", nil)
			case worker.EventFailed:
				logging.WarnWithContext(r.logger, "account option update failed", "options_failed",
					logging.String(logging.FieldAccount, account),
					logging.String("operation", op),
					logging.String(logging.FieldErrorKind, services.KindOf(ev.Err).String()),
					logging.Error(ev.Err),
					logging.String(logging.FieldErrorHint, "check the account credentials and the listed option IDs"),
					logging.String(logging.FieldImpact, "cached option values may be stale"),
				)
				return result, ev.Err
			}
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
			if err := r.supervisor.StopAndWait(stopCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				r.logger.Debug("option worker stop failed", logging.Error(err))
			}
			cancel()
			r.discard(unit)
			return result, ctx.Err()
		}
	}
}

func (r *Runner) handleMessage(ctx context.Context, result *Result, msg wire.Message) {
	change, ok := msg.(wire.OptionValueChanged)
	if !ok {
		r.logger.Debug("ignoring worker message", logging.String("opcode", msg.Opcode().String()))
		return
	}
	result.Changes = append(result.Changes, change)
	if err := r.store.SaveOption(ctx, result.Account, change); err != nil {
		r.logger.Warn("failed to cache option value",
			logging.String(logging.FieldAccount, result.Account),
			logging.String("option", change.Name),
			logging.Error(err),
		)
	}
}

// discard drops events left over from unit after a cancelled run.
func (r *Runner) discard(unit uint64) {
	for {
		select {
		case ev := <-r.events:
			if ev.Unit != unit {
				continue
			}
		default:
			return
		}
	}
}
