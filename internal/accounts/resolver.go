// Package accounts resolves configured accounts to the worker executables
// that serve them.
package accounts

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"webupload/internal/config"
	"webupload/internal/deps"
	"webupload/internal/services"
)

// Resolver maps account IDs to worker paths using the loaded config.
type Resolver struct {
	cfg *config.Config
}

// NewResolver returns a resolver over cfg.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Account returns the configured account, failing for unknown or disabled
// accounts.
func (r *Resolver) Account(id string) (config.Account, error) {
	account, ok := r.cfg.FindAccount(strings.TrimSpace(id))
	if !ok {
		return config.Account{}, services.WithHint(
			services.Wrap(services.ErrAccountUnavailable, "accounts", "resolve", fmt.Sprintf("unknown account %q", id), nil),
			"add the account to [[accounts]] in the config",
		)
	}
	if account.Disabled {
		return config.Account{}, services.WithHint(
			services.Wrap(services.ErrAccountUnavailable, "accounts", "resolve", fmt.Sprintf("account %q is disabled", id), nil),
			"set disabled = false for the account",
		)
	}
	return account, nil
}

// WorkerPath returns the executable serving account id. The path is not
// checked for existence; the supervisor does that at start.
func (r *Resolver) WorkerPath(id string) (string, error) {
	account, err := r.Account(id)
	if err != nil {
		return "", err
	}
	return r.servicePath(account.Service)
}

func (r *Resolver) servicePath(service string) (string, error) {
	svc, ok := r.cfg.Services[strings.ToLower(service)]
	if !ok || strings.TrimSpace(svc.Worker) == "" {
		return "", services.WithHint(
			services.Wrap(services.ErrAccountUnavailable, "accounts", "resolve", fmt.Sprintf("no worker for service %q", service), nil),
			"set services.<name>.worker in the config",
		)
	}
	worker := strings.TrimSpace(svc.Worker)
	if filepath.IsAbs(worker) {
		return worker, nil
	}
	return filepath.Join(r.cfg.Worker.WorkersDir, worker), nil
}

// Requirements lists one worker requirement per configured service, in name
// order, for availability reporting.
func (r *Resolver) Requirements() []deps.Requirement {
	names := make([]string, 0, len(r.cfg.Services))
	for name := range r.cfg.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]deps.Requirement, 0, len(names))
	for _, name := range names {
		path, _ := r.servicePath(name)
		reqs = append(reqs, deps.Requirement{
			Name:        name,
			Command:     path,
			Description: fmt.Sprintf("Worker for %s accounts", name),
			Optional:    !r.serviceInUse(name),
		})
	}
	return reqs
}

func (r *Resolver) serviceInUse(service string) bool {
	for _, account := range r.cfg.Accounts {
		if !account.Disabled && strings.EqualFold(account.Service, service) {
			return true
		}
	}
	return false
}
