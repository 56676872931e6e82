// Package connectivity periodically probes network reachability and reports
// online/offline transitions.
package connectivity

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"webupload/internal/logging"
)

// ProbeFunc returns nil when the network is usable.
type ProbeFunc func(ctx context.Context) error

// Options configures a Monitor.
type Options struct {
	// Address is dialed over TCP. Empty means always online.
	Address  string
	Interval time.Duration
	Timeout  time.Duration
	// Probe overrides the TCP dial.
	Probe  ProbeFunc
	Post   func(online bool)
	Logger *slog.Logger
}

// Monitor runs the probe loop.
type Monitor struct {
	address  string
	interval time.Duration
	timeout  time.Duration
	probe    ProbeFunc
	post     func(online bool)
	logger   *slog.Logger
	recheck  chan struct{}

	mu       sync.Mutex
	online   bool
	reported bool
}

// New constructs a Monitor.
func New(opts Options) *Monitor {
	m := &Monitor{
		address:  opts.Address,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		probe:    opts.Probe,
		post:     opts.Post,
		logger:   logging.NewComponentLogger(opts.Logger, "connectivity"),
		recheck:  make(chan struct{}, 1),
	}
	if m.interval <= 0 {
		m.interval = 15 * time.Second
	}
	if m.timeout <= 0 {
		m.timeout = 3 * time.Second
	}
	if m.probe == nil && m.address != "" {
		m.probe = m.dial
	}
	return m
}

// Online returns the last probe result.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Recheck probes again immediately and reports the result even if it did
// not change.
func (m *Monitor) Recheck() {
	select {
	case m.recheck <- struct{}{}:
	default:
	}
}

// Run probes until ctx is cancelled. The first result is always reported.
func (m *Monitor) Run(ctx context.Context) {
	if m.probe == nil {
		m.report(true, true)
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx, false)
		case <-m.recheck:
			m.check(ctx, true)
		}
	}
}

func (m *Monitor) check(ctx context.Context, force bool) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		m.logger.Debug("connectivity probe failed", logging.String("address", m.address), logging.Error(err))
	}
	m.report(err == nil, force)
}

func (m *Monitor) report(online, force bool) {
	m.mu.Lock()
	changed := !m.reported || m.online != online
	m.online = online
	m.reported = true
	m.mu.Unlock()

	if !changed && !force {
		return
	}
	if changed {
		m.logger.Info("connectivity changed",
			logging.Bool("online", online),
			logging.String(logging.FieldEventType, "connectivity_changed"),
		)
	}
	if m.post != nil {
		m.post(online)
	}
}

func (m *Monitor) dial(ctx context.Context) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", m.address)
	if err != nil {
		return err
	}
	return conn.Close()
}
