// Package devicemode watches udev netlink events for the device switching
// into and out of USB mass-storage mode, when local media may disappear.
package devicemode

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"webupload/internal/config"
	"webupload/internal/logging"
)

// Monitor listens for uevents of the configured subsystem and reports
// mass-storage transitions through the post callback.
type Monitor struct {
	logger     *slog.Logger
	subsystem  string
	stateKey   string
	enterValue string
	leaveValue string
	post       func(enter bool)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	active  bool
}

// New returns a monitor, or nil when monitoring is disabled.
func New(cfg *config.Config, logger *slog.Logger, post func(enter bool)) *Monitor {
	if cfg == nil || !cfg.Device.Monitor {
		return nil
	}
	subsystem := strings.TrimSpace(cfg.Device.Subsystem)
	if subsystem == "" {
		return nil
	}
	return &Monitor{
		logger:     logging.NewComponentLogger(logger, "devicemode"),
		subsystem:  subsystem,
		stateKey:   strings.TrimSpace(cfg.Device.StateKey),
		enterValue: strings.TrimSpace(cfg.Device.EnterValue),
		leaveValue: strings.TrimSpace(cfg.Device.LeaveValue),
		post:       post,
	}
}

// Start connects to the udev netlink socket. A connection failure is logged
// and tolerated; the engine then never enters mass-storage mode on its own.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; mass-storage detection disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the daemon has permission to access netlink sockets"),
			logging.String(logging.FieldImpact, "uploads are not paused when the device exports its storage"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("device mode monitor started",
		logging.String(logging.FieldEventType, "devicemode_monitor_started"),
		logging.String("subsystem", m.subsystem),
	)
	return nil
}

// Stop shuts down the monitor.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device mode monitor stopped",
		logging.String(logging.FieldEventType, "devicemode_monitor_stopped"),
	)
}

// Running reports whether the monitor is active.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	events := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(events, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-events:
			m.HandleEnv(uevent.Env)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "mass-storage transitions may be missed"),
			)
		}
	}
}

// buildMatcher matches change events of the configured subsystem.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": m.subsystem,
		},
	})
	return rules
}

// HandleEnv applies one uevent environment. Repeated values for the current
// mode are ignored, so post sees strictly alternating transitions.
func (m *Monitor) HandleEnv(env map[string]string) {
	if m == nil {
		return
	}
	value := strings.TrimSpace(env[m.stateKey])
	var enter bool
	switch {
	case value == "":
		return
	case strings.EqualFold(value, m.enterValue):
		enter = true
	case strings.EqualFold(value, m.leaveValue):
		enter = false
	default:
		m.logger.Debug("ignoring device state",
			logging.String("key", m.stateKey),
			logging.String("value", value),
		)
		return
	}

	m.mu.Lock()
	if m.active == enter {
		m.mu.Unlock()
		return
	}
	m.active = enter
	m.mu.Unlock()

	m.logger.Info("device mode changed",
		logging.Bool("mass_storage", enter),
		logging.String("value", value),
		logging.String(logging.FieldEventType, "devicemode_changed"),
	)
	if m.post != nil {
		m.post(enter)
	}
}
