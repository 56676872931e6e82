package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateAccounts(); err != nil {
		return err
	}
	if err := c.validateDevice(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MaxAttempts < 1 {
		return errors.New("engine.max_attempts must be >= 1")
	}
	return ensurePositiveMap(map[string]int{
		"engine.idle_exit_seconds":      c.Engine.IdleExitSeconds,
		"worker.stop_timeout_seconds":   c.Worker.StopTimeoutSeconds,
		"connectivity.interval_seconds": c.Connectivity.IntervalSeconds,
		"connectivity.timeout_seconds":  c.Connectivity.TimeoutSeconds,
	})
}

func (c *Config) validateAccounts() error {
	seen := make(map[string]struct{}, len(c.Accounts))
	for i, account := range c.Accounts {
		if account.ID == "" {
			return fmt.Errorf("accounts[%d].id must be set", i)
		}
		if _, dup := seen[account.ID]; dup {
			return fmt.Errorf("accounts[%d].id %q is duplicated", i, account.ID)
		}
		seen[account.ID] = struct{}{}
		if account.Service == "" {
			return fmt.Errorf("accounts[%d].service must be set", i)
		}
		svc, ok := c.Services[account.Service]
		if !ok {
			return fmt.Errorf("accounts[%d].service %q has no [services.%s] section", i, account.Service, account.Service)
		}
		if strings.TrimSpace(svc.Worker) == "" {
			return fmt.Errorf("services.%s.worker must be set", account.Service)
		}
	}
	return nil
}

func (c *Config) validateDevice() error {
	if !c.Device.Monitor {
		return nil
	}
	if c.Device.EnterValue == "" {
		return errors.New("device.enter_value must be set when device.monitor is true")
	}
	if c.Device.LeaveValue == "" {
		return errors.New("device.leave_value must be set when device.monitor is true")
	}
	if c.Device.EnterValue == c.Device.LeaveValue {
		return errors.New("device.enter_value and device.leave_value must differ")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
