package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeEngine()
	if err := c.normalizeWorker(); err != nil {
		return err
	}
	c.normalizeServices()
	c.normalizePreprocess()
	c.normalizeConnectivity()
	c.normalizeDevice()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = filepath.Join(c.Paths.StateDir, "staging")
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("WEBUPLOAD_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeEngine() {
	if c.Engine.IdleExitSeconds <= 0 {
		c.Engine.IdleExitSeconds = defaultIdleExitSeconds
	}
	if c.Engine.MaxAttempts == 0 {
		c.Engine.MaxAttempts = defaultMaxAttempts
	}
}

func (c *Config) normalizeWorker() error {
	if value, ok := os.LookupEnv("WEBUPLOAD_WORKERS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Worker.WorkersDir = value
	}
	if strings.TrimSpace(c.Worker.WorkersDir) == "" {
		c.Worker.WorkersDir = defaultWorkersDir
	}
	var err error
	if c.Worker.WorkersDir, err = expandPath(c.Worker.WorkersDir); err != nil {
		return fmt.Errorf("worker.workers_dir: %w", err)
	}
	if c.Worker.StopTimeoutSeconds <= 0 {
		c.Worker.StopTimeoutSeconds = defaultStopTimeoutSeconds
	}
	return nil
}

func (c *Config) normalizeServices() {
	if c.Services == nil {
		c.Services = map[string]Service{}
	}
	normalized := make(map[string]Service, len(c.Services))
	for name, svc := range c.Services {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		svc.Worker = strings.TrimSpace(svc.Worker)
		normalized[key] = svc
	}
	c.Services = normalized

	for i := range c.Accounts {
		c.Accounts[i].ID = strings.TrimSpace(c.Accounts[i].ID)
		c.Accounts[i].Service = strings.ToLower(strings.TrimSpace(c.Accounts[i].Service))
		c.Accounts[i].Name = strings.TrimSpace(c.Accounts[i].Name)
		if c.Accounts[i].Name == "" {
			c.Accounts[i].Name = c.Accounts[i].ID
		}
	}
}

func (c *Config) normalizePreprocess() {
	if c.Preprocess.MinFreeMiB < 0 {
		c.Preprocess.MinFreeMiB = 0
	}
	types := make([]string, 0, len(c.Preprocess.ProcessTypes))
	seen := make(map[string]struct{}, len(c.Preprocess.ProcessTypes))
	for _, value := range c.Preprocess.ProcessTypes {
		normalized := strings.ToLower(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		types = append(types, normalized)
	}
	c.Preprocess.ProcessTypes = types
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.ProbeAddress = strings.TrimSpace(c.Connectivity.ProbeAddress)
	if c.Connectivity.IntervalSeconds <= 0 {
		c.Connectivity.IntervalSeconds = defaultProbeInterval
	}
	if c.Connectivity.TimeoutSeconds <= 0 {
		c.Connectivity.TimeoutSeconds = defaultProbeTimeout
	}
}

func (c *Config) normalizeDevice() {
	c.Device.Subsystem = strings.TrimSpace(c.Device.Subsystem)
	if c.Device.Subsystem == "" {
		c.Device.Subsystem = defaultDeviceSubsystem
	}
	c.Device.StateKey = strings.TrimSpace(c.Device.StateKey)
	if c.Device.StateKey == "" {
		c.Device.StateKey = defaultDeviceStateKey
	}
	c.Device.EnterValue = strings.TrimSpace(c.Device.EnterValue)
	c.Device.LeaveValue = strings.TrimSpace(c.Device.LeaveValue)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
