package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths contains directory and bind address configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	StagingDir string `toml:"staging_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Engine contains the upload engine lifecycle settings.
type Engine struct {
	Immortal        bool `toml:"immortal"`
	IdleExitSeconds int  `toml:"idle_exit_seconds"`
	MaxAttempts     int  `toml:"max_attempts"`
}

// Worker contains settings for spawned per-service worker executables.
type Worker struct {
	WorkersDir         string `toml:"workers_dir"`
	StopTimeoutSeconds int    `toml:"stop_timeout_seconds"`
}

// Service maps a service name to the worker executable that talks to it.
type Service struct {
	Worker string `toml:"worker"`
}

// Account is a configured destination on one service.
type Account struct {
	ID       string `toml:"id"`
	Service  string `toml:"service"`
	Name     string `toml:"name"`
	Disabled bool   `toml:"disabled"`
}

// Preprocess controls the copy-into-staging step that runs before upload.
type Preprocess struct {
	Enabled      bool     `toml:"enabled"`
	MinFreeMiB   int      `toml:"min_free_mib"`
	ProcessTypes []string `toml:"process_types"`
}

// Connectivity configures the network reachability probe.
type Connectivity struct {
	ProbeAddress    string `toml:"probe_address"`
	IntervalSeconds int    `toml:"interval_seconds"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Device configures the udev watcher that detects USB mass-storage mode.
type Device struct {
	Monitor    bool   `toml:"monitor"`
	Subsystem  string `toml:"subsystem"`
	StateKey   string `toml:"state_key"`
	EnterValue string `toml:"enter_value"`
	LeaveValue string `toml:"leave_value"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for webupload.
//
// Configuration sections by subsystem:
//   - Paths: state, log and staging directories plus the HTTP API bind
//   - Engine: immortal mode, idle exit and retry limits
//   - Worker: where worker executables live and how long a stop may take
//   - Services/Accounts: which worker serves which account
//   - Preprocess: staging copies made before upload
//   - Connectivity: reachability probe
//   - Device: USB mass-storage detection
//   - Logging: log format, level, and retention
type Config struct {
	Paths        Paths              `toml:"paths"`
	Engine       Engine             `toml:"engine"`
	Worker       Worker             `toml:"worker"`
	Services     map[string]Service `toml:"services"`
	Accounts     []Account          `toml:"accounts"`
	Preprocess   Preprocess         `toml:"preprocess"`
	Connectivity Connectivity       `toml:"connectivity"`
	Device       Device             `toml:"device"`
	Logging      Logging            `toml:"logging"`
}

// EnsureDirectories creates required directories for engine operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.StagingDir, c.JobFilesDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SocketPath is the default control socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "webupload.sock")
}

// LockPath is the single-instance lock file for the engine.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "webuploadd.lock")
}

// DatabasePath is the SQLite job store location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "jobs.db")
}

// JobFilesDir holds the TOML job files handed to workers.
func (c *Config) JobFilesDir() string {
	return filepath.Join(c.Paths.StateDir, "jobs")
}

// StopTimeout is how long a worker may take to honour Stop before it is killed.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.Worker.StopTimeoutSeconds) * time.Second
}

// IdleExit is how long an empty queue keeps a non-immortal engine alive.
func (c *Config) IdleExit() time.Duration {
	return time.Duration(c.Engine.IdleExitSeconds) * time.Second
}

// ProbeInterval is the delay between connectivity probes.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.IntervalSeconds) * time.Second
}

// ProbeTimeout bounds a single connectivity probe.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Connectivity.TimeoutSeconds) * time.Second
}

// FindAccount returns the configured account with the given id.
func (c *Config) FindAccount(id string) (Account, bool) {
	id = strings.TrimSpace(id)
	for _, account := range c.Accounts {
		if account.ID == id {
			return account, true
		}
	}
	return Account{}, false
}
