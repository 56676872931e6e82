package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"webupload/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Worker.WorkersDir = filepath.Join(base, "workers")
	cfgVal.Worker.StopTimeoutSeconds = 1
	cfgVal.Connectivity.ProbeAddress = ""
	cfgVal.Preprocess.MinFreeMiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithAccount registers an account served by service, whose worker is the
// executable name under the workers directory.
func WithAccount(id, service, worker string) ConfigOption {
	return func(b *configBuilder) {
		if b.cfg.Services == nil {
			b.cfg.Services = map[string]config.Service{}
		}
		b.cfg.Services[service] = config.Service{Worker: worker}
		b.cfg.Accounts = append(b.cfg.Accounts, config.Account{ID: id, Service: service, Name: id})
	}
}

// WithStubWorker writes a shell worker named name into the workers directory.
// The stub exits immediately; tests that need protocol traffic swap the
// command through worker.Options.Command.
func WithStubWorker(name string) ConfigOption {
	return func(b *configBuilder) {
		WriteWorkerScript(b.t, filepath.Join(b.cfg.Worker.WorkersDir, name), "exit 0")
	}
}

// WithPreprocessDisabled turns off staging copies.
func WithPreprocessDisabled() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Preprocess.Enabled = false
	}
}

// WriteWorkerScript writes an executable shell script with the given body.
func WriteWorkerScript(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir worker dir: %v", err)
	}
	script := []byte("#!/bin/sh\n" + body + "\n")
	if err := os.WriteFile(path, script, 0o755); err != nil {
		t.Fatalf("write worker %s: %v", path, err)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
