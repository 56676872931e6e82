package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"webupload/internal/config"
	"webupload/internal/ipc"
)

// skipConfigAnnotation marks commands that must run without a loadable
// config, such as `config init`.
const skipConfigAnnotation = "skipConfigLoad"

// globalFlags holds the persistent flags every subcommand shares.
type globalFlags struct {
	socket string
	config string
}

// commandContext lazily loads the config once per invocation and hands out
// engine clients.
type commandContext struct {
	flags globalFlags

	loadOnce sync.Once
	cfg      *config.Config
	loadErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.loadOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.loadErr = err
			return
		}
		c.cfg = cfg
	})
	return c.cfg, c.loadErr
}

// configValue returns the loaded config, or nil when it failed to load.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	return strings.TrimSpace(c.flags.config)
}

// socketPath prefers --socket, then the configured state directory.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.flags.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "webupload.sock")
	}
	return filepath.Join(home, ".local", "share", "webupload", "webupload.sock")
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

// wrapDialError turns the two common socket failures into instructions.
func wrapDialError(err error, socket string) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("engine is not running: no socket at %s (run `webupload start`)", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("engine socket %s refused the connection; check that webuploadd is alive", socket)
	}
	return fmt.Errorf("connect to engine: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
