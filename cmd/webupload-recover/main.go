// Command webupload-recover resubmits or cancels jobs left unfinished by a
// previous engine run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"webupload/internal/config"
	"webupload/internal/daemonctl"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		socketPath string
		clean      bool
	)
	cmd := &cobra.Command{
		Use:   "webupload-recover",
		Short: "Resubmit jobs left unfinished by a previous run",
		Long: "Lists queued and failed jobs from the job store. By default they are handed back to the " +
			"engine, launching webuploadd when it is not running. With --clean they are cancelled instead.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			socket := strings.TrimSpace(socketPath)
			if socket == "" {
				socket = cfg.SocketPath()
			}
			r := &recoverer{
				cfg:    cfg,
				socket: socket,
				out:    cmd.OutOrStdout(),
				launch: func() error {
					exe, err := daemonctl.ResolveExecutable()
					if err != nil {
						return err
					}
					_, err = daemonctl.EnsureStarted(socket, exe, daemonctl.LaunchOptions{
						SocketPath: socket,
						ConfigPath: configPath,
					}, 10*time.Second)
					return err
				},
			}
			return r.run(cmd.Context(), clean)
		},
	}
	flags := cmd.Flags()
	flags.BoolVarP(&clean, "clean", "c", false, "Cancel unfinished jobs instead of resubmitting them")
	flags.StringVar(&configPath, "config", "", "Configuration file path")
	flags.StringVar(&socketPath, "socket", "", "Control socket path (default state_dir/webupload.sock)")
	return cmd
}
