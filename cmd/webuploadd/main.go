// Command webuploadd runs the upload engine in the foreground.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"webupload/internal/config"
	"webupload/internal/daemonrun"
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
		opts       daemonrun.Options
	)
	cmd := &cobra.Command{
		Use:           "webuploadd",
		Short:         "Run the webupload engine",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Configuration file path")
	flags.BoolVar(&opts.Immortal, "immortal", false, "Keep running when the queue is empty")
	flags.StringVar(&opts.LogLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	flags.StringVar(&opts.SocketPath, "socket", "", "Control socket path (default state_dir/webupload.sock)")
	flags.BoolVar(&opts.Diagnostic, "diagnostic", false, "Write a separate DEBUG log under log_dir/debug")
	flags.BoolVar(&opts.Development, "dev", false, "Use development log formatting")
	return cmd
}
