package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"webupload/internal/daemonctl"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var (
		immortal   bool
		diagnostic bool
	)
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start webuploadd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonctl.ResolveExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonctl.LaunchOptions{
				SocketPath: ctx.socketPath(),
				ConfigPath: ctx.configPath(),
				Immortal:   immortal,
				Diagnostic: diagnostic,
			}, 10*time.Second)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintln(stdout, "Engine not running, launching...")
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Engine started (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Engine started")
				}
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Engine already running")
			}
			return nil
		},
	}
	startCmd.Flags().BoolVar(&immortal, "immortal", false, "Keep the engine running when the queue is empty")
	startCmd.Flags().BoolVar(&diagnostic, "diagnostic", false, "Write a separate DEBUG log under log_dir/debug")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop webuploadd, killing it if it does not exit in time",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			grace := cfg.StopTimeout() + 5*time.Second
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), cfg, grace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Engine is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping uploads...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed engine process (pid %d)\n", result.PID)
			}
			fmt.Fprintln(stdout, "Engine stopped")
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd}
}
