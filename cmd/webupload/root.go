package main

import (
	"github.com/spf13/cobra"
)

const (
	groupEngine = "engine"
	groupJobs   = "jobs"
	groupSetup  = "setup"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "webupload",
		Short:         "Queue and monitor media uploads",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&ctx.flags.socket, "socket", "", "Path to the webuploadd control socket")
	flags.StringVarP(&ctx.flags.config, "config", "c", "", "Configuration file path")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupEngine, Title: "Engine:"},
		&cobra.Group{ID: groupJobs, Title: "Jobs:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)
	grouped := map[string][]*cobra.Command{
		groupEngine: append(newDaemonCommands(ctx), newStatusCommand(ctx), newLogsCommand(ctx)),
		groupJobs:   newJobCommands(ctx),
		groupSetup:  {newOptionsCommand(ctx), newConfigCommand(ctx)},
	}
	for group, cmds := range grouped {
		for _, cmd := range cmds {
			cmd.GroupID = group
			rootCmd.AddCommand(cmd)
		}
	}
	return rootCmd
}
