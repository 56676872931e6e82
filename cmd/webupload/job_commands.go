package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"webupload/internal/api"
	"webupload/internal/ipc"
)

func newJobCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newJobsCommand(ctx),
		newShowCommand(ctx),
		newSubmitCommand(ctx),
		newJobControlCommand(ctx, "cancel", "Cancel a queued or running job", "Cancelled", (*ipc.Client).Cancel),
		newJobControlCommand(ctx, "promote", "Move a job to the head of the queue", "Promoted", (*ipc.Client).Promote),
		newJobControlCommand(ctx, "repair", "Requeue a failed job that awaits repair", "Requeued", (*ipc.Client).Repair),
	}
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		all      bool
		statuses []string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List queued jobs and, with --all, the job history",
		RunE: func(cmd *cobra.Command, args []string) error {
			includeStored := all || len(statuses) > 0
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Jobs(includeStored, statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Live) == 0 {
					fmt.Fprintln(out, "Queue is empty")
				} else {
					fmt.Fprint(out, renderTable(liveJobHeaders, liveJobRows(resp.Live), liveJobAligns))
				}
				if includeStored {
					fmt.Fprintln(out)
					if len(resp.Stored) == 0 {
						fmt.Fprintln(out, "No stored jobs")
						return nil
					}
					fmt.Fprint(out, renderTable(storedJobHeaders, storedJobRows(resp.Stored), storedJobAligns))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "Include stored jobs of every status")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only stored jobs with these statuses (queued, failed, cancelled, done)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the listing as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Show(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				renderJobDetail(cmd.OutOrStdout(), *resp)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func renderJobDetail(out io.Writer, detail api.JobDetailResponse) {
	field := func(label, value string) {
		fmt.Fprintf(out, "%-12s %s\n", label+":", value)
	}
	var lastError *api.JobError
	if stored := detail.Stored; stored != nil {
		field("ID", stored.ID)
		field("Account", stored.Account)
		field("Source", stored.SourcePath)
		field("Status", humanState(stored.Status))
		field("Attempts", fmt.Sprintf("%d of %d", stored.Attempts, stored.MaxAttempts))
		field("Media", fmt.Sprintf("%d of %d sent (%s)", stored.MediaSent, stored.MediaCount, formatBytes(stored.TotalBytes)))
		field("Created", formatWhen(stored.CreatedAt))
		field("Updated", formatWhen(stored.UpdatedAt))
		lastError = stored.LastError
	}
	if live := detail.Live; live != nil {
		if detail.Stored == nil {
			field("ID", live.ID)
			field("Account", live.Account)
			field("Source", live.SourcePath)
		}
		field("Position", fmt.Sprintf("%d", live.Position))
		field("State", liveJobState(*live))
		field("Remaining", formatBytes(live.Media.UnsentBytes))
		if live.Progress.Fraction > 0 {
			field("Progress", fmt.Sprintf("%.1f%% (eta %s)", live.Progress.Percent, formatETA(live.Progress.ETASeconds)))
		}
		if live.LastError != nil {
			lastError = live.LastError
		}
	}
	if lastError != nil {
		field("Last error", fmt.Sprintf("%s: %s", lastError.Kind, lastError.Message))
		if lastError.Hint != "" {
			field("Hint", lastError.Hint)
		}
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "submit [--account id] <job.toml | file...>",
		Short: "Queue a job file or a list of media files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildSubmitRequest(account, args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(req)
				if err != nil {
					return err
				}
				job := resp.Job
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for %s (%d media, %s)\n",
					job.ID, job.Account, job.Media.Count, formatBytes(job.Media.TotalBytes))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "Account to upload to (overrides the job file)")
	return cmd
}

// buildSubmitRequest resolves arguments against the caller's working
// directory, since the engine runs elsewhere.
func buildSubmitRequest(account string, args []string) (ipc.SubmitRequest, error) {
	req := ipc.SubmitRequest{Account: strings.TrimSpace(account)}
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return req, fmt.Errorf("resolve %s: %w", arg, err)
		}
		paths = append(paths, abs)
	}
	if len(paths) == 1 && strings.EqualFold(filepath.Ext(paths[0]), ".toml") {
		req.JobFile = paths[0]
		return req, nil
	}
	if req.Account == "" {
		return req, fmt.Errorf("--account is required when submitting media files")
	}
	req.Files = paths
	return req, nil
}

func newJobControlCommand(ctx *commandContext, use, short, verb string, fn func(*ipc.Client, string) (*ipc.JobResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := fn(client, strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s job %s\n", verb, resp.ID)
				return nil
			})
		},
	}
}
