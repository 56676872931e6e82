package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"webupload/internal/config"
	"webupload/internal/daemonctl"
	"webupload/internal/ipc"
	"webupload/internal/jobstore"
)

type recoverer struct {
	cfg    *config.Config
	socket string
	out    io.Writer
	// launch starts webuploadd, which replays unfinished jobs on startup.
	launch func() error
}

func (r *recoverer) run(ctx context.Context, clean bool) error {
	listed, err := r.listUnfinished(ctx)
	if err != nil {
		return err
	}
	if listed == 0 {
		fmt.Fprintln(r.out, "No unfinished jobs")
		return nil
	}

	client, dialErr := ipc.Dial(r.socket)
	if dialErr != nil && !daemonctl.IsDaemonUnavailable(dialErr) {
		return fmt.Errorf("connect to engine: %w", dialErr)
	}
	if client != nil {
		defer client.Close()
		resp, err := client.Recover(clean)
		if err != nil {
			return err
		}
		if clean {
			fmt.Fprintf(r.out, "Cancelled %d job(s) through the running engine\n", resp.Count)
		} else {
			fmt.Fprintf(r.out, "Requeued %d job(s) on the running engine\n", resp.Count)
		}
		return nil
	}

	if clean {
		store, err := jobstore.Open(r.cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		count, err := store.CancelUnfinished(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Cancelled %d job(s)\n", count)
		return nil
	}

	if err := r.launch(); err != nil {
		return fmt.Errorf("launch engine: %w", err)
	}
	fmt.Fprintf(r.out, "Started webuploadd to resume %d job(s)\n", listed)
	return nil
}

func (r *recoverer) listUnfinished(ctx context.Context) (int, error) {
	store, err := jobstore.Open(r.cfg)
	if err != nil {
		return 0, err
	}
	defer store.Close()
	jobs, err := store.Summaries(ctx, jobstore.StatusQueued, jobstore.StatusFailed)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"ID", "Account", "Status", "Media", "Attempts", "Source"})
	for _, job := range jobs {
		tw.AppendRow(table.Row{
			job.ID,
			job.Account,
			string(job.Status),
			fmt.Sprintf("%d/%d", job.MediaSent, job.MediaCount),
			strconv.Itoa(job.Attempts),
			job.SourcePath,
		})
	}
	fmt.Fprintln(r.out, tw.Render())
	return len(jobs), nil
}
