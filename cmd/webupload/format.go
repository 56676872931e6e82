package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"

	"webupload/internal/api"
)

const apiTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func formatETA(seconds float64) string {
	if seconds <= 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).Round(time.Second).String()
}

// formatWhen renders an API timestamp relative to now ("3 minutes ago").
func formatWhen(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	ts, err := time.Parse(apiTimeLayout, value)
	if err != nil {
		return value
	}
	return humanize.Time(ts)
}

func liveJobState(job api.JobItem) string {
	switch {
	case job.Cancelled:
		return "Cancelling"
	case job.Failed:
		return "Awaiting Repair"
	case job.StopRequested:
		return "Stopping"
	case job.Pending != "":
		return humanState(job.Pending)
	default:
		return humanState(job.Owner)
	}
}

func liveJobRows(jobs []api.JobItem) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		progress := "-"
		if job.Progress.Fraction > 0 {
			progress = fmt.Sprintf("%.1f%%", job.Progress.Percent)
		}
		rows = append(rows, []string{
			strconv.Itoa(job.Position),
			job.ID,
			job.Account,
			liveJobState(job),
			fmt.Sprintf("%d/%d", job.Media.Sent, job.Media.Count),
			formatBytes(job.Media.UnsentBytes),
			progress,
			formatETA(job.Progress.ETASeconds),
		})
	}
	return rows
}

var liveJobHeaders = []string{"#", "ID", "Account", "State", "Media", "Remaining", "Progress", "ETA"}

var liveJobAligns = []text.Align{text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignRight}

func storedJobRows(jobs []api.StoredJob) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		lastError := ""
		if job.LastError != nil {
			lastError = job.LastError.Kind
		}
		rows = append(rows, []string{
			job.ID,
			job.Account,
			humanState(job.Status),
			fmt.Sprintf("%d/%d", job.MediaSent, job.MediaCount),
			formatBytes(job.TotalBytes),
			fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
			formatWhen(job.UpdatedAt),
			lastError,
		})
	}
	return rows
}

var storedJobHeaders = []string{"ID", "Account", "Status", "Media", "Size", "Attempts", "Updated", "Last Error"}

var storedJobAligns = []text.Align{text.AlignLeft, text.AlignLeft, text.AlignLeft, text.AlignRight, text.AlignRight, text.AlignRight, text.AlignLeft, text.AlignLeft}
