package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"webupload/internal/api"
	"webupload/internal/daemonctl"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine, check and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := daemonctl.StatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			renderStatus(out, status, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func renderStatus(out io.Writer, status api.DaemonStatus, colorize bool) {
	section := func(title string) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(out, line)
		}
	}

	section("Engine")
	for _, line := range engineLines(status, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if len(status.Checks) > 0 {
		section("Checks")
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	section("Queue")
	if len(status.Jobs) == 0 {
		fmt.Fprintln(out, "Queue is empty")
	} else {
		fmt.Fprint(out, renderTable(liveJobHeaders, liveJobRows(status.Jobs), liveJobAligns))
	}

	if rows := storedCountRows(status.StoredCounts); len(rows) > 0 {
		fmt.Fprintln(out)
		section("Job History")
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []text.Align{text.AlignLeft, text.AlignRight}))
	}
}

func engineLines(status api.DaemonStatus, colorize bool) []string {
	if !status.Running {
		return []string{
			renderStatusLine("Engine", statusError, "Not running", colorize),
			renderStatusLine("Database", statusInfo, status.DatabasePath, colorize),
		}
	}

	engine := status.Engine
	stateKind := statusOK
	if engine.ShuttingDown {
		stateKind = statusWarn
	}
	state := humanState(engine.State)
	if status.PID > 0 {
		state = fmt.Sprintf("%s (pid %d)", state, status.PID)
	}

	network := "Online"
	networkKind := statusOK
	if !engine.Online {
		network, networkKind = "Offline", statusWarn
	}
	device := "Not in mass-storage mode"
	deviceKind := statusOK
	if engine.MassStorage {
		device, deviceKind = "Mass-storage mode, uploads paused", statusWarn
	}

	lines := []string{
		renderStatusLine("Engine", stateKind, state, colorize),
		renderStatusLine("Network", networkKind, network, colorize),
		renderStatusLine("Device", deviceKind, device, colorize),
		renderStatusLine("Immortal", statusInfo, yesNo(engine.Immortal), colorize),
	}
	if status.StartedAt != "" {
		lines = append(lines, renderStatusLine("Started", statusInfo, formatWhen(status.StartedAt), colorize))
	}
	if status.LogPath != "" {
		lines = append(lines, renderStatusLine("Log", statusInfo, status.LogPath, colorize))
	}
	return lines
}

func storedCountRows(counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key, count := range counts {
		if count > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{humanState(key), strconv.Itoa(counts[key])})
	}
	return rows
}
