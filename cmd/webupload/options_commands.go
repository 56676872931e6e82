package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"webupload/internal/api"
	"webupload/internal/ipc"
)

func newOptionsCommand(ctx *commandContext) *cobra.Command {
	optionsCmd := &cobra.Command{
		Use:   "options",
		Short: "Refresh and inspect account upload options",
	}

	var addValue string
	updateCmd := &cobra.Command{
		Use:   "update <account> [option]",
		Short: "Ask the account's worker for fresh option values",
		Long: "Without an option name every option of the account is refreshed. " +
			"With --add the value is added to the option's allowed values.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ipc.OptionsUpdateRequest{Account: args[0], Value: addValue}
			if len(args) == 2 {
				req.Option = args[1]
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OptionsUpdate(req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(resp.Changes) == 0 {
					fmt.Fprintln(out, "No option values changed")
					return nil
				}
				renderOptions(out, resp.Changes)
				return nil
			})
		},
	}
	updateCmd.Flags().StringVar(&addValue, "add", "", "Value to add to the option (requires an option name)")

	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list <account>",
		Short: "List cached option values for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OptionsList(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Options)
				}
				out := cmd.OutOrStdout()
				if len(resp.Options) == 0 {
					fmt.Fprintln(out, "No cached options; run `webupload options update` first")
					return nil
				}
				renderOptions(out, resp.Options)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "Print the options as JSON")

	optionsCmd.AddCommand(updateCmd, listCmd)
	return optionsCmd
}

func renderOptions(out io.Writer, options []api.AccountOption) {
	rows := make([][]string, 0, len(options))
	for _, opt := range options {
		media := "-"
		if opt.MediaIndex >= 0 {
			media = strconv.Itoa(int(opt.MediaIndex))
		}
		rows = append(rows, []string{opt.Name, media, opt.Type, fmt.Sprint(opt.Value), formatWhen(opt.UpdatedAt)})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Option", "Media", "Type", "Value", "Updated"},
		rows,
		[]text.Align{text.AlignLeft, text.AlignRight, text.AlignLeft, text.AlignLeft, text.AlignLeft},
	))
}
