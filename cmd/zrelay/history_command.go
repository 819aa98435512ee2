package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"zrelay/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent chat exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("history is disabled in configuration")
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			exchanges, err := store.Recent(cmd.Context(), limitFlag)
			if err != nil {
				return err
			}
			if len(exchanges) == 0 {
				fmt.Fprintln(os.Stdout, "No exchanges recorded.")
				return nil
			}

			rows := make([][]string, 0, len(exchanges))
			for _, exchange := range exchanges {
				rows = append(rows, []string{
					exchange.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					exchange.Status,
					truncateCell(exchange.Prompt, 40),
					truncateCell(exchange.Reply, 60),
					strconv.FormatInt(exchange.ElapsedMS, 10),
				})
			}
			fmt.Fprintln(os.Stdout, renderTable(
				[]string{"Time", "Status", "Prompt", "Reply", "ms"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 20, "Maximum number of exchanges to show")
	return cmd
}

func truncateCell(value string, maxLen int) string {
	runes := []rune(value)
	if len(runes) <= maxLen {
		return value
	}
	return string(runes[:maxLen-1]) + "…"
}
