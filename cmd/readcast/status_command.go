package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"readcast/internal/records"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts by state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			dirty, err := store.FeedDirty(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(stats))
			for _, state := range records.AllStates() {
				count, ok := stats[state]
				if !ok {
					continue
				}
				rows = append(rows, []string{string(state), strconv.Itoa(count)})
			}
			rows = append(rows, []string{"total", strconv.Itoa(stats.Total())})

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"State", "Records"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			fmt.Fprintf(out, "Feed re-render owed: %s\n", yesNo(dirty))
			return nil
		},
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
