package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"readcast/internal/records"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Inspect and manage article records",
	}
	cmd.AddCommand(newRecordsListCommand(ctx))
	cmd.AddCommand(newRecordsShowCommand(ctx))
	cmd.AddCommand(newRecordsRetryCommand(ctx))
	return cmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var stateFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List article records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var list []*records.Record
			if stateFlag != "" {
				state, ok := records.ParseState(stateFlag)
				if !ok {
					return fmt.Errorf("unknown state %q", stateFlag)
				}
				list, err = store.ListByState(cmd.Context(), state)
			} else {
				list, err = store.LoadAll(cmd.Context())
			}
			if err != nil {
				return err
			}

			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No records found")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, record := range list {
				rows = append(rows, []string{
					record.SourceID,
					truncateCell(record.Title, 40),
					string(record.State),
					strconv.Itoa(totalAttempts(record)),
					formatTime(record.UpdatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "State", "Attempts", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&stateFlag, "state", "", "Filter by record state")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <source-id>",
		Short: "Show one record in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if record == nil {
				return fmt.Errorf("record %q not found", args[0])
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Source ID:    %s\n", record.SourceID)
			fmt.Fprintf(out, "Title:        %s\n", record.Title)
			fmt.Fprintf(out, "Author:       %s\n", record.Author)
			fmt.Fprintf(out, "URL:          %s\n", record.OriginalURL)
			fmt.Fprintf(out, "State:        %s\n", record.State)
			if record.GenerationJobID != "" {
				fmt.Fprintf(out, "Job ID:       %s\n", record.GenerationJobID)
			}
			if record.GenerationStartedAt != nil {
				fmt.Fprintf(out, "Job issued:   %s\n", formatTime(*record.GenerationStartedAt))
			}
			if record.ArtifactLocation != "" {
				fmt.Fprintf(out, "Artifact:     %s (%d bytes)\n", record.ArtifactLocation, record.ArtifactBytes)
			}
			if record.AbandonedFrom != "" {
				fmt.Fprintf(out, "Abandoned at: %s\n", record.AbandonedFrom)
			}
			if record.LastError != "" {
				fmt.Fprintf(out, "Last error:   %s\n", record.LastError)
			}
			for stageName, count := range record.Attempts {
				fmt.Fprintf(out, "Attempts:     %s=%d\n", stageName, count)
			}
			if record.PublishedAt != nil {
				fmt.Fprintf(out, "Published:    %s\n", formatTime(*record.PublishedAt))
			}
			fmt.Fprintf(out, "Created:      %s\n", formatTime(record.CreatedAt))
			fmt.Fprintf(out, "Updated:      %s\n", formatTime(record.UpdatedAt))
			return nil
		},
	}
}

func newRecordsRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <source-id>",
		Short: "Resume an abandoned record from the state it failed in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			record, err := store.RetryAbandoned(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Record %s resumed at %s\n", record.SourceID, record.State)
			return nil
		},
	}
}

func totalAttempts(record *records.Record) int {
	total := 0
	for _, count := range record.Attempts {
		total += count
	}
	return total
}

func truncateCell(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
