package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"readcast/internal/records"
	"readcast/internal/source"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Fast-forward the discovery cursor past the current backlog",
		Long: "Page through everything currently saved at the source, mark each backlog\n" +
			"article as skipped, and set the discovery watermark to now. Subsequent\n" +
			"runs then pick up only articles saved after this point. Use this once\n" +
			"before scheduling runs when the read-later account already holds a large\n" +
			"backlog you do not want converted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			articles, err := source.New(cfg.Source)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			watermark := time.Now()

			skipped := 0
			pageCursor := ""
			for {
				page, err := articles.ListSaved(runCtx, time.Time{}, pageCursor)
				if err != nil {
					return fmt.Errorf("list saved articles: %w", err)
				}
				for _, article := range page.Articles {
					existing, err := store.Get(runCtx, article.ID)
					if err != nil {
						return err
					}
					if existing != nil {
						continue
					}
					record := &records.Record{
						SourceID:    article.ID,
						Title:       article.Title,
						Author:      article.Author,
						OriginalURL: article.URL,
						Summary:     article.Summary,
						State:       records.StateAbandoned,
						LastError:   "skipped as pre-existing backlog",
					}
					if err := store.Upsert(runCtx, record); err != nil {
						return err
					}
					skipped++
				}
				if page.NextCursor == "" || page.NextCursor == pageCursor {
					break
				}
				pageCursor = page.NextCursor
			}

			if err := store.SetCursor(runCtx, watermark.UTC().Format(time.RFC3339Nano)); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Skipped %d backlog articles; future runs only pick up new saves.\n", skipped)
			fmt.Fprintln(out, "Use 'readcast records retry <id>' to convert one of them anyway.")
			return nil
		},
	}
}
