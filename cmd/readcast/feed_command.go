package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"readcast/internal/publish"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Work with the podcast feed",
	}
	cmd.AddCommand(newFeedRenderCommand(ctx))
	return cmd
}

func newFeedRenderCommand(ctx *commandContext) *cobra.Command {
	var uploadFlag bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the feed from the published records",
		Long: "Print the RSS document built from the current published set. With\n" +
			"--upload the document is also written to the bucket and the pending\n" +
			"re-render flag is cleared.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cfg, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			published, err := store.Published(cmd.Context())
			if err != nil {
				return err
			}
			renderer := publish.NewFeedRenderer(cfg.Feed, cfg.Publish.PublicBaseURL)

			if !uploadFlag {
				// No bucket round trip for a plain render, so the optional
				// artwork reference is left out.
				fmt.Fprint(cmd.OutOrStdout(), renderer.Render(published, time.Now(), false))
				return nil
			}

			bucket, err := publish.NewBucket(cfg.Publish)
			if err != nil {
				return err
			}
			withArtwork, err := bucket.Exists(cmd.Context(), publish.ArtworkKey)
			if err != nil {
				withArtwork = false
			}
			doc := renderer.Render(published, time.Now(), withArtwork)
			if err := bucket.UploadBytes(cmd.Context(), publish.FeedKey, []byte(doc), "application/rss+xml"); err != nil {
				return err
			}
			if err := store.SetFeedDirty(cmd.Context(), false); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Feed uploaded with %d episodes\n", len(published))
			return nil
		},
	}

	cmd.Flags().BoolVar(&uploadFlag, "upload", false, "Upload the rendered feed to the bucket")
	return cmd
}
