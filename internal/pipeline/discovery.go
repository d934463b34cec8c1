package pipeline

import (
	"context"
	"log/slog"
	"time"

	"readcast/internal/logging"
	"readcast/internal/records"
)

// discover lists articles the source touched after the stored watermark,
// inserting a discovered record for each one not seen before. The page cursor
// lives only inside this loop; the durable cursor is a timestamp, because an
// exhausted listing's page token would never surface later saves. The
// watermark advances only after the whole listing succeeded, so an
// interrupted discovery re-lists the same window next run and the primary-key
// dedup absorbs the overlap.
func (o *Orchestrator) discover(ctx context.Context, logger *slog.Logger, summary *Summary) error {
	raw, err := o.store.Cursor(ctx)
	if err != nil {
		return err
	}
	var updatedAfter time.Time
	if raw != "" {
		parsed, parseErr := time.Parse(time.RFC3339Nano, raw)
		if parseErr != nil {
			logger.Warn("stored cursor is not a timestamp, re-listing everything",
				logging.String("cursor", raw))
		} else {
			updatedAfter = parsed
		}
	}

	// Articles saved between this instant and the end of the listing get
	// re-listed next run rather than lost.
	watermark := o.now()

	pageCursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := o.articles.ListSaved(ctx, updatedAfter, pageCursor)
		if err != nil {
			return err
		}

		for _, article := range page.Articles {
			existing, err := o.store.Get(ctx, article.ID)
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
				State:       records.StateDiscovered,
			}
			if err := o.store.Upsert(ctx, record); err != nil {
				return err
			}
			summary.Discovered++
			logger.Info("article discovered",
				logging.String(logging.FieldEventType, "discovered"),
				logging.String(logging.FieldRecordID, article.ID),
				logging.String("title", article.Title))
		}

		if page.NextCursor == "" || page.NextCursor == pageCursor {
			break
		}
		pageCursor = page.NextCursor
	}

	return o.store.SetCursor(ctx, watermark.UTC().Format(time.RFC3339Nano))
}
