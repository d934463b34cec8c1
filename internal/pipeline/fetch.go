package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"readcast/internal/config"
	"readcast/internal/records"
	"readcast/internal/services"
	"readcast/internal/source"
	"readcast/internal/stage"
	"readcast/internal/textutil"
)

// fetchStage pulls an article's full content from the source service,
// reduces it to plain text, and stages it on disk so the record can cross
// runs without refetching.
type fetchStage struct {
	cfg      *config.Config
	articles source.Lister
	logger   *slog.Logger
}

func newFetchStage(cfg *config.Config, articles source.Lister, logger *slog.Logger) *fetchStage {
	return &fetchStage{cfg: cfg, articles: articles, logger: logger}
}

func (s *fetchStage) Prepare(ctx context.Context, record *records.Record) error {
	if record.SourceID == "" {
		return errors.New("record missing source id")
	}
	return nil
}

func (s *fetchStage) Execute(ctx context.Context, record *records.Record) error {
	html, err := s.articles.FetchContent(ctx, record.SourceID)
	if err != nil {
		return err
	}

	text := textutil.HTMLToText(html)
	if text == "" {
		return services.Wrap(services.ErrRejected, stage.NameFetch, "extract text",
			"article content reduced to nothing", nil)
	}

	path := filepath.Join(s.cfg.Paths.StagingDir, record.SourceID+".txt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, stage.NameFetch, "stage content", "", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, stage.NameFetch, "stage content", "", err)
	}

	record.Title = textutil.NormalizeTitle(record.Title)
	record.ContentPath = path
	record.State = records.StateFetched
	return nil
}

func (s *fetchStage) HealthCheck(ctx context.Context) stage.Health {
	if s.articles == nil {
		return stage.Unhealthy(stage.NameFetch, "no source client configured")
	}
	if _, err := s.articles.ListSaved(ctx, time.Time{}, ""); err != nil {
		return stage.Unhealthy(stage.NameFetch, err.Error())
	}
	return stage.Healthy(stage.NameFetch)
}
