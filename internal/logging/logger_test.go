package logging_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"readcast/internal/logging"
	"readcast/internal/services"
)

func TestConsoleFormatIncludesComponentAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logging.NewComponentLogger(logger, "pipeline").Info("stage started",
		logging.String("record_id", "article-1"),
		logging.Int("attempt", 2),
	)
	line := buf.String()
	if !strings.Contains(line, "pipeline: stage started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "record_id=article-1") || !strings.Contains(line, "attempt=2") {
		t.Fatalf("expected attrs in output, got %q", line)
	}
}

func TestJSONFormatEmitsLowercaseLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Warn("cursor not advanced")
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) {
		t.Fatalf("expected lowercase level key, got %q", out)
	}
	if !strings.Contains(out, `"msg":"cursor not advanced"`) {
		t.Fatalf("expected msg key, got %q", out)
	}
}

func TestUnsupportedFormatRejected(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextStampsFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := services.WithRecordID(context.Background(), "article-9")
	ctx = services.WithStage(ctx, "download")
	logging.WithContext(ctx, logger).Debug("checking artifact")
	line := buf.String()
	if !strings.Contains(line, "record_id=article-9") || !strings.Contains(line, "stage=download") {
		t.Fatalf("expected context fields, got %q", line)
	}
}
