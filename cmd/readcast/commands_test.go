package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCLIConfig(t *testing.T) string {
	return writeCLIConfigWithSource(t, "")
}

func writeCLIConfigWithSource(t *testing.T, sourceBaseURL string) string {
	t.Helper()

	base := t.TempDir()
	sourceExtra := ""
	if sourceBaseURL != "" {
		sourceExtra = "\nbase_url = \"" + sourceBaseURL + "\""
	}
	contents := `
[paths]
staging_dir = "` + filepath.Join(base, "staging") + `"
log_dir = "` + filepath.Join(base, "logs") + `"

[source]
token = "test-token"` + sourceExtra + `

[generation]
base_url = "http://127.0.0.1:1"
session_token = "test-session"

[publish]
endpoint = "http://127.0.0.1:1"
access_key_id = "key"
secret_access_key = "secret"
bucket = "podcast"
public_base_url = "https://cdn.example.com"

[feed]
title = "Test Feed"
description = "Articles as audio"
author = "Tester"
`
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// A second init without --overwrite refuses to clobber.
	if _, err := runCLI(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestStatusOnEmptyStore(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "total") {
		t.Fatalf("unexpected output: %q", out)
	}
	if !strings.Contains(out, "Feed re-render owed: no") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRecordsListOnEmptyStore(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", configPath, "records", "list")
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	if !strings.Contains(out, "No records found") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestRecordsListRejectsUnknownState(t *testing.T) {
	configPath := writeCLIConfig(t)

	_, err := runCLI(t, "--config", configPath, "records", "list", "--state", "ripping")
	if err == nil || !strings.Contains(err.Error(), "unknown state") {
		t.Fatalf("error = %v, want unknown state", err)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Fatalf("expected redacted secrets, got: %q", out)
	}
	for _, secret := range []string{"test-token", "test-session"} {
		if strings.Contains(out, secret) {
			t.Fatalf("secret %q leaked into output: %q", secret, out)
		}
	}
	if !strings.Contains(out, "cdn.example.com") {
		t.Fatalf("expected non-secret values printed, got: %q", out)
	}
}

func TestInitMarksBacklogSkipped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 1, "results": [
			{"id": "old-1", "title": "Backlog Piece", "author": "A", "source_url": "https://example.com/old-1"}
		]}`))
	}))
	defer server.Close()

	configPath := writeCLIConfigWithSource(t, server.URL)

	out, err := runCLI(t, "--config", configPath, "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Skipped 1 backlog") {
		t.Fatalf("unexpected output: %q", out)
	}

	listOut, err := runCLI(t, "--config", configPath, "records", "list", "--state", "abandoned")
	if err != nil {
		t.Fatalf("records list: %v", err)
	}
	if !strings.Contains(listOut, "old-1") {
		t.Fatalf("expected skipped record listed, got: %q", listOut)
	}
}

func TestFeedRenderEmptyPrintsDocument(t *testing.T) {
	configPath := writeCLIConfig(t)

	out, err := runCLI(t, "--config", configPath, "feed", "render")
	if err != nil {
		t.Fatalf("feed render: %v", err)
	}
	if !strings.Contains(out, "<rss") || !strings.Contains(out, "Test Feed") {
		t.Fatalf("unexpected output: %q", out)
	}
}
