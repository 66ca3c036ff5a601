package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONIncludesServiceAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New("api", "warn", FormatJSON, &buf)

	logger.Info("upload_started")
	logger.Warn("upload_retry_scheduled", "attempt", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" || entry["msg"] != "upload_retry_scheduled" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestAutoFormatFallsBackToJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if got := resolveFormat(FormatAuto, &buf); got != FormatJSON {
		t.Fatalf("resolveFormat(auto, buffer) = %s", got)
	}
}

func TestTextFormatUsesTint(t *testing.T) {
	var buf bytes.Buffer
	logger := New("routerctl", "info", FormatText, &buf)
	logger.Info("catalog_validated", "flags", 3)

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected text output, got JSON: %q", out)
	}
	if !strings.Contains(out, "catalog_validated") || !strings.Contains(out, "flags=3") {
		t.Fatalf("unexpected text output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
