package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentJSON(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, slog.LevelInfo, true)

	Component("batch").Info("merged", "stream", "x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if entry["component"] != "batch" {
		t.Errorf("component = %v, want batch", entry["component"])
	}
	if entry["msg"] != "merged" {
		t.Errorf("msg = %v, want merged", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, slog.LevelWarn, false)

	Component("x").Info("hidden")
	Component("x").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn line should be written")
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, slog.LevelInfo, false)

	ctx := ContextWithDeployment(context.Background(), "dep-1")
	ctx = ContextWithRequestID(ctx, 42)
	WithContext(ctx).Info("query")

	out := buf.String()
	if !strings.Contains(out, "deployment=dep-1") {
		t.Errorf("missing deployment attribute: %q", out)
	}
	if !strings.Contains(out, "request_id=42") {
		t.Errorf("missing request id attribute: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
