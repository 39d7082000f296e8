package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ln := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if ln == "" {
			continue
		}
		m := map[string]any{}
		if err := json.Unmarshal([]byte(ln), &m); err != nil {
			t.Fatalf("bad json line %q: %v", ln, err)
		}
		out = append(out, m)
	}
	return out
}

func TestSlogBridge_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "tile-gateway"}, &buf)
	log := NewSlog(&zl).With("component", "gateway")

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithEndpoint(ctx, "latvia")
	ctx = WithTile(ctx, "10/580/316")
	log.WarnContext(ctx, "tile fetch failed", "err", errors.New("boom"), "status", 503)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("lines=%d want 1", len(lines))
	}
	m := lines[0]
	want := map[string]any{
		"level":      "warn",
		"msg":        "tile fetch failed",
		"service":    "tile-gateway",
		"request_id": "req-1",
		"endpoint":   "latvia",
		"tile":       "10/580/316",
		"err":        "boom",
		"status":     float64(503),
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("%s=%v want %v (line %v)", k, m[k], v, m)
		}
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", m)
	}
}

func TestSlogBridge_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	log := NewSlog(&zl)

	log.Info("dropped")
	log.Debug("dropped")
	log.Error("kept")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "kept" {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestSlogBridge_Groups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	NewSlog(&zl).WithGroup("upstream").Info("fetched", "status", 200)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["upstream.status"] != float64(200) {
		t.Fatalf("unexpected lines: %v", lines)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id %q, want 16 hex chars", id)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"debug": "debug", "WARN": "warn", "error": "error", "": "info", "nonsense": "info"}
	for in, want := range cases {
		if got := ParseLevel(in).String(); got != want {
			t.Fatalf("ParseLevel(%q)=%s want %s", in, got, want)
		}
	}
}
