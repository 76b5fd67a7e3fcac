package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := TeeHandler(nil, inner); h != inner {
		t.Fatal("expected a single handler to be returned unwrapped")
	}
}

func TestTeeHandlerRoutesByLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := TeeHandler(
		slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	logger := slog.New(h).With(String(FieldRunner, "align"))

	logger.Debug("job submitted")
	logger.Info("context finished")

	if strings.Contains(console.String(), "job submitted") {
		t.Fatalf("console should not receive debug records:\n%s", console.String())
	}
	if !strings.Contains(console.String(), "context finished") {
		t.Fatalf("console missing info record:\n%s", console.String())
	}
	lines := strings.Split(strings.TrimSpace(file.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected both records in the file handler, got %d lines", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, `"runner":"align"`) {
			t.Fatalf("expected attributes to reach every handler, got %s", line)
		}
	}
}

func TestWithLevelOverrideReplacesExistingOverride(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(newLevelOverrideHandler(
		slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}), slog.LevelWarn))

	base.Info("quiet")
	verbose := WithLevelOverride(base, slog.LevelDebug)
	verbose.Debug("loud")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Fatalf("expected info to be filtered by the base override:\n%s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Fatalf("expected the new override to let debug through:\n%s", out)
	}
	if _, ok := verbose.Handler().(*levelHandler); !ok {
		t.Fatalf("expected a single level handler, got %T", verbose.Handler())
	}
}

func TestJSONHandlerKeysRoundTripThroughRelay(t *testing.T) {
	var child bytes.Buffer
	lvl := new(slog.LevelVar)
	h, err := newJSONHandler(&child, lvl, false)
	if err != nil {
		t.Fatal(err)
	}
	slog.New(h).Warn("reference missing", Duration("elapsed", 1500*time.Millisecond))

	var payload map[string]any
	if err := json.Unmarshal(child.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["level"] != "warn" || payload["elapsed"] != "1.5s" {
		t.Fatalf("unexpected payload %v", payload)
	}

	var parent bytes.Buffer
	Relay(context.Background(), slog.New(slog.NewJSONHandler(&parent, nil)), &child)
	if !strings.Contains(parent.String(), `"msg":"reference missing"`) {
		t.Fatalf("expected relayed record, got %s", parent.String())
	}
}

func TestSampleIDsTruncates(t *testing.T) {
	ids := make([]string, 0, 12)
	for i := range 12 {
		ids = append(ids, "s"+string(rune('a'+i)))
	}
	got := SampleIDs(ids).Value.String()
	if !strings.HasSuffix(got, "... (12 total)") || strings.Count(got, ",") != maxLoggedIDs {
		t.Fatalf("unexpected truncated list %q", got)
	}
	if got := SampleIDs([]string{"s1", "s2"}).Value.String(); got != "s1,s2" {
		t.Fatalf("unexpected list %q", got)
	}
}

func TestWarnWithContextKeepsCallerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	WarnWithContext(logger, "output was not copied", "output_not_copied", String(FieldImpact, "custom"))

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload[FieldImpact] != "custom" || payload[FieldEventType] != "output_not_copied" || payload[FieldErrorHint] == nil {
		t.Fatalf("unexpected fields %v", payload)
	}
}
