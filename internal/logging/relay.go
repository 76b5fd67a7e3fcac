package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"
)

const maxRelayLine = 1 << 20

// Relay reads JSON log lines written by a child process (see the json
// handler key layout: ts, level, msg) and re-emits them on logger until r is
// exhausted. Lines that are not JSON objects are logged verbatim at info.
// Lines longer than 1 MiB are cut at the limit and flagged with a warning;
// the rest of the line is read and discarded so the writer never blocks.
func Relay(ctx context.Context, logger *slog.Logger, r io.Reader) {
	if logger == nil || r == nil {
		return
	}
	reader := bufio.NewReaderSize(r, 64*1024)
	var (
		line      []byte
		truncated bool
	)
	for {
		chunk, err := reader.ReadSlice('\n')
		if room := maxRelayLine - len(line); len(chunk) > room {
			line = append(line, chunk[:max(room, 0)]...)
			truncated = true
		} else {
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		relayLine(ctx, logger, string(line), truncated)
		line, truncated = line[:0], false
		if err != nil {
			return
		}
	}
}

func relayLine(ctx context.Context, logger *slog.Logger, raw string, truncated bool) {
	line := strings.TrimSpace(raw)
	if truncated {
		logger.WarnContext(ctx, "child log line truncated",
			Int("limit_bytes", maxRelayLine),
			String("prefix", truncate(line, 200)),
		)
		return
	}
	if line == "" {
		return
	}
	record, ok := decodeRecord(line)
	if !ok {
		logger.InfoContext(ctx, line)
		return
	}
	if !logger.Handler().Enabled(ctx, record.Level) {
		return
	}
	_ = logger.Handler().Handle(ctx, record)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func decodeRecord(line string) (slog.Record, bool) {
	if !strings.HasPrefix(line, "{") {
		return slog.Record{}, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return slog.Record{}, false
	}

	ts := time.Now()
	if raw, ok := payload["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			ts = parsed
		}
	}
	level := slog.LevelInfo
	if raw, ok := payload["level"].(string); ok {
		level = parseLevel(raw)
	}
	msg, _ := payload["msg"].(string)

	record := slog.NewRecord(ts, level, msg, 0)
	for key, value := range payload {
		switch key {
		case "ts", "level", "msg", "source":
			continue
		}
		record.AddAttrs(slog.Any(key, value))
	}
	return record, true
}
