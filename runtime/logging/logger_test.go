package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLogHandler(&buf, Options{Component: "generate", Pass: "p1"}, slog.LevelInfo))

	logger.Debug("hidden")
	logger.Info("hello", "type", "Item")
	logger.With("package", "example.com/inventory").Warn("problem")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	for _, e := range entries {
		if e["component"] != "generate" || e["pass"] != "p1" {
			t.Errorf("missing handler attributes: %v", e)
		}
		if _, ok := e[slog.SourceKey]; !ok {
			t.Errorf("missing source: %v", e)
		}
		ts, _ := e[slog.TimeKey].(string)
		if _, err := time.ParseInLocation(time.DateTime, ts, time.Local); err != nil {
			t.Errorf("time %q is not in DateTime format: %v", ts, err)
		}
	}

	got := map[string]any{"msg": entries[1]["msg"], "package": entries[1]["package"]}
	want := map[string]any{"msg": "problem", "package": "example.com/inventory"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestHandleDoesNotAccumulate(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewLogHandler(&buf, Options{Component: "check"}, slog.LevelInfo))
	for i := 0; i < 3; i++ {
		logger.Info("again")
	}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if n := strings.Count(line, `"component"`); n != 1 {
			t.Fatalf("line has %d component attributes: %s", n, line)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, test := range []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	} {
		got, err := ParseLevel(test.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", test.in, err)
		}
		if got != test.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", test.in, got, test.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud): unexpected success")
	}
}
