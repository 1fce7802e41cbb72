package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// LogRecorder is a slog.Handler keeping every record at or above a minimum level.
type LogRecorder struct {
	minLevel slog.Level

	mu      sync.Mutex
	records []slog.Record
}

// NewLogRecorder returns a LogRecorder dropping records below minLevel.
func NewLogRecorder(minLevel slog.Level) *LogRecorder {
	return &LogRecorder{minLevel: minLevel}
}

// Enabled implements slog.Handler.
func (h *LogRecorder) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

// Handle implements slog.Handler.
func (h *LogRecorder) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler. Attributes are not recorded.
func (h *LogRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler. Groups are not recorded.
func (h *LogRecorder) WithGroup(string) slog.Handler { return h }

// Levels counts the recorded records per level.
func (h *LogRecorder) Levels() map[slog.Level]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	levels := make(map[slog.Level]int)
	for _, r := range h.records {
		levels[r.Level]++
	}
	return levels
}

// Messages returns the recorded messages in order.
func (h *LogRecorder) Messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := make([]string, 0, len(h.records))
	for _, r := range h.records {
		msgs = append(msgs, r.Message)
	}
	return msgs
}

// Dump writes the recorded records to the test log, to help debugging failures.
func (h *LogRecorder) Dump(t *testing.T) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.records {
		t.Logf("%v %s", r.Level, r.Message)
		r.Attrs(func(a slog.Attr) bool {
			t.Logf("  %s", a)
			return true
		})
	}
}
