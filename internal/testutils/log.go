package testutils

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// ExpectedRecord is a log record expected to be emitted.
type ExpectedRecord struct {
	Level   slog.Level
	Message string
}

// Compare asserts that have matches the expected level and contains the expected message.
func (want ExpectedRecord) Compare(t *testing.T, have slog.Record) {
	t.Helper()

	assert.Equal(t, want.Level, have.Level, "Expected Level did not match real Level")

	if want.Message == "" {
		return
	}
	assert.Contains(t, have.Message, want.Message, "Real Message does not contain Expected")
}

// MockHandler is a slog.Handler keeping every record it handles.
type MockHandler struct {
	mu      sync.Mutex
	records []slog.Record
	attrs   []slog.Attr
}

// CaptureLogs installs a MockHandler as the default logger until the end of the test.
// Tests using it must not run in parallel.
func CaptureLogs(t *testing.T) *MockHandler {
	t.Helper()

	prev := slog.Default()
	h := &MockHandler{}
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })

	return h
}

// Enabled implements Handler.Enabled.
func (h *MockHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle implements Handler.Handle. Attributes added with WithAttrs are kept on the record.
func (h *MockHandler) Handle(_ context.Context, record slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := record.Clone()
	r.AddAttrs(h.attrs...)
	h.records = append(h.records, r)
	return nil
}

// WithAttrs implements Handler.WithAttrs.
func (h *MockHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attrs = append(h.attrs, attrs...)
	return h
}

// WithGroup implements Handler.WithGroup. Groups are ignored.
func (h *MockHandler) WithGroup(string) slog.Handler {
	return h
}

// Records returns the records handled at level or above.
func (h *MockHandler) Records(level slog.Level) []slog.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	var records []slog.Record
	for _, r := range h.records {
		if r.Level >= level {
			records = append(records, r)
		}
	}
	return records
}

// Attr returns the value of the attribute key of r, and whether it was found.
func Attr(r slog.Record, key string) (slog.Value, bool) {
	var v slog.Value
	var found bool
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			v, found = a.Value, true
			return false
		}
		return true
	})
	return v, found
}
