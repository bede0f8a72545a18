package testutil

import (
	"context"
	"sync"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

// MockLogger captures log entries for assertions. It is safe for use by
// several goroutines, so background loops can log into it while a test reads.
type MockLogger struct {
	mu     sync.Mutex
	logs   []LogEntry
	fields map[string]interface{}
	parent *MockLogger
}

// LogEntry is one captured log call.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// NewMockLogger returns an empty recorder.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

func (m *MockLogger) Debug(msg string, args ...any) { m.record("debug", msg, args) }
func (m *MockLogger) Info(msg string, args ...any)  { m.record("info", msg, args) }
func (m *MockLogger) Warn(msg string, args ...any)  { m.record("warn", msg, args) }
func (m *MockLogger) Error(msg string, args ...any) { m.record("error", msg, args) }

// With returns a child that records into the same entry list.
func (m *MockLogger) With(args ...any) logger.Logger {
	fields := argsToMap(args)
	for key, value := range m.fields {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	return &MockLogger{fields: fields, parent: m.root()}
}

func (m *MockLogger) WithContext(ctx context.Context) logger.Logger {
	if runID := logger.RunIDFromContext(ctx); runID != "" {
		return m.With("run_id", runID)
	}
	return m
}

// Entries returns a copy of every captured entry.
func (m *MockLogger) Entries() []LogEntry {
	root := m.root()
	root.mu.Lock()
	defer root.mu.Unlock()
	out := make([]LogEntry, len(root.logs))
	copy(out, root.logs)
	return out
}

// Count returns the number of entries at level.
func (m *MockLogger) Count(level string) int {
	n := 0
	for _, entry := range m.Entries() {
		if entry.Level == level {
			n++
		}
	}
	return n
}

// CountMessage returns the number of entries at level with message msg.
func (m *MockLogger) CountMessage(level, msg string) int {
	n := 0
	for _, entry := range m.Entries() {
		if entry.Level == level && entry.Msg == msg {
			n++
		}
	}
	return n
}

// Reset drops every captured entry.
func (m *MockLogger) Reset() {
	root := m.root()
	root.mu.Lock()
	root.logs = nil
	root.mu.Unlock()
}

func (m *MockLogger) root() *MockLogger {
	if m.parent != nil {
		return m.parent
	}
	return m
}

func (m *MockLogger) record(level, msg string, args []any) {
	fields := argsToMap(args)
	for key, value := range m.fields {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	root := m.root()
	root.mu.Lock()
	root.logs = append(root.logs, LogEntry{Level: level, Msg: msg, Fields: fields})
	root.mu.Unlock()
}

func argsToMap(args []any) map[string]interface{} {
	fields := make(map[string]interface{})
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields[key] = args[i+1]
		}
	}
	return fields
}
