package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func bufferLogger(buf *bytes.Buffer) *Logger {
	return &Logger{zlog: zerolog.New(buf).With().Timestamp().Logger()}
}

func decode(t *testing.T, line string) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("Expected valid JSON output, got error: %v (%q)", err, line)
	}
	return entry
}

func TestNew_Modes(t *testing.T) {
	for _, env := range []string{"development", "production"} {
		l := New(env)
		if l == nil || l.GetZerolog() == nil {
			t.Fatalf("Expected logger for env %s", env)
		}
	}
}

func TestNewWithOptions_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOptions(&buf, "production", "WARN")

	l.Info("hidden", nil)
	l.Warn("shown", nil)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Info should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Warn should pass at warn level")
	}
}

func TestNewWithOptions_UnknownLevelKeepsDefault(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithOptions(&buf, "production", "loud")

	l.Debug("debug message", nil)
	l.Info("info message", nil)

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("Debug should not appear at the production default level")
	}
	if !strings.Contains(out, "info message") {
		t.Error("Info should appear at the production default level")
	}
}

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := bufferLogger(&buf)

	l.Debug("debug message", map[string]interface{}{"key1": "value1"})
	l.Info("info message", map[string]interface{}{"records": 3})
	l.Warn("warning message", map[string]interface{}{"record_index": 7})
	l.Error("error occurred", errors.New("store down"), map[string]interface{}{"context": "database"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("Expected 4 log lines, got %d", len(lines))
	}
	wantLevels := []string{"debug", "info", "warn", "error"}
	for i, line := range lines {
		entry := decode(t, line)
		if entry["level"] != wantLevels[i] {
			t.Errorf("line %d: expected level %s, got %v", i, wantLevels[i], entry["level"])
		}
	}
	last := decode(t, lines[3])
	if last["error"] != "store down" || last["context"] != "database" {
		t.Errorf("Unexpected error entry: %v", last)
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	child := bufferLogger(&buf).With(map[string]interface{}{"component": "pipeline"})

	child.Info("test message", nil)

	if entry := decode(t, buf.String()); entry["component"] != "pipeline" {
		t.Errorf("Expected component field, got %v", entry)
	}
}

func TestWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	bufferLogger(&buf).WithRequestID("req-12345").Info("request received", nil)

	if entry := decode(t, buf.String()); entry["request_id"] != "req-12345" {
		t.Errorf("Expected request_id field, got %v", entry)
	}
}

func TestWithJob(t *testing.T) {
	var buf bytes.Buffer
	bufferLogger(&buf).WithJob("job-1", "Permit").Info("job started", nil)

	entry := decode(t, buf.String())
	if entry["job_id"] != "job-1" || entry["import_type"] != "Permit" {
		t.Errorf("Expected job fields, got %v", entry)
	}
}

func TestNop(t *testing.T) {
	// Must not panic or write anywhere.
	Nop().Error("ignored", errors.New("x"), map[string]interface{}{"k": "v"})
}
