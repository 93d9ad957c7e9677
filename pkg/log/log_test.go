package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"  warn  ", LevelWarn, false},
		{"WARNING", LevelWarn, false},
		{"err", LevelError, false},
		{"fatal", LevelFatal, false},
		{"off", LevelOff, false},
		{"none", LevelOff, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf})

	l.Scheduler().Info("scheduler started", "logger", "plant1", "connections", 3)

	out := buf.String()
	for _, want := range []string{"INFO", "[scheduler]", "scheduler started",
		"logger=plant1", "connections=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}

func TestTextOutputWithError(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf})

	l.Sink().Error("row insert failed", errors.New("table gone"), "connection", "plc")

	out := buf.String()
	if !strings.Contains(out, `error="table gone"`) {
		t.Errorf("output misses the error:\n%s", out)
	}
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf, Format: FormatJSON})

	l.Device().Warn("read pass failed", "connection", "plc")

	var entry struct {
		Category string                 `json:"category"`
		Message  string                 `json:"message"`
		Fields   map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry.Category != "device" || entry.Message != "read pass failed" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["connection"] != "plc" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelWarn, Output: &buf})

	l.IPC().Debug("suppressed")
	l.IPC().Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("filtered levels produced output:\n%s", buf.String())
	}

	l.IPC().Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn suppressed:\n%s", buf.String())
	}
}

func TestPerCategoryLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{
		DefaultLevel:   LevelWarn,
		Output:         &buf,
		CategoryLevels: map[Category]Level{CategoryDevice: LevelDebug},
	})

	l.Device().Debug("device noise")
	l.Sink().Debug("sink noise")

	out := buf.String()
	if !strings.Contains(out, "device noise") {
		t.Errorf("device override lost:\n%s", out)
	}
	if strings.Contains(out, "sink noise") {
		t.Errorf("sink debug leaked:\n%s", out)
	}
}

func TestSetLevelAndOutput(t *testing.T) {
	var a, b bytes.Buffer
	l := New(Config{DefaultLevel: LevelInfo, Output: &a})

	l.SetOutput(CategoryIPC, &b)
	l.SetLevel(CategoryIPC, LevelError)

	l.IPC().Info("suppressed")
	l.IPC().Error("kept", nil)
	l.System().Info("system line")

	if a.Len() == 0 || !strings.Contains(a.String(), "system line") {
		t.Errorf("default output:\n%s", a.String())
	}
	if strings.Contains(b.String(), "suppressed") || !strings.Contains(b.String(), "kept") {
		t.Errorf("ipc output:\n%s", b.String())
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf})

	fl := l.Device().WithFields("connection", "plc")
	fl.Info("reconnected", "attempt", 2)

	out := buf.String()
	if !strings.Contains(out, "connection=plc") || !strings.Contains(out, "attempt=2") {
		t.Errorf("output = %s", out)
	}
}

func TestAsyncLogging(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{DefaultLevel: LevelDebug, Output: &buf, AsyncBuffer: 16})

	for i := 0; i < 5; i++ {
		l.Scheduler().Info("tick")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := strings.Count(buf.String(), "tick"); got != 5 {
		t.Errorf("flushed %d entries, want 5", got)
	}
	logged, dropped := l.Stats()
	if logged != 5 || dropped != 0 {
		t.Errorf("Stats = (%d, %d)", logged, dropped)
	}

	// Closing twice is safe.
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
