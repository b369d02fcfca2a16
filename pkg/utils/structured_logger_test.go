package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level LogLevel, format LogFormat) (*StructuredLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger, err := NewStructuredLogger(&StructuredLoggerConfig{
		Level:  level,
		Output: &buf,
		Format: format,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger, &buf
}

func TestNewStructuredLogger(t *testing.T) {
	logger, _ := newTestLogger(t, DEBUG, FormatText)
	if logger.GetLevel() != DEBUG {
		t.Errorf("Expected DEBUG level, got %v", logger.GetLevel())
	}

	if _, err := NewStructuredLogger(&StructuredLoggerConfig{Level: INFO}); err == nil {
		t.Error("expected error for nil output")
	}
}

func TestLogLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Debug("debug message")
	if buf.Len() > 0 {
		t.Error("Debug message was logged when level is INFO")
	}

	for _, log := range []func(string, ...map[string]interface{}){logger.Info, logger.Warn, logger.Error} {
		buf.Reset()
		log("visible message")
		if !strings.Contains(buf.String(), "visible message") {
			t.Errorf("message not found in output: %q", buf.String())
		}
	}
}

func TestStructuredFields(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	logger.Info("page stored", map[string]interface{}{
		"page_id": 7,
		"size":    128,
		"err":     errors.New("boom"),
	})

	output := buf.String()
	for _, want := range []string{"page_id=7", "size=128", "err=boom"} {
		if !strings.Contains(output, want) {
			t.Errorf("%q not found in output %q", want, output)
		}
	}
	if strings.Index(output, "err=") > strings.Index(output, "page_id=") {
		t.Error("fields are not sorted")
	}
}

func TestWithFieldsAndComponent(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)

	child := logger.WithComponent("pagestore").WithFields(map[string]interface{}{
		"session": "abc",
	})
	child.Info("evicted")

	output := buf.String()
	if !strings.Contains(output, "component=pagestore") || !strings.Contains(output, "session=abc") {
		t.Errorf("context fields missing: %q", output)
	}

	buf.Reset()
	logger.Info("parent")
	if strings.Contains(buf.String(), "session=abc") {
		t.Error("child fields leaked into parent logger")
	}
}

func TestComponentLevels(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatText)
	logger.SetComponentLevel("render", DEBUG)

	logger.WithComponent("render").Debug("render debug")
	if !strings.Contains(buf.String(), "render debug") {
		t.Error("component level override not honoured")
	}

	buf.Reset()
	logger.WithComponent("version").Debug("version debug")
	if buf.Len() != 0 {
		t.Error("debug logged for component without override")
	}
}

func TestJSONFormat(t *testing.T) {
	logger, buf := newTestLogger(t, INFO, FormatJSON)
	logger.WithComponent("api").Infof("served %d sessions", 3)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if entry.Level != "INFO" {
		t.Errorf("Level = %q", entry.Level)
	}
	if entry.Message != "served 3 sessions" {
		t.Errorf("Message = %q", entry.Message)
	}
	if entry.Fields["component"] != "api" {
		t.Errorf("component = %v", entry.Fields["component"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("dropped")
	logger.WithComponent("x").Warnf("dropped %d", 1)
}
