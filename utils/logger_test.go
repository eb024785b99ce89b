package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerDebugGating(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWith(LoggerOptions{Writer: &buf})
	l.Debug("hidden %d", 1)
	l.Info("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line should be suppressed, got %q", out)
	}
	if !strings.Contains(out, "shown 2") {
		t.Errorf("info line missing, got %q", out)
	}
}

func TestLoggerJSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWith(LoggerOptions{Writer: &buf, Format: "json", Debug: true}).With("run_id", "abc")
	l.Debug("[ingest] starting")

	out := buf.String()
	if !strings.Contains(out, `"run_id":"abc"`) {
		t.Errorf("expected run_id attribute, got %q", out)
	}
	if !strings.Contains(out, `"level":"DEBUG"`) {
		t.Errorf("expected DEBUG level, got %q", out)
	}
}
