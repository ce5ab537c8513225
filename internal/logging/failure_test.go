package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFailureLogAppendsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	flog := NewFailureLog(path)

	flog.Record("panel snapshot", errors.New("connection refused"))
	flog.Record("report push", errors.New("chat not found"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected failure log file to exist: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "panel snapshot: connection refused") {
		t.Fatalf("expected first entry in log, got %q", content)
	}
	if !strings.Contains(content, "report push: chat not found") {
		t.Fatalf("expected second entry in log, got %q", content)
	}

	if lines := strings.Count(content, "\n"); lines != 2 {
		t.Fatalf("expected 2 entries, got %d lines", lines)
	}
}

func TestFailureLogIgnoresNilErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	flog := NewFailureLog(path)

	flog.Record("noop", nil)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file for nil error, got %v", err)
	}
}

func TestFailureLogNilReceiverIsSafe(t *testing.T) {
	var flog *FailureLog
	flog.Record("noop", errors.New("boom"))
}
