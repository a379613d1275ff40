package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestErrorCarriesCallerAndError(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	if err := Configure("info", true); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer Configure("info", false)

	Error(errors.New("boom"), "indexing %s failed", "book-1")

	out := buf.String()
	for _, want := range []string{"logger_test.go:", "indexing book-1 failed", `"error":"boom"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q does not contain %q", out, want)
		}
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	if err := Configure("loud", false); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	if err := Configure("info", false); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}
}

func TestJobFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	if err := Configure("info", true); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	defer Configure("info", false)

	Job("vector", "b1", "turath:42").Info("done")
	out := buf.String()
	if !strings.Contains(out, `"book_id":"b1"`) || !strings.Contains(out, `"version_id":"turath:42"`) {
		t.Fatalf("missing job fields: %q", out)
	}
}
