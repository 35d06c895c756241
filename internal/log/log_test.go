package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConfigureOnce(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "fennec-test"})
	// Second call must be a no-op.
	Configure(Config{Level: "error", Output: &bytes.Buffer{}, Service: "other"})

	logger := WithComponent("api")
	logger.Info().Str("event", "started").Msg("listening")

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line")
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["service"] != "fennec-test" {
		t.Fatalf("service = %v, want fennec-test", entry["service"])
	}
	if entry["component"] != "api" {
		t.Fatalf("component = %v, want api", entry["component"])
	}
	if entry["message"] != "listening" {
		t.Fatalf("message = %v", entry["message"])
	}
}

func TestBaseDoesNotPanicWithoutConfigure(t *testing.T) {
	logger := Base()
	logger.Debug().Msg("noop")
}
