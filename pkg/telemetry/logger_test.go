package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"FATAL", zerolog.FatalLevel},
	}
	for _, tt := range tests {
		level, err := parseLevel(tt.input)
		if err != nil {
			t.Errorf("parseLevel(%q) failed: %v", tt.input, err)
		}
		if level != tt.expected {
			t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level, tt.expected)
		}
	}

	if _, err := parseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level, got nil")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := &Logger{Logger: zerolog.New(&buf)}

	base.NewComponentLogger("orchestrator").
		WithRunID("r1").
		WithNodeID("a").
		WithPass("dedupe").
		Info().Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Log output is not JSON: %v", err)
	}

	expected := map[string]string{
		"component": "orchestrator",
		"run_id":    "r1",
		"node_id":   "a",
		"pass":      "dedupe",
		"message":   "hello",
	}
	for key, want := range expected {
		if entry[key] != want {
			t.Errorf("Expected %s=%q, got %v", key, want, entry[key])
		}
	}
}

func TestLogger_ContextRoundTrip(t *testing.T) {
	logger := &Logger{Logger: zerolog.Nop()}
	ctx := logger.WithContext(context.Background())

	if got := FromContext(ctx); got != logger {
		t.Error("Expected logger stored in context to round-trip")
	}

	fallback := FromContext(context.Background())
	if fallback == nil {
		t.Fatal("Expected a fallback logger, got nil")
	}
	// Must be safe to use.
	fallback.Info().Msg("discarded")
}
