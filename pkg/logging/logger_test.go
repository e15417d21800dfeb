package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.1", InfoLevel)
	logger.SetOutput(&buf)

	ctx := context.Background()
	logger.Debug(ctx, "[TEST] hidden", Fields{})
	logger.Info(ctx, "[TEST] shown", Fields{"rows": 3})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["msg"] != "[TEST] shown" {
		t.Errorf("msg = %v, want %v", entries[0]["msg"], "[TEST] shown")
	}
	if entries[0]["service"] != "test" {
		t.Errorf("service = %v, want %v", entries[0]["service"], "test")
	}
	fields, ok := entries[0]["fields"].(map[string]interface{})
	if !ok || fields["rows"] != float64(3) {
		t.Errorf("fields = %v, want rows=3", entries[0]["fields"])
	}
}

func TestStructuredLogger_RequestIDAndError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.1", DebugLevel)
	logger.SetOutput(&buf)

	ctx := WithRequestID(context.Background(), "req-42")
	logger.Error(ctx, "[TEST_ERROR] boom", nil, errors.New("disk full"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want %v", entries[0]["request_id"], "req-42")
	}
	if entries[0]["error"] != "disk full" {
		t.Errorf("error = %v, want %v", entries[0]["error"], "disk full")
	}
}

func TestContextLogger_MergeFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger("test", "0.0.1", InfoLevel)
	logger.SetOutput(&buf)

	logger.WithFields(Fields{"table": "weather_data", "stage": "A"}).
		Info(context.Background(), "[TEST] merged", Fields{"stage": "B"})

	entries := decodeLines(t, &buf)
	fields := entries[0]["fields"].(map[string]interface{})
	if fields["table"] != "weather_data" || fields["stage"] != "B" {
		t.Errorf("fields = %v, want table=weather_data stage=B", fields)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DebugLevel,
		"DEBUG":   DebugLevel,
		"warn":    WarnLevel,
		"error":   ErrorLevel,
		"info":    InfoLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
