package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(line, &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"info":    zerolog.InfoLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "info", Output: &buf})

	l.LogStoreOperation("save", "a", 1, time.Millisecond, nil)
	if buf.Len() != 0 {
		t.Fatalf("debug store log should be filtered at info, got %s", buf.String())
	}

	l.LogStoreOperation("save", "a", 1, time.Millisecond, errors.New("disk full"))
	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["level"] != "error" || lines[0]["error"] != "disk full" {
		t.Errorf("unexpected entry: %v", lines[0])
	}
	if lines[0]["service"] != "outlinestore" || lines[0]["id"] != "a" {
		t.Errorf("missing fields: %v", lines[0])
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: "debug", Output: &buf})

	l.LogRequest("http", "GET /users/u/nodes/a", 200, time.Millisecond, nil)
	l.LogRequest("http", "GET /users/u/nodes/b", 404, time.Millisecond, errors.New("not found"))
	l.LogRequest("grpc", "/outlinestore.v1.Outline/Read", 500, time.Millisecond, errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	want := []string{"info", "warn", "error"}
	for i, w := range want {
		if lines[i]["level"] != w {
			t.Errorf("line %d level = %v, want %s", i, lines[i]["level"], w)
		}
	}
	if lines[2]["component"] != "grpc" {
		t.Errorf("component = %v", lines[2]["component"])
	}
}

func TestComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Output: &buf}).
		Component("api").
		WithFields(map[string]interface{}{"user": "u1"})

	l.Info("hello").Send()

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["component"] != "api" || lines[0]["user"] != "u1" || lines[0]["msg"] != "hello" {
		t.Errorf("unexpected entry: %v", lines[0])
	}
}
