package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if RequestIDFrom(ctx) != "" {
		t.Fatal("empty context should have no request id")
	}

	ctx = ContextWithRequestID(ctx, "req-1")
	if got := RequestIDFrom(ctx); got != "req-1" {
		t.Errorf("RequestIDFrom() = %q", got)
	}

	// 其他包用同名字符串键写入的值不应被读到
	ctx = context.WithValue(context.Background(), "request_id", "spoofed")
	if got := RequestIDFrom(ctx); got != "" {
		t.Errorf("RequestIDFrom() = %q, want empty", got)
	}
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		out = append(out, m)
	}
	return out
}

func TestPlannerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewPlannerLoggerFrom(zerolog.New(&buf).Level(zerolog.DebugLevel))

	l.AssignmentCreated("a-1", "2024-03-04", "morning", 2)
	l.CacheFailure("set", errors.New("redis down"))
	l.PlanningStatusBuilt("2024-02-18", "2024-04-20", 63, 3*time.Millisecond)

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for _, line := range lines {
		if line["component"] != "planner" {
			t.Errorf("component = %v", line["component"])
		}
	}
	if lines[0]["assignment_id"] != "a-1" || lines[0]["warnings"] != float64(2) {
		t.Errorf("AssignmentCreated fields = %v", lines[0])
	}
	if lines[1]["level"] != "warn" || lines[1]["error"] != "redis down" || lines[1]["op"] != "set" {
		t.Errorf("CacheFailure fields = %v", lines[1])
	}
	if lines[2]["days"] != float64(63) {
		t.Errorf("PlanningStatusBuilt fields = %v", lines[2])
	}
}

func TestPlannerLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewPlannerLoggerFrom(zerolog.New(&buf).Level(zerolog.InfoLevel))

	l.ValidationResult("2024-03-04", "night", true, 0)
	if buf.Len() != 0 {
		t.Errorf("debug event written at info level: %s", buf.String())
	}
}
