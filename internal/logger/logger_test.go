package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestInitAndLogging(t *testing.T) {
	Init("debug", "json")

	if !L.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}

	Info("test info message", "key", "value")
}

func TestContextLogger(t *testing.T) {
	Init("info", "text")

	custom := L.With("request_id", "12345")
	ctx := WithContext(context.Background(), custom)

	if FromContext(ctx) != custom {
		t.Fatal("expected the context logger back")
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("expected global fallback logger")
	}
}

func TestInitLevels(t *testing.T) {
	tests := []struct {
		input string
		level slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		Init(tt.input, "text")
		if !L.Enabled(context.Background(), tt.level) {
			t.Errorf("Init(%q): expected level %v enabled", tt.input, tt.level)
		}
		if tt.level > slog.LevelDebug && L.Enabled(context.Background(), tt.level-4) {
			t.Errorf("Init(%q): expected level below %v disabled", tt.input, tt.level)
		}
	}
}
