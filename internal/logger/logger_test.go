package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})

	log.Info("sync dispatched", KeyKind, "books", KeyOp, "insert")

	assert.Contains(t, buf.String(), `"msg":"sync dispatched"`)
	assert.Contains(t, buf.String(), `"kind":"books"`)
	assert.Contains(t, buf.String(), `"level":"INFO"`)
}

func TestNew_FormatAutoDetection(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		wantJSON    bool
	}{
		{"production uses json", "production", true},
		{"development uses pretty", "development", false},
		{"empty uses pretty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			New(Config{Environment: tt.environment, Writer: &buf}).Info("hello")

			assert.Equal(t, tt.wantJSON, strings.HasPrefix(buf.String(), "{"))
		})
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelWarn, Format: "json", Writer: &buf})

	log.Info("dropped")
	log.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log = Component(log, "syncer").WithGroup("task")
	log.Debug("retry scheduled", slog.Int("attempts", 2), slog.String("last", "connection refused"))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "DBG")
	assert.Contains(t, out, "component=syncer")
	assert.Contains(t, out, "task.attempts=2")
	assert.Contains(t, out, `task.last="connection refused"`)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestErr(t *testing.T) {
	assert.Equal(t, slog.String(KeyError, "boom"), Err(errors.New("boom")))
	assert.True(t, Err(nil).Equal(slog.Attr{}))
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard().Error("nothing happens")
		OrDiscard(nil).Info("nothing happens")
	})
}
