package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorHandler(t *testing.T) {
	tests := []struct {
		name     string
		level    slog.Level
		message  string
		wantCode string
	}{
		{name: "error message has red color", level: slog.LevelError, message: "dump failed", wantCode: colorRed},
		{name: "warning message has yellow color", level: slog.LevelWarn, message: "remote unchanged", wantCode: colorYellow},
		{name: "info message has no color", level: slog.LevelInfo, message: "checking src_dump"},
		{name: "persist message has green color", level: slog.LevelInfo, message: "Persisting run log", wantCode: colorGreen},
		{name: "upload message has green color", level: slog.LevelInfo, message: "interpro uploader finished", wantCode: colorGreen},
		{name: "debug upload message has no color", level: slog.LevelDebug, message: "upload batch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, slog.LevelDebug)
			logger.Log(context.Background(), tt.level, tt.message)

			output := buf.String()
			assert.Contains(t, output, tt.message)
			if tt.wantCode != "" {
				assert.Contains(t, output, tt.wantCode)
				assert.Contains(t, output, colorReset)
				return
			}
			assert.NotContains(t, output, colorRed)
			assert.NotContains(t, output, colorYellow)
			assert.NotContains(t, output, colorGreen)
		})
	}
}

func TestColorHandlerWithAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelDebug)

	logger.With("src", "interpro").WithGroup("job").Error("upload failed", "code", 1)

	output := buf.String()
	assert.Contains(t, output, "upload failed")
	assert.Contains(t, output, "src=interpro")
	assert.Contains(t, output, "job.code=1")
	assert.Contains(t, output, colorRed)
}

func TestColorHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestSource(t *testing.T) {
	var buf bytes.Buffer
	Source(NewLogger(&buf, slog.LevelInfo), "mondo").Info("dump started")
	assert.Contains(t, buf.String(), "source=mondo")
}
