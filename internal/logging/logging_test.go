package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		name      string
		verbosity int
		quiet     bool
		want      zerolog.Level
	}{
		{"default warn level", 0, false, zerolog.WarnLevel},
		{"info level", 1, false, zerolog.InfoLevel},
		{"debug level", 2, false, zerolog.DebugLevel},
		{"trace level", 3, false, zerolog.TraceLevel},
		{"high verbosity defaults to trace", 7, false, zerolog.TraceLevel},
		{"quiet wins over verbosity", 2, true, zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Level(tt.verbosity, tt.quiet); got != tt.want {
				t.Errorf("Level(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.want)
			}
		})
	}
}

func TestGetTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SetupWithWriter(&buf, 1, false)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := Get("relocate")
	logger.Info().Str("path", "/tmp/x").Msg("linked")
	logger.Debug().Msg("hidden at info level")

	out := buf.String()
	if !strings.Contains(out, "component=relocate") {
		t.Errorf("output missing component field: %q", out)
	}
	if !strings.Contains(out, "linked") {
		t.Errorf("output missing message: %q", out)
	}
	if strings.Contains(out, "hidden at info level") {
		t.Errorf("debug message leaked at info level: %q", out)
	}
}
