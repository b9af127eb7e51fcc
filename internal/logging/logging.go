// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger for the given verbosity on stderr.
// Quiet mode only lets errors through.
func Setup(verbosity int, quiet bool) {
	SetupWithWriter(os.Stderr, verbosity, quiet)
}

// SetupWithWriter is Setup with an explicit destination.
func SetupWithWriter(out io.Writer, verbosity int, quiet bool) {
	zerolog.SetGlobalLevel(Level(verbosity, quiet))

	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(out),
	}
	log.Logger = zerolog.New(consoleWriter).With().Timestamp().Logger()

	if verbosity >= 3 {
		log.Logger = log.Logger.With().Caller().Logger()
	}

	log.Debug().Int("verbosity", verbosity).Bool("quiet", quiet).Msg("Logger initialized")
}

// Level maps command line verbosity to a zerolog level.
func Level(verbosity int, quiet bool) zerolog.Level {
	if quiet {
		return zerolog.ErrorLevel
	}
	switch verbosity {
	case 0:
		return zerolog.WarnLevel
	case 1:
		return zerolog.InfoLevel
	case 2:
		return zerolog.DebugLevel
	default:
		return zerolog.TraceLevel
	}
}

// Get returns a logger tagged with the component name
func Get(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// LogOperationStart logs the start of an operation and returns a function to log its completion
func LogOperationStart(logger zerolog.Logger, operation string) func() {
	start := time.Now()
	logger.Debug().
		Str("operation", operation).
		Msg("Operation started")

	return func() {
		logger.Debug().
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Msg("Operation completed")
	}
}
