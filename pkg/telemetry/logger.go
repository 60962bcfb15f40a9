package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with taskgrid-specific context helpers.
type Logger struct {
	zerolog.Logger
}

// loggerKey is the context key for storing loggers.
type loggerKey struct{}

// NewLogger creates a new logger from the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("opening log file %s: %w", cfg.Output, err)
		}
		output = f
	}

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	switch cfg.TimeFormat {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	logger := zerolog.New(output).Level(level).With().Timestamp()
	if cfg.EnableCaller {
		logger = logger.Caller()
	}

	return &Logger{Logger: logger.Logger()}, nil
}

// NewComponentLogger creates a child logger tagged with a component name.
func (l *Logger) NewComponentLogger(component string) *Logger {
	return &Logger{Logger: l.With().Str("component", component).Logger()}
}

// WithRunID returns a logger with the run ID attached.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{Logger: l.With().Str("run_id", runID).Logger()}
}

// WithNodeID returns a logger with the node ID attached.
func (l *Logger) WithNodeID(nodeID string) *Logger {
	return &Logger{Logger: l.With().Str("node_id", nodeID).Logger()}
}

// WithPass returns a logger with the optimization pass name attached.
func (l *Logger) WithPass(pass string) *Logger {
	return &Logger{Logger: l.With().Str("pass", pass).Logger()}
}

// WithContext stores the logger in the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext retrieves the logger from the context, or returns a disabled
// logger when none is stored.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return l
	}
	return &Logger{Logger: zerolog.Nop()}
}

// parseLevel converts a level string to a zerolog level.
func parseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info", "":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
