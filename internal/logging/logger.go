// Package logging provides termscp's process-wide structured logger
// (spec §9 "Global state: logging handle is process-wide, initialized
// once").
//
// Adapted from the teacher's internal/logging/logger.go: same zerolog
// core and printf-style convenience methods, but collapsed from a
// CLI-vs-GUI dual-output mode to a single file sink, since termscp's
// TUI owns the terminal's alternate screen and stdout/stderr are not
// available for interleaved log lines while it runs. Log lines are
// also published on the shared event bus so the TUI can surface them
// in a log pane without a direct call back into the logger.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/rescale-labs/termscp/internal/events"
)

// Logger wraps zerolog with an optional event-bus fanout.
type Logger struct {
	zlog     zerolog.Logger
	eventBus *events.EventBus
	output   io.Writer
}

// New builds a Logger writing to output, optionally also publishing
// each printf-style call onto eventBus (nil disables fanout).
func New(output io.Writer, eventBus *events.EventBus) *Logger {
	zlog := zerolog.New(output).With().Timestamp().Logger()
	return &Logger{zlog: zlog, eventBus: eventBus, output: output}
}

// NewFileLogger opens (creating if needed) an append-only log file at
// path and returns a Logger writing to it.
func NewFileLogger(path string, eventBus *events.EventBus) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return New(f, eventBus), nil
}

// Info returns an info-level zerolog event for structured field chains.
func (l *Logger) Info() *zerolog.Event { return l.zlog.Info() }

// Error returns an error-level zerolog event.
func (l *Logger) Error() *zerolog.Event { return l.zlog.Error() }

// Debug returns a debug-level zerolog event.
func (l *Logger) Debug() *zerolog.Event { return l.zlog.Debug() }

// Warn returns a warn-level zerolog event.
func (l *Logger) Warn() *zerolog.Event { return l.zlog.Warn() }

// Fatal returns a fatal-level zerolog event; zerolog calls os.Exit(1)
// once it is written.
func (l *Logger) Fatal() *zerolog.Event { return l.zlog.Fatal() }

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context { return l.zlog.With() }

// Output returns the underlying writer.
func (l *Logger) Output() io.Writer { return l.output }

// Debugf logs and, if an event bus is attached, publishes a debug-level
// LogEvent.
func (l *Logger) Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Debug().Msg(msg)
	l.publish(events.DebugLevel, msg, nil)
}

// Infof logs and publishes an info-level LogEvent.
func (l *Logger) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Info().Msg(msg)
	l.publish(events.InfoLevel, msg, nil)
}

// Warnf logs and publishes a warn-level LogEvent.
func (l *Logger) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Warn().Msg(msg)
	l.publish(events.WarnLevel, msg, nil)
}

// Errorf logs and publishes an error-level LogEvent.
func (l *Logger) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.zlog.Error().Msg(msg)
	l.publish(events.ErrorLevel, msg, nil)
}

func (l *Logger) publish(level events.LogLevel, msg string, err error) {
	if l.eventBus == nil {
		return
	}
	l.eventBus.PublishLog(level, msg, "", "", err)
}

// SetGlobalLevel sets zerolog's process-wide minimum level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
