// Package logging provides the leveled logger used across the provisioning
// commands. Informational output goes to the operator stream; warnings and
// errors are written to a separate stream so that actionable messages survive
// log redirection in CI.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Level int

const (
	LogLevelDebug Level = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// Config controls log verbosity and destinations. Zero value means info
// level, stdout for diagnostics and stderr for warnings and errors.
type Config struct {
	Level     Level
	Output    io.Writer
	ErrOutput io.Writer
}

type Logger struct {
	out zerolog.Logger
	err zerolog.Logger
}

func NewLogger(c Config) *Logger {
	out := c.Output
	if out == nil {
		out = os.Stdout
	}
	errOut := c.ErrOutput
	if errOut == nil {
		errOut = os.Stderr
	}

	level := zerologLevel(c.Level)
	mk := func(w io.Writer) zerolog.Logger {
		cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
		return zerolog.New(cw).Level(level).With().Timestamp().Logger()
	}

	return &Logger{out: mk(out), err: mk(errOut)}
}

// WithComponent returns a logger that prefixes every line with the component
// name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		out: l.out.With().Str("component", name).Logger(),
		err: l.err.With().Str("component", name).Logger(),
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.out.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.out.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.err.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.err.Error().Msgf(format, args...)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
