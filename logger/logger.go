package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl zerolog.Logger
}

func New() *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	zl := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()

	return &Logger{zl: zl}
}

// NewFromConfig builds a logger at the named level ("debug", "info", ...).
// Unknown names fall back to info.
func NewFromConfig(level string) *Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	l := New()
	l.zl = l.zl.Level(lvl)
	return l
}

// Nop discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) WithOutput(w io.Writer) *Logger {
	l.zl = l.zl.Output(w)
	return l
}

func (l *Logger) WithLevel(level zerolog.Level) *Logger {
	l.zl = l.zl.Level(level)
	return l
}

// Component returns a child logger tagged with a component field.
func (l *Logger) Component(name string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", name).Logger()}
}

func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Info(msg string) {
	l.zl.Info().Msg(msg)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *Logger) Errorf(err error, format string, v ...interface{}) {
	l.zl.Error().Err(err).Msgf(format, v...)
}

func (l *Logger) Fatalf(err error, format string, v ...interface{}) {
	l.zl.Fatal().Err(err).Msgf(format, v...)
}

// Printf satisfies gorm's logger.Writer so SQL logs share this sink.
func (l *Logger) Printf(format string, v ...interface{}) {
	l.zl.Debug().Str("component", "gorm").Msgf(format, v...)
}
