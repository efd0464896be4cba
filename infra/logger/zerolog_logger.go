package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger using the APP_ENV environment variable
// to determine the output format. All logs include the provided component field.
func NewZerologLogger(component string) Logger {
	var out io.Writer = os.Stdout
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, component)
}

// NewWithWriter builds a logger writing JSON lines to w.
func NewWithWriter(w io.Writer, component string) *ZerologLogger {
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	if lvl, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL"))); err == nil && lvl != zerolog.NoLevel {
		z = z.Level(lvl)
	}
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}
