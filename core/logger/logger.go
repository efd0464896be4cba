package logger

// Logger exposes logging methods for common severity levels.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs a message with structured fields.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// StructuredLogger can log structured debug information. It is implemented by
// ZerologLogger and other adapters.
type StructuredLogger interface {
	Debugw(msg string, fields map[string]any)
}

// NopLogger discards everything. Core packages fall back to it when no
// logger is injected.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
