// Package diag defines the facility's internal diagnostics hook. Components
// report their own operational trouble (queue drops, transport failures)
// through it instead of the host process's default logger; the default is a
// no-op until the host installs a logger.
package diag

// Logger captures the diagnostic behaviours shared across components.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field represents a key/value pair attached to a diagnostic line.
type Field struct {
	Key   string
	Value any
}

var defaultLogger Logger = noopLogger{}

// SetLogger overrides the hook used by the facility's internals. A nil
// logger restores the no-op default.
func SetLogger(logger Logger) {
	if logger == nil {
		defaultLogger = noopLogger{}
		return
	}
	defaultLogger = logger
}

// Log returns the current diagnostics logger.
func Log() Logger {
	return defaultLogger
}

type noopLogger struct{}

func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
