package actor

import "github.com/sirupsen/logrus"

// Logger is the structured logging contract the container and its
// transports log through: field-structured logrus usage (WithFields)
// rather than fmt/log. Args are alternating key/value pairs, matching
// the logrus.Fields convention.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
}

// logrusLogger adapts a *logrus.Logger to Logger.
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogger returns the default Logger, backed by logrus with a
// text formatter for dev-facing output.
func NewLogger() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{l: l}
}

func fields(kv []any) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

func (g *logrusLogger) Debug(msg string, kv ...any) { g.l.WithFields(fields(kv)).Debug(msg) }
func (g *logrusLogger) Info(msg string, kv ...any)  { g.l.WithFields(fields(kv)).Info(msg) }
func (g *logrusLogger) Warn(msg string, kv ...any)  { g.l.WithFields(fields(kv)).Warn(msg) }
func (g *logrusLogger) Error(msg string, kv ...any) { g.l.WithFields(fields(kv)).Error(msg) }

// noopLogger discards everything, used as the container default until
// Set("logger", ...) supplies a real one, and in tests that don't care
// about log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
