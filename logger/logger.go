// Package logger wraps zap with the Session/With conventions the rest of
// the server core expects. The core never formats a message above Debug
// level itself; it passes structured fields and lets the encoder render
// them, so the hot path in the parser and dispatcher never pays for
// fmt.Sprintf when nothing is listening at that level.
package logger

import (
	"io"

	"github.com/uber-go/zap"
)

// Logger is the leveled sink the core depends on. Any collaborator that
// implements it can stand in for the zap-backed implementation below; the
// core itself only ever calls through this interface.
//
//go:generate counterfeiter -o fakes/fake_logger.go . Logger
type Logger interface {
	With(...zap.Field) Logger
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)
	Panic(string, ...zap.Field)
	Fatal(string, ...zap.Field)
	Session(string) Logger
	SessionName() string
}

type logger struct {
	source     string
	origLogger zap.Logger
	context    []zap.Field
	zap.Logger
}

// New returns a zap-backed Logger for the named component. options are
// passed straight through to zap.New (e.g. zap.DebugLevel to lower the
// threshold in development).
func New(component string, options ...zap.Option) Logger {
	enc := zap.NewJSONEncoder(
		zap.LevelString("log_level"),
		zap.MessageKey("message"),
		zap.EpochFormatter("timestamp"),
	)
	origLogger := zap.New(enc, options...)

	return &logger{
		source:     component,
		origLogger: origLogger,
		Logger:     origLogger.With(zap.String("source", component)),
	}
}

// Session returns a child logger whose source is nested under this one,
// e.g. "server" -> "server.worker".
func (l *logger) Session(component string) Logger {
	newSource := l.source + "." + component
	return &logger{
		source:     newSource,
		origLogger: l.origLogger,
		Logger:     l.origLogger.With(zap.String("source", newSource)),
		context:    l.context,
	}
}

func (l *logger) SessionName() string {
	return l.source
}

func (l *logger) wrapDataFields(fields ...zap.Field) zap.Field {
	finalFields := append(append([]zap.Field{}, l.context...), fields...)
	return zap.Nest("data", finalFields...)
}

func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{
		source:     l.source,
		origLogger: l.origLogger,
		Logger:     l.Logger,
		context:    append(l.context, fields...),
	}
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.Logger.Debug(msg, l.wrapDataFields(fields...))
}
func (l *logger) Info(msg string, fields ...zap.Field) {
	l.Logger.Info(msg, l.wrapDataFields(fields...))
}
func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.Logger.Warn(msg, l.wrapDataFields(fields...))
}
func (l *logger) Error(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, l.wrapDataFields(fields...))
}
func (l *logger) Panic(msg string, fields ...zap.Field) {
	l.Logger.Panic(msg, l.wrapDataFields(fields...))
}
func (l *logger) Fatal(msg string, fields ...zap.Field) {
	l.Logger.Fatal(msg, l.wrapDataFields(fields...))
}

// Noop returns a Logger that discards everything, useful for tests that
// don't care about log output.
func Noop() Logger {
	return New("noop", zap.FatalLevel, zap.Output(zap.AddSync(io.Discard)))
}
