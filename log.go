package relay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
)

// Logger is what a pipeline, its steps and its hooks log through.
// A logrus.FieldLogger satisfies it, so does the adapter returned by GoLog.
type Logger interface {
	Debugf(string, ...interface{})
	Infof(string, ...interface{})
	Warnf(string, ...interface{})
	Errorf(string, ...interface{})
}

type loggerKey struct{}

// NopLogger drops every message on the floor
var NopLogger Logger = &nopLogger{}

type nopLogger struct{}

func (n *nopLogger) Debugf(string, ...interface{}) {}
func (n *nopLogger) Infof(string, ...interface{})  {}
func (n *nopLogger) Warnf(string, ...interface{})  {}
func (n *nopLogger) Errorf(string, ...interface{}) {}

// GoLog creates a Logger backed by the standard library logger.
// When the writer is nil the messages go to stderr.
func GoLog(w io.Writer, prefix string, flags int) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &goLogger{lg: log.New(w, prefix, flags)}
}

type goLogger struct {
	lg *log.Logger
}

func (g *goLogger) Debugf(format string, args ...interface{}) {
	g.lg.Output(2, "[DEBUG] "+fmt.Sprintf(format, args...))
}

func (g *goLogger) Infof(format string, args ...interface{}) {
	g.lg.Output(2, "[INFO]  "+fmt.Sprintf(format, args...))
}

func (g *goLogger) Warnf(format string, args ...interface{}) {
	g.lg.Output(2, "[WARN]  "+fmt.Sprintf(format, args...))
}

func (g *goLogger) Errorf(format string, args ...interface{}) {
	g.lg.Output(2, "[ERROR] "+fmt.Sprintf(format, args...))
}

// Discard is a GoLog that writes to nowhere, handy in tests that want a real logger
func Discard() Logger {
	return GoLog(io.Discard, "", 0)
}

// SetLogger on the context so steps and hooks can pick it up
func SetLogger(ctx context.Context, logger Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// ContextLogger gets the logger from the context, NopLogger when none was set
func ContextLogger(ctx context.Context) Logger {
	if ctx == nil {
		return NopLogger
	}
	if l, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return l
	}
	return NopLogger
}
