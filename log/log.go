// Package log provides the audit logger used across every BRSKI-PRM
// principal, in the shape cmd.StatsAndLogging has always expected
// (Debug/Info/Notice/Warning/Audit/AuditErr), backed by
// github.com/go-logr/logr so any logr.LogSink can be plugged in.
package log

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

// Logger is the audit logging interface every BRSKI-PRM component takes
// a dependency on instead of reaching for the global "log" package.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Notice(msg string)
	Warning(msg string)
	Audit(msg string)
	AuditErr(msg string)
	AuditObject(prefix string, obj interface{})
	With(keyvals ...interface{}) Logger
}

type logrLogger struct {
	l logr.Logger
}

// New wraps a logr.Logger as a Logger. Passing nil uses a stdr-backed
// default, the same default cmd.StatsAndLogging installs when no
// syslog connection is configured.
func New(l *logr.Logger) Logger {
	if l == nil {
		std := stdr.New(nil)
		return &logrLogger{l: std}
	}
	return &logrLogger{l: *l}
}

func (g *logrLogger) Debug(msg string) { g.l.V(1).Info(msg) }
func (g *logrLogger) Info(msg string)  { g.l.Info(msg) }
func (g *logrLogger) Notice(msg string) {
	g.l.Info(msg, "level", "notice")
}
func (g *logrLogger) Warning(msg string) {
	g.l.Info(msg, "level", "warning")
}
func (g *logrLogger) Audit(msg string) {
	g.l.Info(fmt.Sprintf("[AUDIT] %s", msg))
}
func (g *logrLogger) AuditErr(msg string) {
	g.l.Error(nil, msg)
}
func (g *logrLogger) AuditObject(prefix string, obj interface{}) {
	g.l.Info(fmt.Sprintf("[AUDIT] %s", prefix), "object", fmt.Sprintf("%+v", obj))
}
func (g *logrLogger) With(keyvals ...interface{}) Logger {
	return &logrLogger{l: g.l.WithValues(keyvals...)}
}

var defaultLogger Logger = New(nil)

// Get returns the process-wide default logger, mirroring blog.Get()'s
// role as the fallback used by collaborators (mysql, HTTP server
// middleware) that cannot be handed an explicit Logger.
func Get() Logger { return defaultLogger }

// Set installs l as the process-wide default logger, returning the
// previous one.
func Set(l Logger) Logger {
	prev := defaultLogger
	defaultLogger = l
	return prev
}
