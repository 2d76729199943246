// Package logger prints to a standard logger and, when a Rollbar token is
// configured, forwards warnings and errors to Rollbar.
package logger

import (
	"log"
	"os"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
)

// Options configures the Rollbar side of the logger.
type Options struct {
	RollbarToken string
	Env          string
	Host         string
	Version      string
}

// Logger writes every entry to std and reports Warn/Error/Fatal to Rollbar
// when enabled.
type Logger struct {
	std     *log.Logger
	rollbar bool
}

// New creates a logger. A nil std logs to stderr.
func New(std *log.Logger, opts Options) *Logger {
	if std == nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	l := &Logger{std: std, rollbar: opts.RollbarToken != ""}
	rollbar.SetEnabled(l.rollbar)
	if l.rollbar {
		rollbar.SetToken(opts.RollbarToken)
		rollbar.SetEnvironment(opts.Env)
		rollbar.SetServerHost(opts.Host)
		rollbar.SetCodeVersion(opts.Version)
		rollbar.SetStackTracer(errors.StackTracer)
	}
	return l
}

// Std exposes the underlying logger for libraries that want one.
func (l *Logger) Std() *log.Logger { return l.std }

// RollbarEnabled reports whether entries are forwarded.
func (l *Logger) RollbarEnabled() bool { return l.rollbar }

func (l *Logger) print(level, msg string, args []interface{}) {
	l.std.Println(level, msg)
	for _, arg := range args {
		l.std.Printf("  %+v\n", arg)
	}
}

func (l *Logger) report(level string, msg string, args []interface{}) {
	if !l.rollbar {
		return
	}
	rollbar.Log(level, append([]interface{}{msg}, args...)...)
}

// Info logs an informational entry. Not sent to Rollbar.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.print("INFO", msg, args)
}

// Warn logs and reports a warning.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.print("WARN", msg, args)
}

// Error logs and reports an error. args may include an error value and a
// map[string]interface{} of extras.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.print("ERROR", msg, args)
}

// Fatal reports, flushes and exits.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	l.print("FATAL", msg, args)
	l.Close()
	os.Exit(1)
}

// Close waits for queued Rollbar items to be sent.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Close()
	}
}
