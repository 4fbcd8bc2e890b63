// Package logging wraps logrus behind a small Logger interface so every
// subsystem depends on an interface, never the global logrus package
// directly — grounded on
// firestige-Otus/otus-packet/pkg/log (Logger interface backed by
// *logrus.Logger).
package logging

import (
	"github.com/sirupsen/logrus"
)

// SuccessLevel is the logrus level the operator-facing "this step
// completed" lines are logged at. It is InfoLevel itself: SUCCESS lines
// are Info entries tagged with successFieldKey, so they are visible at
// the default logrus.InfoLevel threshold.
const SuccessLevel logrus.Level = logrus.InfoLevel

// successFieldKey marks a log entry as a SUCCESS line for the formatter,
// since logrus itself has no concept of a level beyond its fixed enum.
const successFieldKey = "loopworkLevel"

// Logger is the structured logging contract every Loopwork subsystem
// depends on instead of the bare logrus package, so tests can inject a
// recording implementation.
type Logger interface {
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Success(args ...interface{})
	Successf(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger backed by a fresh *logrus.Logger. jsonLogs selects
// logrus.JSONFormatter for the structured-event mode calls
// for; otherwise a local-timestamp text formatter is used.
func New(jsonLogs bool) Logger {
	l := logrus.New()
	if jsonLogs {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (l *logrusLogger) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusLogger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusLogger) Success(args ...interface{}) {
	l.entry.WithField(successFieldKey, "SUCCESS").Info(args...)
}
func (l *logrusLogger) Successf(format string, args ...interface{}) {
	l.entry.WithField(successFieldKey, "SUCCESS").Infof(format, args...)
}

func (l *logrusLogger) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Error(args ...interface{})                { l.entry.Error(args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}
func (l *logrusLogger) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusLogger) WithField(key string, value interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}
