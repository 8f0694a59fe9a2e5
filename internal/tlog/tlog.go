// Package tlog provides the leveled Logger used across the expander,
// splitter and ref reconciler to report the warnings and errors of spec §7
// without aborting the run for non-fatal conditions.
package tlog

import "github.com/sirupsen/logrus"

// Logger records warnings and errors as the core walks commits. It is a thin
// wrapper so that components depend on a small interface rather than
// logrus directly.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to a fresh logrus.Logger at Info level.
func New() Logger {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return Logger{entry: logrus.NewEntry(l)}
}

// NewFromEntry wraps an existing *logrus.Entry, e.g. one already carrying
// fields such as a run id.
func NewFromEntry(e *logrus.Entry) Logger { return Logger{entry: e} }

// With returns a Logger with an extra structured field attached, for
// messages scoped to a single commit or repo.
func (l Logger) With(key string, value interface{}) Logger {
	return Logger{entry: l.entry.WithField(key, value)}
}

func (l Logger) Warning(msg string) {
	l.entry.Warning(msg)
}

func (l Logger) Error(msg string) {
	l.entry.Error(msg)
}

func (l Logger) Info(msg string) {
	l.entry.Info(msg)
}

func (l Logger) Debug(msg string) {
	l.entry.Debug(msg)
}
