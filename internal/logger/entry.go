package logger

import (
	"context"
)

// Entry accumulates metric fields (duration, attempt, percent, size, status)
// for a single line. Tracing fields still come from the context it is
// logged against.
//
//	logger.With(logger.Fields{"kind": kind}).WithPercent(pct).Info(ctx, "Export progress")
type Entry struct {
	logger *Logger
	fields Fields
}

// With starts an Entry with the given metric fields.
func With(fields Fields) *Entry {
	return &Entry{logger: GetDefault(), fields: fields}
}

// With returns a new Entry with fields merged over the existing ones.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

func (e *Entry) WithDuration(ms int64) *Entry    { return e.WithField(FieldDurationMs, ms) }
func (e *Entry) WithAttempt(attempt int) *Entry  { return e.WithField(FieldAttempt, attempt) }
func (e *Entry) WithPercent(percent int) *Entry  { return e.WithField(FieldPercent, percent) }
func (e *Entry) WithSize(size int) *Entry        { return e.WithField(FieldSize, size) }
func (e *Entry) WithStatus(status string) *Entry { return e.WithField(FieldStatus, status) }

func (e *Entry) target(ctx context.Context) *Logger {
	if ctx != nil {
		return FromContext(ctx)
	}
	return e.logger
}

// Info logs at Info level with the metric fields.
func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).WithFields(e.fields).Infof(format, args...)
}

// Warn logs at Warn level with the metric fields.
func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.target(ctx).WithFields(e.fields).Warnf(format, args...)
}
