// Package logging provides a context scoped, structured logger. The concrete
// implementation is backed by uber-go/zap, but code in grantrelay only ever
// talks to the Logger interface.
//
// Each HTTP request gets its own scope via Middleware, so fields recorded with
// Track end up on the single request log line written when the request ends.
package logging

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the subset of zap's SugaredLogger used by grantrelay.
type Logger interface {
	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Infof(msg string, args ...interface{})
	Warn(args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})

	// Named returns a child logger whose name is suffixed with name.
	Named(name string) Logger

	// With returns a child logger carrying an extra field.
	With(field string, value interface{}) Logger
}

// scope is stored on the context. It is a pointer so that Track can replace
// the logger for everyone holding the context.
type scope struct {
	logger Logger
}

type scopeKey struct{}

var nop Logger = NewZapLogger(zap.NewNop())

// With returns a context whose scope logs through logger. Use it to open a
// nested scope, whose tracked fields stay out of the parent:
//
//	for _, s := range subjects {
//		ctx := logging.With(ctx, logging.FromContext(ctx).Named(s))
//		refresh(ctx, s)
//	}
func With(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, scopeKey{}, &scope{logger: logger})
}

// FromContext returns the logger of the context's scope, or nil.
func FromContext(ctx context.Context) Logger {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		return s.logger
	}
	return nil
}

// EnsureLogger returns ctx if it has a logger, otherwise a copy carrying a
// production logger.
func EnsureLogger(ctx context.Context) context.Context {
	if FromContext(ctx) != nil {
		return ctx
	}
	return With(ctx, NewProdLogger())
}

// Track adds a field to every later log line of the current scope, including
// the request line written by Middleware. Open a nested scope with With
// before tracking inside loops.
func Track(ctx context.Context, field string, value interface{}) {
	if s, ok := ctx.Value(scopeKey{}).(*scope); ok {
		s.logger = s.logger.With(field, value)
	}
}

// from returns the scope's logger, discarding output when there is none.
func from(ctx context.Context) Logger {
	if l := FromContext(ctx); l != nil {
		return l
	}
	return nop
}

func Debug(ctx context.Context, msg string) { from(ctx).Debug(msg) }

func Debugw(ctx context.Context, msg string, fields ...interface{}) { from(ctx).Debugw(msg, fields...) }

func Info(ctx context.Context, msg string) { from(ctx).Info(msg) }

func Infow(ctx context.Context, msg string, fields ...interface{}) { from(ctx).Infow(msg, fields...) }

func Infof(ctx context.Context, msg string, args ...interface{}) { from(ctx).Infof(msg, args...) }

func Warn(ctx context.Context, msg string) { from(ctx).Warn(msg) }

func Warnw(ctx context.Context, msg string, fields ...interface{}) { from(ctx).Warnw(msg, fields...) }

func Error(ctx context.Context, msg string) { from(ctx).Error(msg) }

func Errorw(ctx context.Context, msg string, fields ...interface{}) { from(ctx).Errorw(msg, fields...) }

func Errorf(ctx context.Context, msg string, args ...interface{}) { from(ctx).Errorf(msg, args...) }

func Fatalw(ctx context.Context, msg string, fields ...interface{}) { from(ctx).Fatalw(msg, fields...) }
