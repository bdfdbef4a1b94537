package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Frames between a caller and zap, the package-level helper.
const callerSkip = 1

// NewDevLogger returns a human readable, debug level logger.
func NewDevLogger() Logger {
	return NewLogger("console", "debug")
}

// NewProdLogger returns a JSON, info level logger.
func NewProdLogger() Logger {
	return NewLogger("json", "info")
}

// NewLogger builds a zap logger writing format ("json" or "console") at the
// given minimum level. Unknown levels mean info.
func NewLogger(format, level string) Logger {
	cfg := zap.NewProductionConfig()
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(callerSkip))
	if err != nil {
		l = zap.NewNop()
	}
	return &ZapLogger{l.Sugar()}
}

// NewZapLogger adapts an existing zap logger, such as zap.NewNop() or one
// writing to a zaptest observer.
func NewZapLogger(l *zap.Logger) Logger {
	return &ZapLogger{l.Sugar()}
}

// ZapLogger implements Logger with a zap SugaredLogger. Logging methods are
// promoted, Named and With are wrapped to return a Logger.
type ZapLogger struct {
	*zap.SugaredLogger
}

func (z *ZapLogger) Named(name string) Logger {
	return &ZapLogger{z.SugaredLogger.Named(name)}
}

func (z *ZapLogger) With(field string, value interface{}) Logger {
	return &ZapLogger{z.SugaredLogger.With(field, value)}
}

// withoutStacktrace disables zap's own stack capture below panic level.
func (z *ZapLogger) withoutStacktrace() *ZapLogger {
	return &ZapLogger{z.Desugar().WithOptions(zap.AddStacktrace(zapcore.PanicLevel)).Sugar()}
}
