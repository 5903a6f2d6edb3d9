package query

import (
	"context"
	"log/slog"
	"time"
)

// KeyLogEvent describes one canonicalizer operation for logging.
type KeyLogEvent struct {
	Op       string
	Key      string
	Scope    ScopeID
	Duration time.Duration
	Err      error
}

// KeyLogger records canonicalizer events.
type KeyLogger interface {
	LogKey(KeyLogEvent)
}

// KeyLoggerFunc adapts a function to KeyLogger.
type KeyLoggerFunc func(KeyLogEvent)

// LogKey implements KeyLogger.
func (f KeyLoggerFunc) LogKey(event KeyLogEvent) {
	if f != nil {
		f(event)
	}
}

type noopKeyLogger struct{}

func (noopKeyLogger) LogKey(KeyLogEvent) {}

// SlogKeyLogger writes events to logger: failures at warn level, everything
// else at debug level.
func SlogKeyLogger(logger *slog.Logger) KeyLogger {
	if logger == nil {
		return noopKeyLogger{}
	}
	return KeyLoggerFunc(func(event KeyLogEvent) {
		level := slog.LevelDebug
		attrs := []slog.Attr{
			slog.String("op", event.Op),
			slog.String("key", event.Key),
			slog.Duration("duration", event.Duration),
		}
		if event.Scope != 0 {
			attrs = append(attrs, slog.Uint64("scope_id", uint64(event.Scope)))
		}
		if event.Err != nil {
			level = slog.LevelWarn
			attrs = append(attrs, slog.Any("error", event.Err))
		}
		logger.LogAttrs(context.Background(), level, "query key", attrs...)
	})
}

// WithLogger attaches a KeyLogger to the canonicalizer.
func WithLogger(logger KeyLogger) Option {
	return func(cfg *config) {
		if logger == nil {
			cfg.logger = noopKeyLogger{}
			return
		}
		cfg.logger = logger
	}
}
