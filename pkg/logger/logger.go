package logger

import (
	"context"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})

	WithModule(name string) Logger
	WithFields(fields map[string]interface{}) Logger
}

// NewLogger builds a console logger at the given level. Unknown levels
// fall back to info.
func NewLogger(level string) Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		Level(parseLevel(level)).
		With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

func parseLevel(l string) zerolog.Level {
	switch strings.ToLower(l) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

type zeroLogger struct {
	zl zerolog.Logger
}

func (l *zeroLogger) Debugf(format string, v ...interface{}) { l.zl.Debug().Msgf(format, v...) }
func (l *zeroLogger) Infof(format string, v ...interface{})  { l.zl.Info().Msgf(format, v...) }
func (l *zeroLogger) Warnf(format string, v ...interface{})  { l.zl.Warn().Msgf(format, v...) }
func (l *zeroLogger) Errorf(format string, v ...interface{}) { l.zl.Error().Msgf(format, v...) }
func (l *zeroLogger) Fatalf(format string, v ...interface{}) { l.zl.Fatal().Msgf(format, v...) }

func (l *zeroLogger) WithModule(name string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("module", name).Logger()}
}

func (l *zeroLogger) WithFields(fields map[string]interface{}) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(fields).Logger()}
}

type ctxKey struct{}

// NewContext returns a context carrying the logger.
func NewContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in the context, or a default
// info-level logger when none is present.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return NewLogger("info")
}
