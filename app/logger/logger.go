// Package logger puts zap behind the field-map interface handlers and workers log through.
package logger

import (
	"sort"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Fields are the structured key/values attached to one line.
type Fields = map[string]interface{}

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger
}

// New builds the process logger. Unknown levels fall back to info; format
// "json" selects the production encoder, anything else the console one.
func New(level, format string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	if format == "json" {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// NewStructured is New wrapped as a Logger.
func NewStructured(level, format string) Logger {
	return NewZapAdapter(New(level, format))
}

// NewZapAdapter lets callers keep the *zap.Logger, e.g. to Sync it on exit.
func NewZapAdapter(l *zap.Logger) Logger {
	return structured{z: l}
}

func NewTestLogger(t testing.TB) Logger {
	return structured{z: zaptest.NewLogger(t)}
}

func NewNoOpLogger() Logger {
	return structured{z: zap.NewNop()}
}

type structured struct {
	z *zap.Logger
}

func (s structured) Debug(msg string, fields Fields) { s.z.Debug(msg, zapFields(fields)...) }
func (s structured) Info(msg string, fields Fields)  { s.z.Info(msg, zapFields(fields)...) }
func (s structured) Warn(msg string, fields Fields)  { s.z.Warn(msg, zapFields(fields)...) }
func (s structured) Error(msg string, fields Fields) { s.z.Error(msg, zapFields(fields)...) }

func (s structured) WithFields(fields Fields) Logger {
	return structured{z: s.z.With(zapFields(fields)...)}
}

func (s structured) WithError(err error) Logger {
	return structured{z: s.z.With(zap.Error(err))}
}

// zapFields emits keys in sorted order so console output is stable.
func zapFields(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}
