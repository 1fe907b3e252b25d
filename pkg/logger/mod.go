package logger

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	charmlog "github.com/charmbracelet/log"
)

// Logger is the structured logger passed through contexts.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
	With(keyvals ...any) Logger
}

type Config struct {
	Level      LogLevel
	Output     io.Writer
	JSON       bool
	AddSource  bool
	TimeFormat string
}

const defaultTimeFormat = "15:04:05"

func DefaultConfig() *Config {
	return &Config{Level: InfoLevel, Output: os.Stdout, TimeFormat: defaultTimeFormat}
}

// TestConfig discards output so tests stay quiet.
func TestConfig() *Config {
	return &Config{Level: DisabledLevel, Output: io.Discard, TimeFormat: defaultTimeFormat}
}

type charmLogger struct {
	base *charmlog.Logger
}

func (l charmLogger) Debug(msg string, keyvals ...any) { l.base.Debug(msg, keyvals...) }
func (l charmLogger) Info(msg string, keyvals ...any)  { l.base.Info(msg, keyvals...) }
func (l charmLogger) Warn(msg string, keyvals ...any)  { l.base.Warn(msg, keyvals...) }
func (l charmLogger) Error(msg string, keyvals ...any) { l.base.Error(msg, keyvals...) }

func (l charmLogger) With(keyvals ...any) Logger {
	return charmLogger{base: l.base.With(keyvals...)}
}

func NewLogger(cfg *Config) Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	format := charmlog.TextFormatter
	if cfg.JSON {
		format = charmlog.JSONFormatter
	}
	return charmLogger{base: charmlog.NewWithOptions(out, charmlog.Options{
		Level:           cfg.Level.charmLevel(),
		Formatter:       format,
		ReportCaller:    cfg.AddSource,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
	})}
}

type ctxKey struct{}

var current atomic.Pointer[Logger]

func init() {
	Init(DefaultConfig())
}

// Init replaces the process-wide default logger.
func Init(cfg *Config) {
	l := NewLogger(cfg)
	current.Store(&l)
}

func GetDefault() Logger { return *current.Load() }

func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default one.
func FromContext(ctx context.Context) Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(Logger); ok && l != nil {
			return l
		}
	}
	return GetDefault()
}

func Debug(msg string, args ...any) { GetDefault().Debug(msg, args...) }
func Info(msg string, args ...any)  { GetDefault().Info(msg, args...) }
func Warn(msg string, args ...any)  { GetDefault().Warn(msg, args...) }
func Error(msg string, args ...any) { GetDefault().Error(msg, args...) }
