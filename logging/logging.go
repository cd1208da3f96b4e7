// Package logging provides the process-wide structured logger.
package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const loggerKey = contextKey("logger")

// Config defines where and how verbosely to log.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Path enables file logging with rotation when set. Logs go to stderr otherwise.
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`

	// JSON switches the encoder from console to JSON.
	JSON bool `yaml:"json"`
}

var global atomic.Pointer[zap.SugaredLogger]

func init() {
	global.Store(newLogger(Config{Level: "warn"}))
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) {
	global.Store(newLogger(cfg))
}

func newLogger(cfg Config) *zap.SugaredLogger {
	writeSyncer := zapcore.AddSync(os.Stderr)

	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err == nil {
			rotator := &lumberjack.Logger{
				Filename:   cfg.Path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
			writeSyncer = zapcore.AddSync(rotator)
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if cfg.JSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, writeSyncer, ParseLevel(cfg.Level))
	return zap.New(core).Sugar()
}

// ParseLevel converts "debug", "info", "warn" or "error" into a zap level.
// Unknown strings default to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// L returns the global logger.
func L() *zap.SugaredLogger {
	return global.Load()
}

// Sync flushes any buffered log entries.
func Sync() error {
	return L().Sync()
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return L()
}

// WithContext stores a logger in ctx.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}
