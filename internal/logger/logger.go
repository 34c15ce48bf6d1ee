// Package logger holds the process-wide zap logger.
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level       string
	Development bool
	ServiceName string
}

// Logger wraps zap so callers depend on one type across the module.
type Logger struct {
	*zap.Logger
}

var (
	mu     sync.RWMutex
	global = &Logger{Logger: zap.NewNop()}
)

// Init builds the global logger. Before Init, Get returns a no-op logger.
func Init(cfg *Config) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	base, err := zcfg.Build(zap.AddCaller())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if cfg.ServiceName != "" {
		base = base.With(zap.String("service", cfg.ServiceName))
	}

	mu.Lock()
	global = &Logger{Logger: base}
	mu.Unlock()
	return nil
}

func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the global logger tagged with component.
func Named(component string) *Logger {
	return &Logger{Logger: Get().Logger.Named(component)}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func Sync() {
	_ = Get().Logger.Sync()
}
