// Package logger wraps a process-wide zap logger behind printf-style
// helpers. Binaries call Setup once; library code just logs.
package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu sync.RWMutex
	// the pre-Setup default still logs (and Fatal still exits) so failures
	// during bootstrap are not swallowed
	base = zap.Must(zap.NewProduction()).Sugar()
)

// Setup replaces the global logger with one at the given level ("debug",
// "info", "warn", "error").
func Setup(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	base = l.Sugar()
	mu.Unlock()
	return nil
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debug(format string, args ...interface{}) { get().Debugf(format, args...) }
func Info(format string, args ...interface{})  { get().Infof(format, args...) }
func Warn(format string, args ...interface{})  { get().Warnf(format, args...) }
func Error(format string, args ...interface{}) { get().Errorf(format, args...) }
func Fatal(format string, args ...interface{}) { get().Fatalf(format, args...) }

// Sync flushes buffered log entries; call before process exit.
func Sync() {
	_ = get().Sync()
}
