package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var InfoLogger, FatalLogger *zap.Logger

var (
	serviceName = "default"
)

func init() {
	InfoLogger = zap.NewNop()
	FatalLogger = zap.NewNop()
}

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init строит production-логгер с указанным уровнем ("debug", "info", ...).
func Init(level string) error {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return fmt.Errorf("parse log level %q: %w", level, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	InfoLogger = l
	FatalLogger = l
	return nil
}

// Set подменяет логгер, удобно в тестах (zap.NewExample, zaptest и т.п.).
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	InfoLogger = l
	FatalLogger = l
}

func Sync() {
	_ = InfoLogger.Sync()
}

// With возвращает структурный логгер компонента.
func With(fields ...zap.Field) *zap.Logger {
	return InfoLogger.With(append([]zap.Field{zap.String("service", serviceName)}, fields...)...)
}

func Debug(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Debug(msg)
}

func Info(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Info(msg)
}

func Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Warn(msg)
}

func Error(format string, args ...interface{}) {
	if InfoLogger == nil {
		panic("InfoLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	InfoLogger.With(
		zap.String("service", serviceName),
	).Error(msg)
}

func Fatal(format string, args ...interface{}) {
	if FatalLogger == nil {
		panic("FatalLogger is not initialized")
	}

	msg := fmt.Sprintf(format, args...)
	FatalLogger.With(
		zap.String("service", serviceName),
	).Fatal(msg)
}
