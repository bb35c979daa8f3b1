package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Init はプロセス全体で使うロガーを初期化する。
// debug=true の場合は開発用の設定（Debugレベル、コンソール出力）になる。
func Init(debug bool) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	set(built)
}

// InitWithLevel はレベル文字列（debug, info, warn, error）からロガーを初期化する。
func InitWithLevel(level string) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))

	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return
	}
	set(built)
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	_ = log.Sync()
	log = l
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Get returns the underlying zap logger without the caller skip.
func Get() *zap.Logger {
	return current().WithOptions(zap.AddCallerSkip(-1))
}

func Sync() {
	_ = current().Sync()
}

func Debug(msg string, fields ...zap.Field) {
	current().Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	current().Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	current().Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	current().Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	current().Fatal(msg, fields...)
}
