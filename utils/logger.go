package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 简单日志封装（底层 zap）
type Logger struct {
	s *zap.SugaredLogger
}

// NewLogger 按级别创建日志，level 为 debug/info/warn/error
func NewLogger(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{s: z.Sugar()}, nil
}

// NewNopLogger 测试用
func NewNopLogger() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// Debug 调试日志
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.s.Debugf(msg, args...)
}

// Info 信息日志
func (l *Logger) Info(msg string, args ...interface{}) {
	l.s.Infof(msg, args...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.s.Warnf(msg, args...)
}

// Error 错误日志
func (l *Logger) Error(msg string, args ...interface{}) {
	l.s.Errorf(msg, args...)
}

// With 附加结构化字段
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Sync() error {
	return l.s.Sync()
}

var DefaultLogger = NewNopLogger()

// SetDefault 在 main 中替换全局日志
func SetDefault(l *Logger) {
	if l != nil {
		DefaultLogger = l
	}
}
