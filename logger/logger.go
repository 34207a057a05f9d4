// Package logger wraps a process-wide zap logger. Every helper is a no-op until
// InitLogger runs, which keeps tests quiet.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// LogLevel 定义日志级别
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Config 定义日志配置
type Config struct {
	Level      LogLevel
	Format     string // "json" (default) or "console"
	OutputPath string // rotated file, in addition to stdout; empty disables it
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func (l LogLevel) zapLevel() zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(string(l)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// newCore builds the stdout core and, when configured, a lumberjack-rotated file core.
// The file always gets JSON.
func newCore(config Config) (zapcore.Core, error) {
	level := config.Level.zapLevel()

	stdoutEncoder := zapcore.NewJSONEncoder(encoderConfig())
	if config.Format == "console" {
		stdoutEncoder = zapcore.NewConsoleEncoder(encoderConfig())
	}
	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEncoder, zapcore.AddSync(os.Stdout), level),
	}

	if config.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.OutputPath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), fileWriter, level))
	}
	return zapcore.NewTee(cores...), nil
}

// InitLogger initializes the global logger. Only the first call takes effect.
func InitLogger(config Config) error {
	var err error
	once.Do(func() {
		var core zapcore.Core
		if core, err = newCore(config); err != nil {
			return
		}
		globalLogger = zap.New(core,
			zap.AddCaller(),
			zap.AddCallerSkip(2),
			zap.AddStacktrace(zapcore.ErrorLevel),
		)
	})
	return err
}

// Sync flushes buffered entries; call before exit.
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func write(level zapcore.Level, msg string, fields []zap.Field) {
	if globalLogger == nil {
		return
	}
	if ce := globalLogger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

// Debug 输出调试级别日志
func Debug(msg string, fields ...zap.Field) { write(zapcore.DebugLevel, msg, fields) }

// Info 输出信息级别日志
func Info(msg string, fields ...zap.Field) { write(zapcore.InfoLevel, msg, fields) }

// Warn 输出警告级别日志
func Warn(msg string, fields ...zap.Field) { write(zapcore.WarnLevel, msg, fields) }

// Error 输出错误级别日志
func Error(msg string, fields ...zap.Field) { write(zapcore.ErrorLevel, msg, fields) }

func String(key string, val string) zap.Field {
	return zap.String(key, val)
}

func Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

func Float64(key string, val float64) zap.Field {
	return zap.Float64(key, val)
}

func Bool(key string, val bool) zap.Field {
	return zap.Bool(key, val)
}

// ErrorField 创建错误字段
func ErrorField(err error) zap.Field {
	return zap.Error(err)
}

// Duration 创建持续时间字段
func Duration(key string, val time.Duration) zap.Field {
	return zap.Duration(key, val)
}
