package logger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Constants
const (
	LogFilePermissions = 0600
	InfoLogLevel       = "info"
	LoggerName         = "shellwright"
)

// Global variables
var (
	globalLogger *zap.Logger
	loggerMutex  sync.RWMutex
	once         sync.Once

	GlobalLogLevel string = InfoLogLevel
)

// Logger wraps a zap.Logger with the printf-style helpers used across the project.
type Logger struct {
	*zap.Logger
}

// InitProduction installs the default console logger unless one has been set already.
func InitProduction() {
	once.Do(func() {
		if globalLogger != nil {
			return
		}
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(getZapLevel(GlobalLogLevel))
		config.Encoding = "console"
		config.EncoderConfig.EncodeTime = customTimeEncoder
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.OutputPaths = []string{"stderr"}
		l, err := config.Build()
		if err != nil {
			l = zap.NewNop()
		}
		globalLogger = l.Named(LoggerName)
	})
}

func (l *Logger) log(level zapcore.Level, msg string, fields ...zap.Field) {
	if l == nil || l.Logger == nil {
		return
	}
	if ce := l.Logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.log(zapcore.DebugLevel, msg, fields...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.log(zapcore.InfoLevel, msg, fields...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.log(zapcore.WarnLevel, msg, fields...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.log(zapcore.ErrorLevel, msg, fields...)
}

// Formatted logging methods
func (l *Logger) Debugf(format string, args ...interface{}) { l.Debug(fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Info(fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Warn(fmt.Sprintf(format, args...)) }

func (l *Logger) Errorf(
	format string,
	args ...interface{},
) {
	l.Error(fmt.Sprintf(format, args...))
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	if l == nil || l.Logger == nil {
		return NewNopLogger()
	}
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Utility functions
func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(fmt.Sprintf("[%s]", t.Format("2006-01-02 15:04:05")))
}

func getZapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Global functions
func Get() *Logger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if globalLogger == nil {
		InitProduction()
	}
	return &Logger{Logger: globalLogger}
}

func SetGlobalLogger(l *Logger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if l == nil || l.Logger == nil {
		globalLogger = zap.NewNop()
		return
	}
	globalLogger = l.Logger
}

func NewNopLogger() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
