package logger

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the configuration for the logger
type Config struct {
	Level         string `yaml:"level"          json:"level"          mapstructure:"level"`
	FilePath      string `yaml:"file_path"      json:"file_path"      mapstructure:"file_path"`
	Format        string `yaml:"format"         json:"format"         mapstructure:"format"`
	WithTrace     bool   `yaml:"with_trace"     json:"with_trace"     mapstructure:"with_trace"`
	EnableConsole bool   `yaml:"enable_console" json:"enable_console" mapstructure:"enable_console"`
}

// Initialize builds the process logger from config and installs it as the global one.
// The returned cleanup closes the log file, if any.
func Initialize(config Config) (func(), error) {
	logLevel := config.Level
	if logLevel == "" {
		logLevel = InfoLogLevel
	}
	GlobalLogLevel = logLevel
	level := getZapLevel(logLevel)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var cores []zapcore.Core
	cleanup := func() {}

	// Console output goes to stderr so command output on stdout stays clean
	if config.EnableConsole {
		consoleEncoderConfig := encoderConfig
		consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoderConfig.EncodeCaller = nil
		consoleEncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			enc.AppendString(t.Format("15:04:05"))
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig),
			zapcore.AddSync(os.Stderr),
			level,
		))
	}

	if config.FilePath != "" {
		var encoder zapcore.Encoder
		if config.Format == "json" {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		}

		file, err := os.OpenFile(
			config.FilePath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			LogFilePermissions,
		)
		if err != nil {
			return cleanup, fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup = func() { _ = file.Close() }

		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), level))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddCallerSkip(2)}
	if config.WithTrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	l := zap.New(zapcore.NewTee(cores...), opts...).Named(LoggerName)
	SetGlobalLogger(&Logger{Logger: l})

	return cleanup, nil
}
