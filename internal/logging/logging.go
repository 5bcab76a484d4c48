// Package logging builds the zap loggers used across meshpeer.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for file output
const (
	DefaultLevel      = "info"
	DefaultMaxSizeMB  = 100
	DefaultMaxBackups = 10
	DefaultMaxAgeDays = 30
)

// Config holds logger configuration
type Config struct {
	// Level is one of debug, info, warn, error
	Level       string
	Development bool

	// FilePath enables rotated file output in addition to stderr
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = DefaultMaxBackups
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = DefaultMaxAgeDays
	}
}

// New builds a logger from cfg. A nil cfg means defaults.
func New(cfg *Config) (*zap.Logger, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	c.SetDefaults()

	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	atomicLevel := zap.NewAtomicLevelAt(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var consoleEncoder zapcore.Encoder
	if c.Development {
		devConfig := encoderConfig
		devConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(devConfig)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atomicLevel),
	}

	if c.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
			Compress:   c.Compress,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotator),
			atomicLevel,
		))
	}

	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	return zap.New(zapcore.NewTee(cores...), opts...), nil
}
