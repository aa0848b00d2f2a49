// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger flavour and outputs.
type Config struct {
	// Development switches to the colourised console encoder.
	Development bool `mapstructure:"development"`
	// File, when set, receives every level as JSON.
	File string `mapstructure:"file"`
	// ConsoleLevel is the minimum level written to stderr. Defaults to "error"
	// when File is set, otherwise "debug" in development and "info" in production.
	ConsoleLevel string `mapstructure:"console_level"`
}

// New builds a zap.Logger from cfg. The returned close func flushes the logger
// and releases the log file; call it once the logger is no longer used.
func New(cfg Config) (*zap.Logger, func(), error) {
	consoleLevel, err := cfg.consoleLevel()
	if err != nil {
		return nil, nil, err
	}

	var encCfg zapcore.EncoderConfig
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	encCfg.TimeKey = "ts"

	var consoleEncoder zapcore.Encoder
	if cfg.Development {
		consoleEncoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), consoleLevel),
	}

	closeFile := func() {}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		sink, closeSink, err := zap.Open(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		closeFile = closeSink
		fileEnc := zap.NewProductionEncoderConfig()
		fileEnc.TimeKey = "ts"
		fileEnc.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEnc), sink, zapcore.DebugLevel))
	}

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	logger := zap.New(zapcore.NewTee(cores...), opts...)
	var once sync.Once
	release := func() {
		once.Do(func() {
			_ = logger.Sync()
			closeFile()
		})
	}
	return logger, release, nil
}

func (c Config) consoleLevel() (zapcore.Level, error) {
	raw := strings.TrimSpace(c.ConsoleLevel)
	if raw == "" {
		switch {
		case c.File != "":
			return zapcore.ErrorLevel, nil
		case c.Development:
			return zapcore.DebugLevel, nil
		default:
			return zapcore.InfoLevel, nil
		}
	}
	level, err := zapcore.ParseLevel(raw)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parse console level: %w", err)
	}
	return level, nil
}
