// Package logging builds the zap loggers used across opmeta.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environments a logger can be built for
const (
	Production  = "production"
	Development = "development"
)

// New builds a JSON logger for production or a console logger for
// development, at the given level ("" keeps the environment's default).
func New(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(env) {
	case Production, "":
		cfg = zap.NewProductionConfig()
	case Development:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Must is New that falls back to a no-op logger on error
func Must(env, level string) *zap.Logger {
	logger, err := New(env, level)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
