// Package logging provides zap logger helpers.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const serviceName = "broken-link-analyzer"

// New builds a zap.Logger configured for development or production.
func New(development bool) (*zap.Logger, error) {
	return NewAtLevel(development, "")
}

// NewAtLevel is New with an explicit minimum level ("debug", "info", "warn", ...).
// An empty level keeps the preset's default. Output always goes to stderr so
// command output on stdout stays machine readable.
func NewAtLevel(development bool, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.OutputPaths = []string{"stderr"}
	cfg.InitialFields = map[string]any{"service": serviceName}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = lvl
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
