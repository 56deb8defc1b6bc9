// Package logging builds the root zap logger, providing structured,
// leveled logging throughout the service.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the root logger's verbosity and encoding.
type Config struct {
	Level       string
	Development bool
	JSON        bool
}

// New builds a *zap.Logger from Config, defaulting to info-level JSON
// output suitable for container log collection.
func New(config Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.Set(config.Level); err != nil {
			level = zapcore.InfoLevel
		}
	}

	var zapConfig zap.Config
	if config.Development {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	if !config.JSON {
		zapConfig.Encoding = "console"
	}

	return zapConfig.Build()
}
