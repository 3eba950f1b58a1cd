package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DevelopmentConfig returns a logging configuration with reasonable defaults
// for development.
// Time is encoded in ISO8601 format and level is encoded in capital letters.
func DevelopmentConfig(level zapcore.Level) func(*zap.Config) {
	return func(config *zap.Config) {
		config.Level = zap.NewAtomicLevelAt(level)
		// Capture stack traces at WARN level or higher.
		config.Development = true
		// Always show caller information in the logs w/ file name and line number.
		config.DisableCaller = false
		config.DisableStacktrace = false
		// Console encoding is more readable for development.
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	}
}

// ProductionConfig returns a JSON-encoded logging configuration for
// deployments.
func ProductionConfig(level zapcore.Level) func(*zap.Config) {
	return func(config *zap.Config) {
		config.Level = zap.NewAtomicLevelAt(level)
		config.Encoding = "json"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	}
}

// NewLogger builds a sugared logger from a base zap config mutated by opts.
func NewLogger(opts ...func(*zap.Config)) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	for _, opt := range opts {
		opt(&config)
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
