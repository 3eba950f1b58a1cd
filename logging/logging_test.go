package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerDefaults(t *testing.T) {
	lggr, err := NewLogger()
	require.NoError(t, err)
	require.NotNil(t, lggr)
}

func TestNewLoggerDevelopment(t *testing.T) {
	lggr, err := NewLogger(DevelopmentConfig(zapcore.DebugLevel))
	require.NoError(t, err)
	require.NotNil(t, lggr.Desugar().Check(zapcore.DebugLevel, "enabled at debug"))
}

func TestNewLoggerProduction(t *testing.T) {
	lggr, err := NewLogger(ProductionConfig(zapcore.WarnLevel))
	require.NoError(t, err)
	require.Nil(t, lggr.Desugar().Check(zapcore.InfoLevel, "suppressed below warn"))
}
