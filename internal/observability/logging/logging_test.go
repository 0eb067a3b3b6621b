package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildLevels(t *testing.T) {
	logger, err := Build("warn", "console")
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zap.InfoLevel))
	require.True(t, logger.Core().Enabled(zap.WarnLevel))

	logger, err = Build("unknown", "json")
	require.NoError(t, err)
	require.True(t, logger.Core().Enabled(zap.InfoLevel))
	require.False(t, logger.Core().Enabled(zap.DebugLevel))
}

func TestBuildRejectsUnknownEncoding(t *testing.T) {
	_, err := Build("info", "xml")
	require.Error(t, err)
}
