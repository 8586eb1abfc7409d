package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewTestLogger(t *testing.T) {
	logger := NewTestLogger(t)
	require.NotNil(t, logger)

	logger.Debugw("test message with fields", "key", "value")
}

func TestNewObservedLogger(t *testing.T) {
	logger, logs := NewObservedLogger(zapcore.InfoLevel)

	logger.Debugw("dropped")
	logger.Infow("kept", "flow", "pkce")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, "pkce", entries[0].ContextMap()["flow"])
}
