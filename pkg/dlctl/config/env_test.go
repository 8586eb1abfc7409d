package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv(t *testing.T) {
	t.Setenv("DLCTL_PROFILE", "sandbox")
	t.Setenv("DLCTL_OUTPUT", "json")
	t.Setenv("DLCTL_FLOW", "device")
	t.Setenv("DLCTL_NO_BROWSER", "true")

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "sandbox", env.Profile)
	assert.Equal(t, "json", env.Output)
	assert.Equal(t, "device", env.Flow)
	assert.True(t, env.NoBrowser)
	assert.False(t, env.Verbose)
}

func TestLoadEnvInvalidBool(t *testing.T) {
	t.Setenv("DLCTL_VERBOSE", "sometimes")
	_, err := LoadEnv()
	assert.Error(t, err)
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("DLCTL_CONFIG", "/tmp/custom.yaml")
	assert.Equal(t, "/tmp/custom.yaml", DefaultConfigPath())

	t.Setenv("DLCTL_CONFIG", "")
	assert.Equal(t, "config.yaml", filepath.Base(DefaultConfigPath()))
	assert.Equal(t, "tokens.json", filepath.Base(DefaultTokenPath()))
	assert.Equal(t, filepath.Dir(DefaultConfigPath()), filepath.Dir(DefaultTokenPath()))
}
