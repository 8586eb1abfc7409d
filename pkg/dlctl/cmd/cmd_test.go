package cmd

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/dlctl/pkg/dlctl/config"
)

func configPathForTest(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func writeTestConfig(t *testing.T, profiles ...config.Profile) string {
	t.Helper()
	path := configPathForTest(t)
	cfg := config.DefaultConfig()
	cfg.Profiles = profiles
	if len(profiles) > 0 {
		cfg.CurrentProfile = profiles[0].Name
	}
	require.NoError(t, config.Save(path, &cfg))
	return path
}

func TestNewCompletionCommand(t *testing.T) {
	cmd := NewCompletionCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "completion [bash|zsh|fish|powershell]", cmd.Use)
}

func TestCompletionCommand(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		t.Run(shell, func(t *testing.T) {
			buf := &bytes.Buffer{}
			root := NewRootCommand(Config{ConfigPath: configPathForTest(t), OutputWriter: buf})
			root.SetArgs([]string{"completion", shell})
			require.NoError(t, root.Execute())
			assert.NotEmpty(t, buf.String())
		})
	}

	root := NewRootCommand(Config{ConfigPath: configPathForTest(t), OutputWriter: &bytes.Buffer{}})
	root.SetArgs([]string{"completion", "tcsh"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported shell")
}

func TestVersionCommand(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewRootCommand(Config{ConfigPath: configPathForTest(t), OutputWriter: buf})
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "dlctl ")
	assert.Contains(t, buf.String(), "commit:")

	buf.Reset()
	root = NewRootCommand(Config{ConfigPath: configPathForTest(t), OutputWriter: buf})
	root.SetArgs([]string{"version", "-o", "json"})
	require.NoError(t, root.Execute())
	var info map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "platform")
}

func TestRootRequiresConfigForAuth(t *testing.T) {
	root := NewRootCommand(Config{ConfigPath: configPathForTest(t), OutputWriter: &bytes.Buffer{}})
	root.SetArgs([]string{"auth", "status"})
	assert.Error(t, root.Execute())
}

func TestRootRejectsUnknownOutputFormat(t *testing.T) {
	path := writeTestConfig(t, config.Profile{Name: "prod", ClientID: "cid", LoginURL: "https://login.salesforce.com"})
	root := NewRootCommand(Config{ConfigPath: path, OutputWriter: &bytes.Buffer{}, TokenPath: filepath.Join(t.TempDir(), "tokens.json")})
	root.SetArgs([]string{"auth", "status", "-o", "xml"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
}

func TestGetRuntimeWithoutRoot(t *testing.T) {
	cmd := NewAuthCommand()
	cmd.SetContext(t.Context())
	_, err := getRuntime(cmd)
	assert.Error(t, err)
}
