package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
	"github.com/telekom/dlctl/pkg/dlctl/config"
)

// newSalesforceStub answers probes and device requests the way a connected
// app with only the device flow enabled does.
func newSalesforceStub(t *testing.T, pollBody string, pollStatus int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case form.Get("response_type") == "device_code":
			_, _ = w.Write([]byte(`{"device_code":"DC","user_code":"UC-1","verification_uri":"https://login.example.com/setup/connect"}`))
		case form.Get("grant_type") == "authorization_code":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"unsupported_grant_type"}`))
		default:
			w.WriteHeader(pollStatus)
			_, _ = w.Write([]byte(pollBody))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type authTestEnv struct {
	configPath string
	tokenPath  string
}

func newAuthTestEnv(t *testing.T, loginURL string) authTestEnv {
	t.Helper()
	path := writeTestConfig(t, config.Profile{
		Name:     "prod",
		LoginURL: loginURL,
		ClientID: "cid",
	})
	return authTestEnv{configPath: path, tokenPath: filepath.Join(t.TempDir(), "tokens.json")}
}

func (e authTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	root := NewRootCommand(Config{
		ConfigPath:   e.configPath,
		TokenPath:    e.tokenPath,
		OutputWriter: out,
		ErrorWriter:  errOut,
		Browser:      auth.NoBrowser,
	})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestAuthLoginDeviceFlow(t *testing.T) {
	server := newSalesforceStub(t, `{"access_token":"00D!token","refresh_token":"r","instance_url":"https://acme.my.salesforce.com"}`, http.StatusOK)
	env := newAuthTestEnv(t, server.URL)
	metricsPath := filepath.Join(t.TempDir(), "dlctl.prom")

	out, status, err := env.run(t, "auth", "login", "--metrics-textfile", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Authenticated with profile prod using the device flow.")
	assert.Contains(t, out, "https://acme.my.salesforce.com")
	assert.Contains(t, status, "Checking which login methods")
	assert.Contains(t, status, "UC-1")

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "dlctl_login_attempts_total")

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "device", cfg.Profiles[0].LastFlow)
	assert.Equal(t, "https://acme.my.salesforce.com", cfg.Profiles[0].LoginURL)

	out, _, err = env.run(t, "auth", "status", "-o", "json")
	require.NoError(t, err)
	var st map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, true, st["authenticated"])
	assert.Equal(t, "device", st["flow"])
	assert.NotContains(t, out, "00D!token")

	out, _, err = env.run(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "prod")
	assert.Contains(t, out, "yes")

	out, _, err = env.run(t, "auth", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	out, _, err = env.run(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Not authenticated")
}

func TestAuthLoginKeepLoginURLAndNoSave(t *testing.T) {
	server := newSalesforceStub(t, `{"access_token":"T","instance_url":"https://acme.my.salesforce.com"}`, http.StatusOK)
	env := newAuthTestEnv(t, server.URL)

	_, _, err := env.run(t, "auth", "login", "--flow", "device", "--no-save", "-o", "yaml")
	require.NoError(t, err)

	cfg, err := config.Load(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, server.URL, cfg.Profiles[0].LoginURL)
	assert.Empty(t, cfg.Profiles[0].LastFlow)
	_, err = os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(err))

	_, _, err = env.run(t, "auth", "login", "--flow", "device", "--keep-login-url")
	require.NoError(t, err)
	cfg, err = config.Load(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, server.URL, cfg.Profiles[0].LoginURL)
	assert.Equal(t, "device", cfg.Profiles[0].LastFlow)
}

func TestAuthLoginDenied(t *testing.T) {
	server := newSalesforceStub(t, `{"error":"access_denied","error_description":"end-user denied authorization"}`, http.StatusBadRequest)
	env := newAuthTestEnv(t, server.URL)

	_, status, err := env.run(t, "auth", "login", "--flow", "device")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login failed")
	assert.Contains(t, status, "Device login was denied.")
	_, statErr := os.Stat(env.tokenPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAuthLoginRejectsUnknownFlow(t *testing.T) {
	env := newAuthTestEnv(t, "https://login.example.com")
	_, _, err := env.run(t, "auth", "login", "--flow", "implicit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported flow")
}

func TestAuthProbe(t *testing.T) {
	server := newSalesforceStub(t, `{}`, http.StatusOK)
	env := newAuthTestEnv(t, server.URL)

	out, _, err := env.run(t, "auth", "probe", "-o", "json")
	require.NoError(t, err)
	var views []probeView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 3)
	assert.Equal(t, "pkce", views[0].Flow)
	assert.False(t, views[0].Enabled)
	assert.Equal(t, "unsupported_grant_type", views[0].Code)
	assert.False(t, views[1].Enabled)
	assert.True(t, views[2].Enabled)

	out, _, err = env.run(t, "auth", "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "SERVER RESPONSE")
	assert.Contains(t, out, "device")
}
