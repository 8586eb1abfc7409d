package auth

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlowKind(t *testing.T) {
	for input, want := range map[string]FlowKind{
		"":        FlowAuto,
		"auto":    FlowAuto,
		"PKCE":    FlowPKCE,
		" server": FlowServer,
		"device":  FlowDevice,
	} {
		got, err := ParseFlowKind(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}
	_, err := ParseFlowKind("implicit")
	assert.Error(t, err)
}

func TestEndpointsFromLoginURL(t *testing.T) {
	authorize, token := EndpointsFromLoginURL("https://test.salesforce.com/")
	assert.Equal(t, "https://test.salesforce.com/services/oauth2/authorize", authorize)
	assert.Equal(t, "https://test.salesforce.com/services/oauth2/token", token)
}

func TestFlowConfig_WithDefaults(t *testing.T) {
	cfg := FlowConfig{
		AuthorizationURL: "https://login.example.com/services/oauth2/authorize",
		TokenURL:         "https://login.example.com/services/oauth2/token",
		ClientID:         "cid",
	}.WithDefaults()

	want := FlowConfig{
		AuthorizationURL:       "https://login.example.com/services/oauth2/authorize",
		TokenURL:               "https://login.example.com/services/oauth2/token",
		DeviceAuthorizationURL: "https://login.example.com/services/oauth2/token",
		ClientID:               "cid",
		RedirectURI:            "http://localhost:7171/OauthRedirect",
		Scope:                  "api",
		Timeout:                300 * time.Second,
		PollInterval:           5 * time.Second,
		DeviceMaxWait:          20 * time.Minute,
		DeviceGrantType:        GrantTypeDevice,
		Flow:                   FlowAuto,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected defaults (-want +got):\n%s", diff)
	}
	assert.NoError(t, cfg.Validate())
}

func TestFlowConfig_Validate(t *testing.T) {
	valid := testFlowConfig("https://login.example.com")
	tests := []struct {
		name   string
		mutate func(*FlowConfig)
	}{
		{"missing client id", func(c *FlowConfig) { c.ClientID = " " }},
		{"missing token url", func(c *FlowConfig) { c.TokenURL = "" }},
		{"relative authorization url", func(c *FlowConfig) { c.AuthorizationURL = "/authorize" }},
		{"non loopback redirect", func(c *FlowConfig) { c.RedirectURI = "https://example.com/cb" }},
		{"bad flow", func(c *FlowConfig) { c.Flow = "implicit" }},
		{"bad device grant", func(c *FlowConfig) { c.DeviceGrantType = "password" }},
	}
	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, isSetupError(err))
		})
	}
}

func TestParseRedirectURI(t *testing.T) {
	port, path, err := parseRedirectURI("http://localhost:7171/OauthRedirect")
	require.NoError(t, err)
	assert.Equal(t, 7171, port)
	assert.Equal(t, "/OauthRedirect", path)

	port, path, err = parseRedirectURI("http://127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 80, port)
	assert.Equal(t, "/", path)

	_, _, err = parseRedirectURI("http://example.com:7171/cb")
	assert.Error(t, err)
}

func TestTokenResult_ToOAuth2Token(t *testing.T) {
	token := TokenResult{
		AccessToken: "at",
		InstanceURL: "https://acme.my.salesforce.com",
		IDToken:     "idt",
	}.ToOAuth2Token()
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "https://acme.my.salesforce.com", token.Extra("instance_url"))
	assert.Equal(t, "idt", token.Extra("id_token"))
	assert.Nil(t, token.Extra("scope"))
}

func TestOutcome_Succeeded(t *testing.T) {
	assert.True(t, successOutcome(FlowPKCE, &TokenResult{AccessToken: "x"}, "ok").Succeeded())
	assert.False(t, Outcome{Kind: OutcomeSuccess}.Succeeded())
	assert.False(t, timedOutOutcome(FlowDevice, "late").Succeeded())
	assert.ErrorIs(t, cancelledOutcome(FlowServer, "stop").Err, ErrCancelled)
}

func TestRedirectURIWithPort(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:51000/cb", redirectURIWithPort("http://127.0.0.1:0/cb", 51000))
	assert.Equal(t, "http://localhost:51000/OauthRedirect", redirectURIWithPort("http://localhost:0/OauthRedirect", 51000))
	assert.Equal(t, "http://[::1]:51000/cb", redirectURIWithPort("http://[::1]:0/cb", 51000))
	assert.Equal(t, "http://127.0.0.1:7171/cb", redirectURIWithPort("http://127.0.0.1:7171/cb", 51000))
	assert.Equal(t, "http://localhost/cb", redirectURIWithPort("http://localhost/cb", 51000))
}
