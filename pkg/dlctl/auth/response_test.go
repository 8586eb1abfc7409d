package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenResponse(t *testing.T) {
	body := []byte(`{
		"access_token": "00Dxx!AQ",
		"refresh_token": "5Aep",
		"instance_url": "https://acme.my.salesforce.com",
		"id": "https://login.salesforce.com/id/00D/005",
		"token_type": "Bearer",
		"issued_at": "1700000000000",
		"scope": "api refresh_token"
	}`)
	token, err := parseTokenResponse(body, http.StatusOK)
	require.NoError(t, err)
	assert.Equal(t, "00Dxx!AQ", token.AccessToken)
	assert.Equal(t, "5Aep", token.RefreshToken)
	assert.Equal(t, "https://acme.my.salesforce.com", token.InstanceURL)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "api refresh_token", token.Scope)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), token.IssuedAt)
}

func TestParseTokenResponse_MissingAccessToken(t *testing.T) {
	_, err := parseTokenResponse([]byte(`{"token_type":"Bearer"}`), http.StatusOK)
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Contains(t, protoErr.Description, "no access_token")

	_, err = parseTokenResponse([]byte(`not json`), http.StatusOK)
	require.ErrorAs(t, err, &protoErr)
}

func TestExchangeToken_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"expired authorization code"}`))
	}))
	defer server.Close()

	_, err := exchangeToken(context.Background(), NewTokenClientFactory(server.Client()), server.URL, Param("code", "x"))
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, ErrorInvalidGrant, protoErr.Code)
	assert.Equal(t, http.StatusBadRequest, protoErr.StatusCode)
}
