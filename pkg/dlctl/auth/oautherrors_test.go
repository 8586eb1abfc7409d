package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_DisablesFlow(t *testing.T) {
	disabled := []ErrorCode{
		ErrorUnsupportedGrantType,
		ErrorUnsupportedResponseType,
		ErrorInvalidClient,
		ErrorInvalidClientCredentials,
		ErrorRedirectURIMismatch,
		ErrorInvalidScope,
		"invalid_client_id",
	}
	for _, code := range disabled {
		assert.True(t, code.DisablesFlow(), string(code))
	}
	for _, code := range []ErrorCode{ErrorInvalidGrant, ErrorInvalidRequest, ErrorAuthorizationPending, ""} {
		assert.False(t, code.DisablesFlow(), string(code))
	}
}

func TestFlowDisabled_ChecksDescription(t *testing.T) {
	assert.True(t, flowDisabled("invalid_client_id", "client identifier invalid"))
	assert.True(t, flowDisabled(ErrorInvalidRequest, "unsupported_grant_type for this connected app"))
	assert.False(t, flowDisabled(ErrorInvalidGrant, "invalid authorization code"))
	assert.False(t, flowDisabled("", ""))
}

func TestErrorCode_KeepPolling(t *testing.T) {
	assert.True(t, ErrorAuthorizationPending.KeepPolling())
	assert.True(t, ErrorSlowDown.KeepPolling())
	assert.False(t, ErrorExpiredToken.KeepPolling())
	assert.False(t, ErrorAccessDenied.KeepPolling())
}

func TestOAuthErrorFromBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		code ErrorCode
		desc string
	}{
		{"json", `{"error":"invalid_grant","error_description":"authentication failure"}`, ErrorInvalidGrant, "authentication failure"},
		{"json without error", `{"foo":"bar"}`, "", ""},
		{"plain text", `error=invalid_client_credentials&error_description=bad`, ErrorInvalidClientCredentials, ""},
		{"plain text shorter code", `oops: invalid_client`, ErrorInvalidClient, ""},
		{"html", `<html>unsupported_grant_type</html>`, ErrorUnsupportedGrantType, ""},
		{"empty", ``, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, desc := oauthErrorFromBody([]byte(tt.body))
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.desc, desc)
		})
	}
}

func TestProtocolErrorMessage(t *testing.T) {
	err := protocolErrorFromBody([]byte(`{"error":"access_denied","error_description":"end-user denied authorization"}`), 400)
	assert.Equal(t, "access_denied: end-user denied authorization (status 400)", err.Error())

	assert.Equal(t, "invalid response", (&ProtocolError{}).Error())
}
