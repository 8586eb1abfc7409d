package auth

import (
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorCode is an OAuth 2.0 error identifier as returned in the "error" field.
type ErrorCode string

const (
	ErrorAuthorizationPending     ErrorCode = "authorization_pending"
	ErrorSlowDown                 ErrorCode = "slow_down"
	ErrorAccessDenied             ErrorCode = "access_denied"
	ErrorExpiredToken             ErrorCode = "expired_token"
	ErrorInvalidGrant             ErrorCode = "invalid_grant"
	ErrorInvalidRequest           ErrorCode = "invalid_request"
	ErrorInvalidClient            ErrorCode = "invalid_client"
	ErrorInvalidClientCredentials ErrorCode = "invalid_client_credentials"
	ErrorUnsupportedGrantType     ErrorCode = "unsupported_grant_type"
	ErrorUnsupportedResponseType  ErrorCode = "unsupported_response_type"
	ErrorRedirectURIMismatch      ErrorCode = "redirect_uri_mismatch"
	ErrorInvalidScope             ErrorCode = "invalid_scope"
	ErrorServerError              ErrorCode = "server_error"
)

// flowDisablingCodes also match variants that extend them, such as
// invalid_client_id.
var flowDisablingCodes = []ErrorCode{
	ErrorUnsupportedGrantType,
	ErrorUnsupportedResponseType,
	ErrorInvalidClient,
	ErrorRedirectURIMismatch,
	ErrorInvalidScope,
}

// Order matters: the first identifier found in an unstructured body wins, so
// longer identifiers sharing a prefix come first.
var knownCodes = []ErrorCode{
	ErrorUnsupportedGrantType,
	ErrorUnsupportedResponseType,
	ErrorInvalidClientCredentials,
	ErrorInvalidClient,
	ErrorRedirectURIMismatch,
	ErrorInvalidScope,
	ErrorInvalidGrant,
	ErrorAuthorizationPending,
	ErrorSlowDown,
	ErrorAccessDenied,
	ErrorExpiredToken,
	ErrorInvalidRequest,
	ErrorServerError,
}

// DisablesFlow reports whether a probe answered with this code means the flow is off.
func (c ErrorCode) DisablesFlow() bool {
	return mentionsDisablingCode(string(c))
}

// flowDisabled classifies a probe response from its error and description.
func flowDisabled(code ErrorCode, description string) bool {
	return code.DisablesFlow() || mentionsDisablingCode(description)
}

func mentionsDisablingCode(text string) bool {
	if text == "" {
		return false
	}
	for _, code := range flowDisablingCodes {
		if strings.Contains(text, string(code)) {
			return true
		}
	}
	return false
}

// KeepPolling reports whether a device poll answered with this code should continue.
func (c ErrorCode) KeepPolling() bool {
	return c == ErrorAuthorizationPending || c == ErrorSlowDown
}

// oauthErrorFromBody pulls error and error_description out of a token endpoint
// response. Bodies that are not JSON are searched for a known identifier.
func oauthErrorFromBody(body []byte) (ErrorCode, string) {
	if gjson.ValidBytes(body) {
		code := gjson.GetBytes(body, "error").String()
		desc := gjson.GetBytes(body, "error_description").String()
		return ErrorCode(code), desc
	}
	text := string(body)
	for _, code := range knownCodes {
		if strings.Contains(text, string(code)) {
			return code, ""
		}
	}
	return "", ""
}

func protocolErrorFromBody(body []byte, status int) *ProtocolError {
	code, desc := oauthErrorFromBody(body)
	return &ProtocolError{Code: code, Description: desc, StatusCode: status}
}
