package auth

import (
	"context"
	"time"

	"github.com/tidwall/gjson"
)

// exchangeToken posts params to endpoint and parses a token response.
func exchangeToken(ctx context.Context, newClient TokenClientFactory, endpoint string, params ...FormParam) (*TokenResult, error) {
	client := newClient(endpoint, params...)
	if err := client.Post(ctx); err != nil {
		return nil, err
	}
	body, err := client.Body()
	if err != nil {
		return nil, err
	}
	if !client.IsSuccessful() {
		return nil, protocolErrorFromBody(body, client.StatusCode())
	}
	return parseTokenResponse(body, client.StatusCode())
}

func parseTokenResponse(body []byte, status int) (*TokenResult, error) {
	if !gjson.ValidBytes(body) {
		return nil, &ProtocolError{Description: "token response is not valid JSON", StatusCode: status}
	}
	res := gjson.ParseBytes(body)
	access := res.Get("access_token").String()
	if access == "" {
		perr := protocolErrorFromBody(body, status)
		if perr.Code == "" {
			perr.Description = "token response carried no access_token"
		}
		return nil, perr
	}
	token := &TokenResult{
		AccessToken:  access,
		RefreshToken: res.Get("refresh_token").String(),
		InstanceURL:  res.Get("instance_url").String(),
		Scope:        res.Get("scope").String(),
		TokenType:    res.Get("token_type").String(),
		IDToken:      res.Get("id_token").String(),
	}
	if issued := res.Get("issued_at"); issued.Exists() {
		if ms := issued.Int(); ms > 0 {
			token.IssuedAt = time.UnixMilli(ms).UTC()
		}
	}
	return token, nil
}
