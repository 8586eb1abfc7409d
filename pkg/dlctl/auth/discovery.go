package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

type Endpoints struct {
	AuthorizationURL       string
	TokenURL               string
	DeviceAuthorizationURL string
}

// DiscoverEndpoints reads the authorize, token and device endpoints from the
// issuer's OpenID configuration.
func DiscoverEndpoints(ctx context.Context, client *http.Client, issuer string) (*Endpoints, error) {
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, &NetworkError{Endpoint: issuer, Err: fmt.Errorf("failed to discover OIDC provider: %w", err)}
	}
	var claims struct {
		DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode provider metadata: %w", err)
	}
	endpoint := provider.Endpoint()
	return &Endpoints{
		AuthorizationURL:       endpoint.AuthURL,
		TokenURL:               endpoint.TokenURL,
		DeviceAuthorizationURL: claims.DeviceAuthorizationEndpoint,
	}, nil
}
