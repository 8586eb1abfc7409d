package auth

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

type FlowKind string

const (
	FlowAuto   FlowKind = "auto"
	FlowPKCE   FlowKind = "pkce"
	FlowServer FlowKind = "server"
	FlowDevice FlowKind = "device"
)

// ProbeOrder is the precedence used when no flow is pinned.
var ProbeOrder = []FlowKind{FlowPKCE, FlowServer, FlowDevice}

func ParseFlowKind(value string) (FlowKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FlowAuto):
		return FlowAuto, nil
	case string(FlowPKCE):
		return FlowPKCE, nil
	case string(FlowServer):
		return FlowServer, nil
	case string(FlowDevice):
		return FlowDevice, nil
	default:
		return "", fmt.Errorf("unsupported flow: %s", value)
	}
}

const (
	DefaultLoginURL      = "https://login.salesforce.com"
	DefaultCallbackPort  = 7171
	DefaultRedirectPath  = "/OauthRedirect"
	DefaultScope         = "api"
	DefaultTimeout       = 300 * time.Second
	DefaultPollInterval  = 5 * time.Second
	DefaultDeviceMaxWait = 20 * time.Minute

	// GrantTypeDevice is the device grant accepted by Salesforce token endpoints.
	GrantTypeDevice = "device"
	// GrantTypeDeviceCode is the RFC 8628 device grant.
	GrantTypeDeviceCode = "urn:ietf:params:oauth:grant-type:device_code"

	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
)

// FlowConfig is the immutable input shared by all flows of one login attempt.
type FlowConfig struct {
	AuthorizationURL       string
	TokenURL               string
	DeviceAuthorizationURL string
	ClientID               string
	ClientSecret           string
	RedirectURI            string
	Scope                  string
	Timeout                time.Duration
	PollInterval           time.Duration
	DeviceMaxWait          time.Duration
	DeviceGrantType        string
	Flow                   FlowKind
	Fallback               bool

	// DeviceRetryLoginURL is a login base URL the device code request is
	// sent to once more when the configured endpoint fails.
	DeviceRetryLoginURL string
}

// EndpointsFromLoginURL derives the authorize and token URLs from a login base URL.
func EndpointsFromLoginURL(loginURL string) (authorizeURL, tokenURL string) {
	base := strings.TrimRight(strings.TrimSpace(loginURL), "/")
	return base + authorizePath, base + tokenPath
}

func DefaultRedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", DefaultCallbackPort, DefaultRedirectPath)
}

// WithDefaults returns a copy with unset optional fields filled in.
func (c FlowConfig) WithDefaults() FlowConfig {
	if c.DeviceAuthorizationURL == "" {
		c.DeviceAuthorizationURL = c.TokenURL
	}
	if c.RedirectURI == "" {
		c.RedirectURI = DefaultRedirectURI()
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.DeviceMaxWait <= 0 {
		c.DeviceMaxWait = DefaultDeviceMaxWait
	}
	if c.DeviceGrantType == "" {
		c.DeviceGrantType = GrantTypeDevice
	}
	if c.Flow == "" {
		c.Flow = FlowAuto
	}
	return c
}

func (c FlowConfig) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return &SetupError{Op: "validate config", Err: errors.New("client-id is required")}
	}
	for name, value := range map[string]string{
		"authorization url": c.AuthorizationURL,
		"token url":         c.TokenURL,
	} {
		if value == "" {
			return &SetupError{Op: "validate config", Err: fmt.Errorf("%s is required", name)}
		}
		if _, err := parseAbsoluteURL(value); err != nil {
			return &SetupError{Op: "validate config", Err: fmt.Errorf("invalid %s: %w", name, err)}
		}
	}
	if c.DeviceAuthorizationURL != "" {
		if _, err := parseAbsoluteURL(c.DeviceAuthorizationURL); err != nil {
			return &SetupError{Op: "validate config", Err: fmt.Errorf("invalid device authorization url: %w", err)}
		}
	}
	if c.DeviceRetryLoginURL != "" {
		if _, err := parseAbsoluteURL(c.DeviceRetryLoginURL); err != nil {
			return &SetupError{Op: "validate config", Err: fmt.Errorf("invalid device retry login url: %w", err)}
		}
	}
	if c.RedirectURI != "" {
		if _, _, err := parseRedirectURI(c.RedirectURI); err != nil {
			return &SetupError{Op: "validate config", Err: err}
		}
	}
	if _, err := ParseFlowKind(string(c.Flow)); err != nil {
		return &SetupError{Op: "validate config", Err: err}
	}
	switch c.DeviceGrantType {
	case "", GrantTypeDevice, GrantTypeDeviceCode:
	default:
		return &SetupError{Op: "validate config", Err: fmt.Errorf("unsupported device grant type: %s", c.DeviceGrantType)}
	}
	return nil
}

func (c FlowConfig) confidential() bool {
	return c.ClientSecret != ""
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url must be absolute: %s", raw)
	}
	return u, nil
}

// parseRedirectURI extracts the loopback port and callback path.
func parseRedirectURI(raw string) (int, string, error) {
	u, err := parseAbsoluteURL(raw)
	if err != nil {
		return 0, "", fmt.Errorf("invalid redirect uri: %w", err)
	}
	host := u.Hostname()
	if host != "localhost" && host != "127.0.0.1" && host != "::1" {
		return 0, "", fmt.Errorf("redirect uri must point to the loopback interface: %s", raw)
	}
	port := 80
	if p := u.Port(); p != "" {
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return 0, "", fmt.Errorf("invalid redirect uri port: %s", p)
		}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return port, path, nil
}

// redirectURIWithPort returns the configured redirect URI unchanged except
// for a zero port, which is replaced by the port the listener bound.
func redirectURIWithPort(raw string, port int) string {
	u, err := url.Parse(raw)
	if err != nil || u.Port() != "0" {
		return raw
	}
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return u.String()
}

// TokenResult is the credential set returned by a successful flow.
type TokenResult struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	InstanceURL  string    `json:"instance_url,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	IssuedAt     time.Time `json:"issued_at,omitempty"`
	Flow         FlowKind  `json:"flow,omitempty"`
}

func (r TokenResult) ToOAuth2Token() *oauth2.Token {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	token := &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    tokenType,
	}
	extra := map[string]interface{}{}
	if r.InstanceURL != "" {
		extra["instance_url"] = r.InstanceURL
	}
	if r.IDToken != "" {
		extra["id_token"] = r.IDToken
	}
	if r.Scope != "" {
		extra["scope"] = r.Scope
	}
	if len(extra) > 0 {
		token = token.WithExtra(extra)
	}
	return token
}

type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeTimedOut  OutcomeKind = "timed-out"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the single terminal result of a flow or an orchestration.
type Outcome struct {
	Kind    OutcomeKind
	Flow    FlowKind
	Token   *TokenResult
	Message string
	Err     error
}

func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess && o.Token != nil
}

func successOutcome(flow FlowKind, token *TokenResult, message string) Outcome {
	token.Flow = flow
	return Outcome{Kind: OutcomeSuccess, Flow: flow, Token: token, Message: message}
}

func failedOutcome(flow FlowKind, message string, err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Flow: flow, Message: message, Err: err}
}

func timedOutOutcome(flow FlowKind, message string) Outcome {
	return Outcome{Kind: OutcomeTimedOut, Flow: flow, Message: message, Err: ErrTimeout}
}

func cancelledOutcome(flow FlowKind, message string) Outcome {
	return Outcome{Kind: OutcomeCancelled, Flow: flow, Message: message, Err: ErrCancelled}
}

// StatusFunc receives human-readable progress messages. It may be called
// from any goroutine.
type StatusFunc func(message string)
