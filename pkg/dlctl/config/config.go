package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
)

const (
	VersionV1 = "v1"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentProfile string    `yaml:"current-profile,omitempty"`
	Profiles       []Profile `yaml:"profiles,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	TokenStorage string `yaml:"token-storage,omitempty"`
	LogLevel     string `yaml:"log-level,omitempty"`
}

// Profile describes one connected app on one org or identity provider.
type Profile struct {
	Name                   string `yaml:"name"`
	LoginURL               string `yaml:"login-url,omitempty"`
	DefaultLoginURL        string `yaml:"default-login-url,omitempty"`
	Issuer                 string `yaml:"issuer,omitempty"`
	AuthorizationURL       string `yaml:"authorization-url,omitempty"`
	TokenURL               string `yaml:"token-url,omitempty"`
	DeviceAuthorizationURL string `yaml:"device-authorization-url,omitempty"`
	ClientID               string `yaml:"client-id"`
	ClientSecret           string `yaml:"client-secret,omitempty"`
	ClientSecretEnv        string `yaml:"client-secret-env,omitempty"`
	ClientSecretFile       string `yaml:"client-secret-file,omitempty"`
	Scope                  string `yaml:"scope,omitempty"`
	Flow                   string `yaml:"flow,omitempty"`
	CallbackPort           int    `yaml:"callback-port,omitempty"`
	RedirectPath           string `yaml:"redirect-path,omitempty"`
	TimeoutSeconds         int    `yaml:"timeout-seconds,omitempty"`
	PollIntervalSeconds    int    `yaml:"poll-interval-seconds,omitempty"`
	DeviceMaxWaitSeconds   int    `yaml:"device-max-wait-seconds,omitempty"`
	DeviceGrantType        string `yaml:"device-grant-type,omitempty"`
	Fallback               *bool  `yaml:"fallback,omitempty"`
	CAFile                 string `yaml:"ca-file,omitempty"`
	InsecureSkipTLS        bool   `yaml:"insecure-skip-tls-verify,omitempty"`
	LastFlow               string `yaml:"last-flow,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "table",
			TokenStorage: auth.StorageFile,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindProfile(name string) (*Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile not found: %s", name)
}

func (c *Config) CurrentProfileOrDefault() string {
	if c.CurrentProfile != "" {
		return c.CurrentProfile
	}
	if len(c.Profiles) > 0 {
		return c.Profiles[0].Name
	}
	return ""
}

// UpsertProfile replaces the profile with the same name or appends it.
func (c *Config) UpsertProfile(p Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			c.Profiles[i] = p
			return
		}
	}
	c.Profiles = append(c.Profiles, p)
}

func (c *Config) DeleteProfile(name string) error {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			c.Profiles = append(c.Profiles[:i], c.Profiles[i+1:]...)
			if c.CurrentProfile == name {
				c.CurrentProfile = ""
			}
			return nil
		}
	}
	return fmt.Errorf("profile not found: %s", name)
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for i := range c.Profiles {
		p := &c.Profiles[i]
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("profile name cannot be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate profile: %s", p.Name)
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.ClientID) == "" {
		return fmt.Errorf("profile %s client-id is required", p.Name)
	}
	if p.LoginURL == "" && p.Issuer == "" && (p.AuthorizationURL == "" || p.TokenURL == "") {
		return fmt.Errorf("profile %s needs login-url, issuer, or both authorization-url and token-url", p.Name)
	}
	if _, err := auth.ParseFlowKind(p.Flow); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	if p.CallbackPort < 0 || p.CallbackPort > 65535 {
		return fmt.Errorf("profile %s callback-port out of range: %d", p.Name, p.CallbackPort)
	}
	if p.TimeoutSeconds < 0 || p.PollIntervalSeconds < 0 || p.DeviceMaxWaitSeconds < 0 {
		return fmt.Errorf("profile %s durations cannot be negative", p.Name)
	}
	switch p.DeviceGrantType {
	case "", auth.GrantTypeDevice, auth.GrantTypeDeviceCode:
	default:
		return fmt.Errorf("profile %s unsupported device-grant-type: %s", p.Name, p.DeviceGrantType)
	}
	return nil
}

// NeedsDiscovery reports whether endpoints must be read from the issuer.
func (p *Profile) NeedsDiscovery() bool {
	return p.Issuer != "" && (p.AuthorizationURL == "" || p.TokenURL == "")
}

// FlowConfig turns the profile into the input of a login attempt. Endpoints
// discovered from the issuer fill in URLs the profile leaves empty.
func (p *Profile) FlowConfig(secret string, discovered *auth.Endpoints) (auth.FlowConfig, error) {
	flow, err := auth.ParseFlowKind(p.Flow)
	if err != nil {
		return auth.FlowConfig{}, err
	}
	authorizeURL, tokenURL := p.AuthorizationURL, p.TokenURL
	deviceURL := p.DeviceAuthorizationURL
	if p.LoginURL != "" {
		derivedAuthorize, derivedToken := auth.EndpointsFromLoginURL(p.LoginURL)
		authorizeURL = firstNonEmpty(authorizeURL, derivedAuthorize)
		tokenURL = firstNonEmpty(tokenURL, derivedToken)
	}
	if discovered != nil {
		authorizeURL = firstNonEmpty(authorizeURL, discovered.AuthorizationURL)
		tokenURL = firstNonEmpty(tokenURL, discovered.TokenURL)
		deviceURL = firstNonEmpty(deviceURL, discovered.DeviceAuthorizationURL)
	}
	port := p.CallbackPort
	if port == 0 {
		port = auth.DefaultCallbackPort
	}
	path := firstNonEmpty(p.RedirectPath, auth.DefaultRedirectPath)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var retryLoginURL string
	if p.LoginURL != "" && p.TokenURL == "" && p.DeviceAuthorizationURL == "" {
		candidate := firstNonEmpty(p.DefaultLoginURL, auth.DefaultLoginURL)
		if strings.TrimRight(candidate, "/") != strings.TrimRight(strings.TrimSpace(p.LoginURL), "/") {
			retryLoginURL = candidate
		}
	}
	fallback := true
	if p.Fallback != nil {
		fallback = *p.Fallback
	}
	cfg := auth.FlowConfig{
		AuthorizationURL:       authorizeURL,
		TokenURL:               tokenURL,
		DeviceAuthorizationURL: deviceURL,
		ClientID:               p.ClientID,
		ClientSecret:           secret,
		RedirectURI:            fmt.Sprintf("http://localhost:%d%s", port, path),
		Scope:                  p.Scope,
		Timeout:                time.Duration(p.TimeoutSeconds) * time.Second,
		PollInterval:           time.Duration(p.PollIntervalSeconds) * time.Second,
		DeviceMaxWait:          time.Duration(p.DeviceMaxWaitSeconds) * time.Second,
		DeviceGrantType:        p.DeviceGrantType,
		DeviceRetryLoginURL:    retryLoginURL,
		Flow:                   flow,
		Fallback:               fallback,
	}
	return cfg.WithDefaults(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
