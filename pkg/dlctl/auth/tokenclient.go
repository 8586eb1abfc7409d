package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/telekom/dlctl/pkg/version"
)

const maxResponseBytes = 1 << 20

type FormParam struct {
	Name  string
	Value string
}

func Param(name, value string) FormParam {
	return FormParam{Name: name, Value: value}
}

// TokenExchanger performs a single form POST against a token endpoint.
type TokenExchanger interface {
	Post(ctx context.Context) error
	IsSuccessful() bool
	StatusCode() int
	Body() ([]byte, error)
}

// TokenClientFactory creates one TokenExchanger per request.
type TokenClientFactory func(endpoint string, params ...FormParam) TokenExchanger

func NewTokenClientFactory(client *http.Client) TokenClientFactory {
	if client == nil {
		client = http.DefaultClient
	}
	return func(endpoint string, params ...FormParam) TokenExchanger {
		return &TokenExchangeClient{client: client, endpoint: endpoint, params: params}
	}
}

type TokenExchangeClient struct {
	client   *http.Client
	endpoint string
	params   []FormParam

	mu       sync.Mutex
	posted   bool
	consumed bool
	status   int
	body     []byte
}

func (c *TokenExchangeClient) encode() string {
	var sb strings.Builder
	for i, p := range c.params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

func (c *TokenExchangeClient) Post(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.posted {
		return errors.New("token request already sent")
	}
	c.posted = true

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(c.encode()))
	if err != nil {
		return &SetupError{Op: "build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.client.Do(req)
	if err != nil {
		return &NetworkError{Endpoint: c.endpoint, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Endpoint: c.endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.status = resp.StatusCode
	c.body = body
	return nil
}

func (c *TokenExchangeClient) IsSuccessful() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status >= 200 && c.status < 300
}

func (c *TokenExchangeClient) StatusCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Body hands out the response body. It can be taken only once.
func (c *TokenExchangeClient) Body() ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.posted {
		return nil, errors.New("token request not sent")
	}
	if c.consumed {
		return nil, ErrBodyConsumed
	}
	c.consumed = true
	body := c.body
	c.body = nil
	return body, nil
}
