package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	StorageFile     = "file"
	StorageKeychain = "keychain"

	keyringService = "dlctl"
)

// TokenStore persists the TokenResult of the last successful login per profile.
type TokenStore interface {
	Get(profile string) (TokenResult, bool, error)
	Save(profile string, token TokenResult) error
	Delete(profile string) error
}

func NewTokenStore(backend, path string) (TokenStore, error) {
	switch strings.ToLower(backend) {
	case "", StorageFile:
		return &FileTokenStore{Path: path}, nil
	case StorageKeychain:
		return &KeyringTokenStore{Service: keyringService}, nil
	default:
		return nil, fmt.Errorf("unsupported token storage: %s", backend)
	}
}

type TokenCache struct {
	Tokens map[string]TokenResult `json:"tokens"`
}

func LoadTokenCache(path string) (*TokenCache, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache TokenCache
	if err := json.Unmarshal(content, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]TokenResult{}
	}
	return &cache, nil
}

func SaveTokenCache(path string, cache *TokenCache) error {
	if cache == nil {
		return errors.New("token cache is nil")
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]TokenResult{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	content, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

type FileTokenStore struct {
	Path string
}

func (s *FileTokenStore) Get(profile string) (TokenResult, bool, error) {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return TokenResult{}, false, nil
		}
		return TokenResult{}, false, err
	}
	token, ok := cache.Tokens[profile]
	return token, ok, nil
}

func (s *FileTokenStore) Save(profile string, token TokenResult) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		cache = &TokenCache{Tokens: map[string]TokenResult{}}
	}
	cache.Tokens[profile] = token
	return SaveTokenCache(s.Path, cache)
}

func (s *FileTokenStore) Delete(profile string) error {
	cache, err := LoadTokenCache(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	delete(cache.Tokens, profile)
	return SaveTokenCache(s.Path, cache)
}

// KeyringTokenStore keeps each profile's token as a JSON secret in the OS keychain.
type KeyringTokenStore struct {
	Service string
}

func (s *KeyringTokenStore) Get(profile string) (TokenResult, bool, error) {
	secret, err := keyring.Get(s.Service, profile)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return TokenResult{}, false, nil
		}
		return TokenResult{}, false, fmt.Errorf("failed to read token from keychain: %w", err)
	}
	var token TokenResult
	if err := json.Unmarshal([]byte(secret), &token); err != nil {
		return TokenResult{}, false, fmt.Errorf("failed to parse keychain token: %w", err)
	}
	return token, true, nil
}

func (s *KeyringTokenStore) Save(profile string, token TokenResult) error {
	content, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(s.Service, profile, string(content)); err != nil {
		return fmt.Errorf("failed to store token in keychain: %w", err)
	}
	return nil
}

func (s *KeyringTokenStore) Delete(profile string) error {
	if err := keyring.Delete(s.Service, profile); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keychain: %w", err)
	}
	return nil
}
