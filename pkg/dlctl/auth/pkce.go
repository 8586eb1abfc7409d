package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// PKCEParams are generated fresh for every code flow run and never persisted.
type PKCEParams struct {
	Verifier  string
	Challenge string
	State     string
}

func NewPKCEParams() (PKCEParams, error) {
	state, err := randomToken(16)
	if err != nil {
		return PKCEParams{}, err
	}
	verifier := oauth2.GenerateVerifier()
	return PKCEParams{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		State:     state,
	}, nil
}

func randomToken(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}
