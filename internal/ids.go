package internal

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

const stateTokenBytes = 32

// NewSessionID returns a random (version 4) UUID in canonical form.
func NewSessionID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return id.String(), nil
}

// NewStateToken returns a random form state-checker token, base64url
// without padding.
func NewStateToken() (string, error) {
	var raw [stateTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("state token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
