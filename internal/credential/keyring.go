package credential

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"

	"github.com/nhle/responder-checkin/internal/model"
)

const serviceName = "checkin"

// TokenEnv overrides the stored token when set.
const TokenEnv = "CHECKIN_TOKEN"

// TokenKey is the keyring key holding the token for userID.
func TokenKey(userID string) string {
	return "checkin-token-" + userID
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(model.ConfigDir(), "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("checkin-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Store reads and writes responder tokens.
type Store struct {
	ring   keyring.Keyring
	getenv func(string) string
}

// Open returns a Store backed by the system keyring.
func Open() (*Store, error) {
	ring, err := openKeyring()
	if err != nil {
		return nil, err
	}
	return NewStore(ring), nil
}

// NewStore wraps an existing keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring, getenv: os.Getenv}
}

// Token returns the token for userID. The environment variable wins over
// the keyring. A missing token is not an error: the result is empty.
func (s *Store) Token(userID string) (string, error) {
	if tok := strings.TrimSpace(s.getenv(TokenEnv)); tok != "" {
		return tok, nil
	}

	item, err := s.ring.Get(TokenKey(userID))
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting token for %q: %w", userID, err)
	}

	return string(item.Data), nil
}

// SetToken stores the token for userID.
func (s *Store) SetToken(userID, token string) error {
	err := s.ring.Set(keyring.Item{
		Key:   TokenKey(userID),
		Data:  []byte(token),
		Label: "Responder check-in token",
	})
	if err != nil {
		return fmt.Errorf("setting token for %q: %w", userID, err)
	}

	return nil
}

// DeleteToken removes the token for userID. Deleting a missing token
// succeeds.
func (s *Store) DeleteToken(userID string) error {
	err := s.ring.Remove(TokenKey(userID))
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting token for %q: %w", userID, err)
	}

	return nil
}
