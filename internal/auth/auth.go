// Package auth holds the account number and access token used by the streamer.
//
// Tokens are obtained outside this process (OAuth2 token exchange) and
// handed over through configuration or a token file. The Store is read on
// every streamer request, so a token refreshed with SetToken or
// LoadTokenFile applies to the next call without reconnecting.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Errors
var (
	ErrEmptyToken   = errors.New("access token is empty")
	ErrEmptyAccount = errors.New("account number is empty")
)

// Store holds the active account and its access token.
type Store struct {
	mu      sync.RWMutex
	account string
	token   string
}

// NewStore creates a store. Either value may be empty and set later.
func NewStore(account, token string) *Store {
	return &Store{
		account: strings.TrimSpace(account),
		token:   normalizeToken(token),
	}
}

// Subscription returns the active account number and access token.
func (s *Store) Subscription() (account, token string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account, s.token
}

// SetAccount switches the active account.
func (s *Store) SetAccount(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return ErrEmptyAccount
	}

	s.mu.Lock()
	s.account = account
	s.mu.Unlock()
	return nil
}

// SetToken replaces the access token.
func (s *Store) SetToken(token string) error {
	token = normalizeToken(token)
	if token == "" {
		return ErrEmptyToken
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

// LoadTokenFile reads the access token from path. Surrounding whitespace and
// a "Bearer " prefix are stripped.
func (s *Store) LoadTokenFile(path string) error {
	if path == "" {
		return fmt.Errorf("token file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	if err := s.SetToken(string(data)); err != nil {
		return fmt.Errorf("load token file %s: %w", path, err)
	}
	return nil
}

func normalizeToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) > 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
