/*
Package session implements the Session Store: the mapping from opaque session
tokens to identities.

Tokens are signed JWTs whose ID must also be present in the store. Nothing expires
and nothing is revoked; several tokens may map to the same identity at once, and a
token whose connection was superseded can still be used to join again.
*/
package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"duochat/internal/pkg/auth/jwt"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/randx"
)

// Store maps issued session tokens to identities. It is safe for concurrent use.
type Store struct {
	secret string

	// mu protects tokens.
	mu sync.RWMutex

	// tokens maps a token ID (jti) to the identity it was issued for.
	tokens map[string]string

	logger zerolog.Logger
}

// NewStore creates an empty store signing tokens with secret.
func NewStore(secret string) *Store {
	return &Store{
		secret: secret,
		tokens: make(map[string]string),
		logger: logx.Component("SessionStore"),
	}
}

// Issue creates a new session token for identity. The caller is responsible for
// having authenticated identity first.
func (s *Store) Issue(identity string) (string, error) {
	tokenID := randx.TokenID()

	payload := &jwt.Payload{UserID: identity}
	payload.Id = tokenID

	token, err := jwt.GenerateToken(payload, s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	s.mu.Lock()
	s.tokens[tokenID] = identity
	count := len(s.tokens)
	s.mu.Unlock()

	s.logger.Info().Str("user_id", identity).Int("sessions", count).Msg("Session issued.")

	return token, nil
}

// Validate resolves token to its identity. Unknown, forged or malformed tokens
// yield ok == false.
func (s *Store) Validate(token string) (string, bool) {
	if token == "" {
		return "", false
	}

	payload, err := jwt.ParseToken(token, s.secret)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Rejected session token.")
		return "", false
	}

	s.mu.RLock()
	identity, ok := s.tokens[payload.Id]
	s.mu.RUnlock()

	if !ok || identity != payload.UserID {
		return "", false
	}

	return identity, true
}

// Count returns the number of issued sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tokens)
}
