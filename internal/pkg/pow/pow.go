/*
Package pow implements an optional Proof-of-Work gate in front of the login endpoint.

Login passwords are short PINs, so each attempt can be made to cost CPU time on the
client: it fetches a nonce, finds a counter whose SHA-256(nonce+counter) has the
required number of leading hex zeros, and trades the solution for a short-lived
proof token that must accompany the login request. Difficulty 0 disables the gate.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/resp"
)

const (
	// TokenHeaderKey is the HTTP header carrying the proof token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is how long a proof token stays usable.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is how long a challenge nonce stays solvable.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	ErrNonceInvalid     = errors.New("nonce expired or invalid")
	ErrProofTooWeak     = errors.New("proof does not meet difficulty requirement")
	ErrNonceAlreadyUsed = errors.New("nonce consumed by concurrent request")
)

// Manager issues nonces and proof tokens. It is safe for concurrent use.
type Manager struct {
	difficulty int

	// nonces and tokens map to their expiry.
	nonces map[string]time.Time
	tokens map[string]time.Time

	mu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager. A positive difficulty starts the expiry sweeper.
func NewManager(difficulty int) *Manager {
	m := &Manager{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
		stop:       make(chan struct{}),
	}

	if m.Enabled() {
		go m.cleanupExpiredEntries()
	}

	return m
}

// Enabled reports whether logins must carry a proof token.
func (m *Manager) Enabled() bool {
	return m.difficulty > 0
}

// Difficulty returns the required number of leading hex zeros.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce creates and stores a fresh challenge nonce.
func (m *Manager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonces[nonce] = time.Now().Add(NonceExpiryDuration)
	return nonce
}

// ValidateProof checks a solved challenge and, on success, consumes the nonce
// and returns a new proof token.
func (m *Manager) ValidateProof(nonce, counter string) (string, error) {
	if !Solves(nonce, counter, m.difficulty) {
		return "", ErrProofTooWeak
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.nonces[nonce]
	if !ok {
		return "", ErrNonceAlreadyUsed
	}
	delete(m.nonces, nonce)

	if time.Now().After(expiry) {
		return "", ErrNonceInvalid
	}

	token := uuid.New().String()
	m.tokens[token] = time.Now().Add(ProofTokenDuration)
	return token, nil
}

// Solves reports whether SHA-256(nonce+counter) has difficulty leading hex zeros.
func Solves(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// consumeProofToken reports whether token is live and removes it; tokens are single use.
func (m *Manager) consumeProofToken(token string) bool {
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiry, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	return time.Now().Before(expiry)
}

// Middleware requires a valid proof token (header or pow_token query) when the gate is enabled.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get(TokenHeaderKey)
		if token == "" {
			token = r.URL.Query().Get("pow_token")
		}

		if token == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		if !m.consumeProofToken(token) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Stop terminates the expiry sweeper.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep(time.Now())
		case <-m.stop:
			return
		}
	}
}

func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for nonce, expiry := range m.nonces {
		if now.After(expiry) {
			delete(m.nonces, nonce)
		}
	}

	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}
