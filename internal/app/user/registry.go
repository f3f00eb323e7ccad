/*
Package user contains the Identity Registry: the fixed set of participants allowed
to use the relay and their login credentials.

Identities are compared case-insensitively after trimming surrounding whitespace.
The registry holds exactly two members, so "the other party" of any member is
always defined.
*/
package user

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
)

// RegistrySize is the number of identities a Registry holds.
const RegistrySize = 2

var (
	ErrRegistrySize    = fmt.Errorf("registry must contain exactly %d distinct identities", RegistrySize)
	ErrEmptyIdentity   = errors.New("identity must not be empty")
	ErrEmptyPassword   = errors.New("password must not be empty")
	errUnknownIdentity = errors.New("unknown identity")
)

// Normalize returns the canonical form of an identity.
func Normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	// members holds the normalized identities, sorted.
	members []string

	// hashes maps a member to the bcrypt hash of its password.
	hashes map[string][]byte
}

// NewRegistry builds a registry from an identity → password table.
func NewRegistry(credentials map[string]string) (*Registry, error) {
	return NewRegistryWithCost(credentials, bcrypt.DefaultCost)
}

// NewRegistryWithCost is NewRegistry with an explicit bcrypt cost.
func NewRegistryWithCost(credentials map[string]string, cost int) (*Registry, error) {
	hashes := make(map[string][]byte, len(credentials))

	for id, password := range credentials {
		normalized := Normalize(id)
		if normalized == "" {
			return nil, ErrEmptyIdentity
		}
		if password == "" {
			return nil, fmt.Errorf("%w: %s", ErrEmptyPassword, normalized)
		}
		if _, dup := hashes[normalized]; dup {
			return nil, ErrRegistrySize
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", normalized, err)
		}
		hashes[normalized] = hash
	}

	if len(hashes) != RegistrySize {
		return nil, ErrRegistrySize
	}

	members := lo.Keys(hashes)
	slices.Sort(members)

	return &Registry{members: members, hashes: hashes}, nil
}

// Size returns the number of registered identities.
func (r *Registry) Size() int {
	return len(r.members)
}

// Members returns the normalized identities in sorted order.
func (r *Registry) Members() []string {
	return slices.Clone(r.members)
}

// Contains reports whether id names a registered identity.
func (r *Registry) Contains(id string) bool {
	_, ok := r.hashes[Normalize(id)]
	return ok
}

// Other returns the counterpart of id. ok is false when id is not a member.
func (r *Registry) Other(id string) (string, bool) {
	id = Normalize(id)
	if !r.Contains(id) {
		return "", false
	}

	others := lo.Without(r.members, id)
	if len(others) != 1 {
		return "", false
	}
	return others[0], true
}

// Authenticate checks password for id and returns the normalized identity on success.
func (r *Registry) Authenticate(id, password string) (string, bool) {
	normalized := Normalize(id)

	if err := r.compare(normalized, password); err != nil {
		return "", false
	}
	return normalized, true
}

func (r *Registry) compare(id, password string) error {
	hash, ok := r.hashes[id]
	if !ok {
		return errUnknownIdentity
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
