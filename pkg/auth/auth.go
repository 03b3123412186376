// Package auth provides gateway-side API key authentication. Keys are
// validated as bearer tokens against a static key store using SHA-256
// hashing and constant-time comparison.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when a request carries no valid key.
var ErrUnauthenticated = errors.New("authentication required")

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty).
	Subject string
}

// KeyEntry is the configuration format for API keys.
type KeyEntry struct {
	Key     string
	Subject string
}

type hashedKey struct {
	hash     [32]byte
	identity Identity
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []hashedKey
}

// New creates an authenticator from a list of raw keys and subjects.
// Keys are hashed immediately; plaintext keys are not stored.
func New(entries []KeyEntry) *Authenticator {
	a := &Authenticator{}
	for _, e := range entries {
		subject := e.Subject
		if subject == "" {
			subject = "default"
		}
		a.keys = append(a.keys, hashedKey{
			hash:     sha256.Sum256([]byte(e.Key)),
			identity: Identity{Subject: subject},
		})
	}
	return a
}

// Authenticate extracts the bearer token and validates it against the
// stored key hashes.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrUnauthenticated
	}

	tokenHash := sha256.Sum256([]byte(token))
	for _, entry := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], entry.hash[:]) == 1 {
			id := entry.identity
			return &id, nil
		}
	}

	return nil, ErrUnauthenticated
}

type identityKey struct{}

// SetIdentity stores the authenticated identity in the context.
func SetIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom retrieves the authenticated identity, or nil.
func IdentityFrom(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
