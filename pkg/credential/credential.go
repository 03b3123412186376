// Package credential manages the on-disk Kiro credential: the
// access/refresh token pair, its expiry, and the profile/region
// metadata the upstream API requires.
package credential

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the persisted token state. It is read once at startup
// and rewritten after every successful refresh.
type Credential struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	ProfileArn   string    `json:"profileArn,omitempty"`
	Region       string    `json:"region,omitempty"`
	AuthMethod   string    `json:"authMethod,omitempty"`
}

// ExpiresWithin reports whether the credential expires within the given
// lead time of now. A credential with no recorded expiry is treated as
// expired so a refresh is attempted before first use.
func (c Credential) ExpiresWithin(lead time.Duration, now time.Time) bool {
	exp := c.effectiveExpiry()
	if exp.IsZero() {
		return true
	}
	return !now.Add(lead).Before(exp)
}

// effectiveExpiry returns the earlier of the recorded expiry and the
// access token's own exp claim, when the token is a parseable JWT.
// Some identity backends hand out tokens that expire before the
// advertised expiresAt; trusting the earlier time avoids a guaranteed
// 403 on first use.
func (c Credential) effectiveExpiry() time.Time {
	exp := c.ExpiresAt
	claimExp, ok := tokenExpiry(c.AccessToken)
	if ok && (exp.IsZero() || claimExp.Before(exp)) {
		return claimExp
	}
	return exp
}

// tokenExpiry extracts the exp claim from a JWT access token without
// verifying the signature. Returns false for opaque tokens.
func tokenExpiry(token string) (time.Time, bool) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Store loads and persists a Credential at a fixed file path. All
// mutation goes through the token manager; Store only provides the
// durable read/write primitive. Current and Save are safe for
// concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	cred Credential
}

// Load reads the credential file and returns a Store bound to it.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading credential file: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("parsing credential file %s: %w", path, err)
	}
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("credential file %s has no refresh token", path)
	}

	return &Store{path: path, cred: cred}, nil
}

// Current returns the credential as last loaded or saved.
func (s *Store) Current() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// Save persists the credential atomically: it writes a temporary file
// in the same directory and renames it over the original, so a crash
// mid-write never leaves a corrupt credential file behind.
func (s *Store) Save(cred Credential) error {
	// The in-memory credential is updated even if the disk write fails;
	// the refreshed token is still valid for this process.
	s.mu.Lock()
	s.cred = cred
	s.mu.Unlock()

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".credential-*.json")
	if err != nil {
		return fmt.Errorf("creating temp credential file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing credential: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing credential file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting credential file mode: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing credential file: %w", err)
	}

	return nil
}
