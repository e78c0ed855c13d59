// Package authcred implements the single shared-secret bcrypt gate that
// cmd/calretd optionally puts in front of /train and /score (spec.md
// §5, SPEC_FULL.md's DOMAIN STACK bcrypt entry). Adapted down from the
// teacher's internal/auth.AuthManager: one operator, one credential,
// no roles, no per-space permissions, no multi-user JSON store.
package authcred

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"calret/internal/calerr"
)

// credentialFile is the on-disk shape of a Gate's single credential,
// the way the teacher's AuthManager persists its users map, trimmed to
// one username/hash pair.
type credentialFile struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
}

// Gate holds the one operator credential that guards cmd/calretd's
// mutating endpoints. A nil *Gate means auth is disabled: callers check
// for nil and skip Authenticate, which must not be called on a nil Gate.
type Gate struct {
	path string
	mu   sync.RWMutex
	cred credentialFile
}

// Open loads a Gate's credential from path. If path does not exist,
// Bootstrap must be called before Authenticate will succeed.
func Open(path string) (*Gate, error) {
	g := &Gate{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return g, nil
		}
		return nil, calerr.IOErr(path, err)
	}
	if err := json.Unmarshal(data, &g.cred); err != nil {
		return nil, calerr.Corruptf(path, "parsing credential file: %w", err)
	}
	return g, nil
}

// Bootstrap creates path's parent directory if needed and writes a
// fresh credential, overwriting any existing one, the way the
// teacher's bootstrapAdmin seeds the first user on first run.
func Bootstrap(path, username, password string) (*Gate, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, calerr.IOErr(filepath.Dir(path), err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("authcred: hashing password: %w", err)
	}
	g := &Gate{path: path, cred: credentialFile{Username: username, PasswordHash: string(hash)}}
	if err := g.save(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gate) save() error {
	data, err := json.MarshalIndent(g.cred, "", "  ")
	if err != nil {
		return fmt.Errorf("authcred: marshaling credential: %w", err)
	}
	if err := os.WriteFile(g.path, data, 0o600); err != nil {
		return calerr.IOErr(g.path, err)
	}
	return nil
}

// Configured reports whether a credential has been bootstrapped.
func (g *Gate) Configured() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cred.Username != ""
}

// Authenticate checks username/password against the gate's single
// credential. A Gate with no credential configured rejects every
// attempt; callers that want auth disabled entirely should pass a nil
// *Gate and skip calling Authenticate.
func (g *Gate) Authenticate(username, password string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.cred.Username == "" {
		return calerr.Invariantf("authcred: no credential configured")
	}
	if username != g.cred.Username {
		return calerr.Invariantf("authcred: unknown user %q", username)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(g.cred.PasswordHash), []byte(password)); err != nil {
		return calerr.Invariantf("authcred: invalid password")
	}
	return nil
}

// SetPassword rotates the gate's password, re-hashing and persisting
// it, the way the teacher's UpdateUserPassword does for one user.
func (g *Gate) SetPassword(password string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("authcred: hashing password: %w", err)
	}
	g.cred.PasswordHash = string(hash)
	return g.save()
}
