// Package credential derives and checks the per-comment deletion secret and
// the operator's admin override.
package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	SaltLen         = 9
	KeyLen          = 36
	Iterations      = 10000
	MaxSecretLength = 32
)

// Hasher produces salted PBKDF2-HMAC-SHA256 credentials of the form
// base64(salt):base64(key).
type Hasher struct {
	// Rand is the salt source; crypto/rand when nil.
	Rand io.Reader
}

func (h Hasher) Hash(secret string) (string, error) {
	salt := make([]byte, SaltLen)
	src := h.Rand
	if src == nil {
		src = rand.Reader
	}
	if _, err := io.ReadFull(src, salt); err != nil {
		return "", fmt.Errorf("credential: read salt: %w", err)
	}
	return encode(salt, derive(secret, salt)), nil
}

// Verify reports whether candidate re-derives to stored. An empty or
// malformed stored credential never verifies.
func (h Hasher) Verify(stored, candidate string) bool {
	if stored == "" {
		return false
	}
	saltPart, _, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	got := encode(salt, derive(candidate, salt))
	return subtle.ConstantTimeCompare([]byte(got), []byte(stored)) == 1
}

func derive(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(truncate(secret)), salt, Iterations, KeyLen, sha256.New)
}

func encode(salt, key []byte) string {
	return base64.StdEncoding.EncodeToString(salt) + ":" + base64.StdEncoding.EncodeToString(key)
}

// truncate keeps the first MaxSecretLength characters.
func truncate(s string) string {
	r := []rune(s)
	if len(r) > MaxSecretLength {
		return string(r[:MaxSecretLength])
	}
	return s
}

// ClientDigest is the lowercase hex SHA-256 of plaintext, which is what
// clients send in place of the raw password.
func ClientDigest(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// AdminMatcher recognises the operator override secret.
type AdminMatcher struct {
	digest string
}

// NewAdminMatcher returns a matcher for the given plaintext admin password.
// An empty password yields a matcher that never matches.
func NewAdminMatcher(password string) AdminMatcher {
	if password == "" {
		return AdminMatcher{}
	}
	return AdminMatcher{digest: ClientDigest(password)}
}

func (m AdminMatcher) Match(candidate string) bool {
	if m.digest == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(candidate)), []byte(m.digest)) == 1
}
