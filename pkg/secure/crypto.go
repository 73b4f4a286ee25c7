package secure

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// MinSecretLength is the shortest HMAC key accepted by NewHasher.
const MinSecretLength = 16

// ErrSecretTooShort is returned when the configured secret is shorter than MinSecretLength.
var ErrSecretTooShort = errors.New("secret must be at least 16 bytes long")

// Hasher produces keyed digests of one-time codes so the codes themselves are never stored.
type Hasher struct {
	key []byte
}

// NewHasher creates a Hasher keyed with secret.
func NewHasher(secret string) (*Hasher, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	return &Hasher{key: []byte(secret)}, nil
}

// Digest returns the hex-encoded HMAC-SHA256 of code.
// Do not change the encoding without migrating live records: stored digests would stop matching.
func (h *Hasher) Digest(code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches reports whether code hashes to digest. The comparison runs in constant time.
func (h *Hasher) Matches(code, digest string) bool {
	return hmac.Equal([]byte(h.Digest(code)), []byte(digest))
}

// RandomSecret returns a hex-encoded random secret of n bytes.
// It is meant for local runs where no secret was configured.
func RandomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
