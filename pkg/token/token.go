// Package token issues and verifies the single-use secret tokens used for
// email verification and password reset. Only the SHA-256 digest of a token is
// ever persisted; the plaintext goes out once, embedded in an emailed link.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

const secretSize = 32

// Codec binds token issuance to a validity window.
type Codec struct {
	ttl time.Duration
	now func() time.Time
}

// NewCodec returns a Codec whose issued tokens expire after ttl.
func NewCodec(ttl time.Duration) *Codec {
	return &Codec{ttl: ttl, now: time.Now}
}

// Issue generates a random token and returns the plaintext, its digest, and
// the expiry timestamp. The caller persists digest+expiry and emails the
// plaintext.
func (c *Codec) Issue() (plain string, digest string, expiry time.Time, err error) {
	b := make([]byte, secretSize)
	if _, err = rand.Read(b); err != nil {
		return "", "", time.Time{}, err
	}
	plain = hex.EncodeToString(b)
	return plain, Digest(plain), c.now().Add(c.ttl), nil
}

// Digest returns the hex-encoded SHA-256 of a plaintext token. Lookups by
// token recompute this and match against the stored value.
func Digest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether plain hashes to storedDigest and the stored expiry
// is still in the future. The digest comparison is constant-time.
func (c *Codec) Verify(plain, storedDigest string, storedExpiry time.Time) bool {
	if subtle.ConstantTimeCompare([]byte(Digest(plain)), []byte(storedDigest)) != 1 {
		return false
	}
	return storedExpiry.After(c.now())
}
