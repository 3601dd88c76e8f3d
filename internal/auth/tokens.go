package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

const opaqueTokenBytes = 32

// newOpaqueToken returns a random hex token and the digest that is stored in
// its place.
func newOpaqueToken() (raw, digest string, err error) {
	buf := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", oops.Code("AUTH_TOKEN_GENERATION_FAILED").Wrap(err)
	}
	raw = hex.EncodeToString(buf)
	return raw, digestToken(raw), nil
}

// digestToken hashes a high-entropy token. Tokens carry 256 bits of entropy
// (or are signed JWTs), so an unsalted SHA-256 is sufficient.
func digestToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// tokenMatches compares raw against a stored digest in constant time.
func tokenMatches(raw string, stored *string) bool {
	if raw == "" || stored == nil || *stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(digestToken(raw)), []byte(*stored)) == 1
}
