package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// SHA256sum computes a cryptographic hash as a lowercase hex string. This is
// the digest the proof-of-work search and the verifier agree on.
func SHA256sum(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:])
}

// HMACSHA256sum authenticates text with secret, returning the full
// 64-character lowercase hex tag. Callers that want the truncated wire form
// slice off the prefix themselves.
func HMACSHA256sum(text, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// FastHash is a high-performance non-cryptographic hash function for
// interning values into metric labels and log fields. Never use it where an
// attacker controls the input and the output gates anything.
func FastHash(text string) string {
	h := xxhash.Sum64String(text)
	return strconv.FormatUint(h, 16)
}
