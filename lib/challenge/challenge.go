// Package challenge implements the stateless proof-of-work challenge
// protocol: issuing challenges, signing them so they are tamper-evident, and
// verifying submitted solutions. Nothing here keeps state; a verifier derives
// everything it needs from what the client resubmits.
package challenge

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/chattyClaw/nohumanallowed"
	"github.com/chattyClaw/nohumanallowed/internal"
)

// sigLen is the length in hex characters of a truncated HMAC-SHA256
// signature (128 bits).
const sigLen = 32

// metaHashLen is the length in hex characters of the metadata fingerprint
// folded into the signing payload (64 bits).
const metaHashLen = 16

// Challenge is a single proof-of-work challenge. It is immutable once
// issued: the server hands it to the client verbatim and forgets it.
type Challenge struct {
	// ID correlates a later session token with this challenge. It carries
	// no cryptographic weight.
	ID string `json:"id"`

	// Prefix is the random string the client hashes together with its
	// candidate nonces.
	Prefix string `json:"prefix"`

	// Target is the string of '0' characters a solution digest must start
	// with. Its length is the difficulty.
	Target string `json:"target"`

	// ExpiresAt is the Unix timestamp in seconds after which the
	// challenge must be rejected.
	ExpiresAt int64 `json:"expiresAt"`

	// Metadata is opaque caller-supplied data. When the challenge is
	// signed, the metadata is bound into the signature and cannot be
	// altered independently.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Signature is the truncated HMAC-SHA256 over the challenge fields,
	// present only when the issuer supplied a secret.
	Signature string `json:"signature,omitempty"`
}

// Options configures New. The zero value issues an unsigned challenge with
// default difficulty and expiry.
type Options struct {
	// Difficulty is the requested number of leading zero hex characters.
	// Zero means "use the default"; anything else is clamped into
	// [MinDifficulty, MaxDifficulty].
	Difficulty int

	// ExpiresIn is how long the challenge stays valid. Non-positive
	// durations fall back to the default.
	ExpiresIn time.Duration

	// Metadata is carried on the challenge verbatim.
	Metadata map[string]any

	// Secret, when set, makes New sign the challenge.
	Secret string
}

// ClampDifficulty normalizes a requested difficulty the same way New does.
// Zero maps to the default, everything else is clamped into bounds.
func ClampDifficulty(difficulty int) int {
	switch {
	case difficulty == 0:
		return nohumanallowed.DefaultDifficulty
	case difficulty < nohumanallowed.MinDifficulty:
		return nohumanallowed.MinDifficulty
	case difficulty > nohumanallowed.MaxDifficulty:
		return nohumanallowed.MaxDifficulty
	default:
		return difficulty
	}
}

// New issues a challenge. Malformed numeric options are silently normalized,
// never rejected; the only error condition is the system random source
// failing.
func New(opts Options) (*Challenge, error) {
	idBytes := make([]byte, 12)
	if _, err := rand.Read(idBytes); err != nil {
		return nil, fmt.Errorf("challenge: can't read random bytes for id: %w", err)
	}

	prefixBytes := make([]byte, 8)
	if _, err := rand.Read(prefixBytes); err != nil {
		return nil, fmt.Errorf("challenge: can't read random bytes for prefix: %w", err)
	}

	ttl := opts.ExpiresIn
	if ttl <= 0 {
		ttl = nohumanallowed.DefaultChallengeTTL
	}

	result := &Challenge{
		ID:        nohumanallowed.ChallengeIDPrefix + hex.EncodeToString(idBytes),
		Prefix:    hex.EncodeToString(prefixBytes),
		Target:    strings.Repeat("0", ClampDifficulty(opts.Difficulty)),
		ExpiresAt: time.Now().Add(ttl).Unix(),
		Metadata:  opts.Metadata,
	}

	if opts.Secret != "" {
		result.Signature = Sign(result.Prefix, result.Target, result.ExpiresAt, result.Metadata, opts.Secret)
	}

	return result, nil
}

// Sign computes the truncated HMAC-SHA256 signature over the challenge
// fields. The metadata is folded in as a fingerprint of its canonical
// serialization so that semantically equal metadata always signs
// identically.
func Sign(prefix, target string, expiresAt int64, metadata map[string]any, secret string) string {
	payload := fmt.Sprintf("%s:%s:%d:%s", prefix, target, expiresAt, metadataFingerprint(metadata))
	return internal.HMACSHA256sum(payload, secret)[:sigLen]
}

func metadataFingerprint(metadata map[string]any) string {
	serialized := ""
	if len(metadata) != 0 {
		serialized = canonicalize(metadata)
	}
	return internal.SHA256sum(serialized)[:metaHashLen]
}
