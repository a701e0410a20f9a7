// Package token issues and verifies the compact session tokens handed out
// after a proof-of-work challenge is passed. A token binds a challenge
// identifier to an issuance time; verifying one never requires the original
// challenge.
package token

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chattyClaw/nohumanallowed"
	"github.com/chattyClaw/nohumanallowed/internal"
)

// sigLen is the length in hex characters of a truncated HMAC-SHA256
// signature (128 bits).
const sigLen = 32

// delimiter separates the encoded payload from the signature. It appears in
// neither the base64url alphabet nor hex, so splitting on it is unambiguous.
const delimiter = "."

// ErrBadChallengeID is returned when Issue is handed an identifier without
// the reserved prefix. This is a caller defect, not a runtime condition:
// challenge identifiers always carry the prefix.
var ErrBadChallengeID = errors.New("token: challenge id does not start with " + nohumanallowed.ChallengeIDPrefix)

// VerifyOptions configures Verify. The zero value accepts unsigned tokens up
// to the default age.
type VerifyOptions struct {
	// Secret recomputes the signature. Supplying a secret makes a
	// signature mandatory.
	Secret string

	// MaxAge is the exclusive upper bound on token age: a token exactly
	// MaxAge old is already expired. Zero means the default; a negative
	// MaxAge rejects everything.
	MaxAge time.Duration

	// RequireSecret rejects verification attempts that did not supply a
	// secret, for deployments where unsigned tokens must never pass.
	RequireSecret bool
}

// VerifyResult is the verdict on a presented token.
type VerifyResult struct {
	Valid       bool   `json:"valid"`
	ChallengeID string `json:"challengeId,omitempty"`
}

// Issue mints a token for a passed challenge. With a secret the token is
// signed with a truncated HMAC-SHA256; without one it is plain and only
// suitable where the transport is trusted.
func Issue(challengeID, secret string) (string, error) {
	if !strings.HasPrefix(challengeID, nohumanallowed.ChallengeIDPrefix) {
		return "", fmt.Errorf("%w: %q", ErrBadChallengeID, challengeID)
	}

	payload := fmt.Sprintf("%s:%d", challengeID, time.Now().UnixMilli())
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))

	if secret == "" {
		return encoded, nil
	}

	return encoded + delimiter + internal.HMACSHA256sum(payload, secret)[:sigLen], nil
}

// Verify checks a presented token. Any malformed input, failed decode or
// parse anywhere in the sequence produces an invalid verdict; Verify never
// returns an error, keeping the attack surface to a single bit.
func Verify(tok string, opts *VerifyOptions) VerifyResult {
	if opts == nil {
		opts = &VerifyOptions{}
	}

	maxAge := opts.MaxAge
	if maxAge == 0 {
		maxAge = nohumanallowed.DefaultTokenMaxAge
	}

	if tok == "" {
		return VerifyResult{}
	}

	encoded, signature, hasSignature := strings.Cut(tok, delimiter)

	payloadBytes, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return VerifyResult{}
	}

	parts := strings.Split(string(payloadBytes), ":")
	if len(parts) != 2 {
		return VerifyResult{}
	}

	challengeID := parts[0]
	if !strings.HasPrefix(challengeID, nohumanallowed.ChallengeIDPrefix) {
		return VerifyResult{}
	}

	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || issuedAt <= 0 {
		return VerifyResult{}
	}

	age := time.Now().UnixMilli() - issuedAt
	if age >= maxAge.Milliseconds() {
		return VerifyResult{}
	}

	if opts.RequireSecret && opts.Secret == "" {
		return VerifyResult{}
	}

	if opts.Secret != "" {
		if !hasSignature {
			return VerifyResult{}
		}
		expected := internal.HMACSHA256sum(string(payloadBytes), opts.Secret)[:sigLen]
		if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
			return VerifyResult{}
		}
	}

	return VerifyResult{Valid: true, ChallengeID: challengeID}
}
