package challenge

import (
	"crypto/subtle"
	"regexp"
	"strings"
	"time"

	"github.com/chattyClaw/nohumanallowed/internal"
)

// Reason says why a verification failed. Reasons are data, not errors:
// attacker-controlled input never makes Verify fail hard, it only produces a
// tagged verdict the transport layer can map to a status code.
type Reason string

const (
	ReasonInvalidInput     Reason = "invalid_input"
	ReasonInvalidTarget    Reason = "invalid_target"
	ReasonInvalidExpiry    Reason = "invalid_expiry"
	ReasonExpired          Reason = "expired"
	ReasonMissingSecret    Reason = "missing_secret"
	ReasonMissingSignature Reason = "missing_signature"
	ReasonInvalidSignature Reason = "invalid_signature"
	ReasonInvalidHash      Reason = "invalid_hash"
)

var targetPattern = regexp.MustCompile(`^0{1,6}$`)

// VerifyInput is everything the verifier needs, resubmitted by the client
// except for Secret and RequireSignature which are supplied out-of-band on
// the trusted side.
type VerifyInput struct {
	Prefix    string
	Nonce     string
	Target    string
	ExpiresAt int64
	Signature string
	Metadata  map[string]any

	// Secret recomputes the signature. It must never appear in a wire
	// payload.
	Secret string

	// RequireSignature rejects unsigned submissions outright.
	RequireSignature bool
}

// VerifyResult is the verdict. Reason is populated only on failure; Hash is
// included whenever the solution digest was computed, for diagnostics.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
	Hash   string `json:"hash,omitempty"`
}

func fail(reason Reason) VerifyResult {
	return VerifyResult{Valid: false, Reason: reason}
}

// Verify checks a submitted solution against the challenge fields the client
// resubmitted. It is a pure function of its input plus the wall clock: the
// first failing check wins and short-circuits the rest.
//
// The nonce must be the exact decimal string the solver produced. A
// re-parsed numeric form with leading zeros hashes differently and fails the
// hash check; that is the caller's problem, not the verifier's.
func Verify(in VerifyInput) VerifyResult {
	if in.Prefix == "" {
		return fail(ReasonInvalidInput)
	}

	if in.Nonce == "" {
		return fail(ReasonInvalidInput)
	}

	if !targetPattern.MatchString(in.Target) {
		return fail(ReasonInvalidTarget)
	}

	if in.ExpiresAt <= 0 {
		return fail(ReasonInvalidExpiry)
	}

	if time.Now().Unix() > in.ExpiresAt {
		return fail(ReasonExpired)
	}

	if in.RequireSignature {
		if in.Secret == "" {
			return fail(ReasonMissingSecret)
		}
		if in.Signature == "" {
			return fail(ReasonMissingSignature)
		}
	}

	// fail closed: a signature the verifier can't check is never silently
	// ignored
	if in.Signature != "" && in.Secret == "" {
		return fail(ReasonMissingSecret)
	}

	if in.Signature != "" && in.Secret != "" {
		expected := Sign(in.Prefix, in.Target, in.ExpiresAt, in.Metadata, in.Secret)
		if subtle.ConstantTimeCompare([]byte(in.Signature), []byte(expected)) != 1 {
			return fail(ReasonInvalidSignature)
		}
	}

	hash := internal.SHA256sum(in.Prefix + in.Nonce)
	if !strings.HasPrefix(hash, in.Target) {
		return VerifyResult{Valid: false, Reason: ReasonInvalidHash, Hash: hash}
	}

	return VerifyResult{Valid: true, Hash: hash}
}
