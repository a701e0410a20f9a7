// Package nohumanallowed contains the shared constants for the
// nohumanallowed proof-of-work challenge protocol. The interesting parts
// live in lib/challenge, lib/solver and lib/token.
package nohumanallowed

import "time"

var (
	// Version is the current version of nohumanallowed, filled in at
	// build time with -ldflags.
	Version = "devel"

	// CookieName is the name of the cookie that holds the session token
	// once a challenge has been passed.
	CookieName = "nohumanallowed-auth"

	// BasePrefix is the global prefix all routes are served under, e.g.
	// when running behind a path-routing load balancer.
	BasePrefix = ""
)

const (
	// ChallengeIDPrefix is the reserved prefix every challenge identifier
	// starts with. Session tokens refuse identifiers without it.
	ChallengeIDPrefix = "nha_"

	// DefaultDifficulty is the number of leading zero hex characters a
	// solution digest must have when the caller does not ask for a
	// specific difficulty.
	DefaultDifficulty = 4

	// MinDifficulty and MaxDifficulty bound the difficulty a caller can
	// request. Requests outside this range are clamped, never rejected.
	MinDifficulty = 1
	MaxDifficulty = 6

	// DefaultChallengeTTL is how long a challenge stays valid when the
	// caller does not pick an expiry.
	DefaultChallengeTTL = 60 * time.Second

	// DefaultTokenMaxAge is how old a session token may be before the
	// verifier rejects it.
	DefaultTokenMaxAge = 5 * time.Minute

	// APIPrefix is where the challenge API routes are mounted.
	APIPrefix = "/.nohumanallowed/api/"
)
