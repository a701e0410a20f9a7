package solver

import (
	"math"

	"github.com/chattyClaw/nohumanallowed/lib/challenge"
)

// assumedHashRate is a rough single-threaded SHA-256 rate in hashes per
// second, used only to give humans a feel for how long a difficulty takes.
// It is never measured live and nothing in the protocol depends on it.
const assumedHashRate = 100_000

// Estimate is an advisory cost projection for a difficulty level.
type Estimate struct {
	// Difficulty after normalization.
	Difficulty int

	// AverageIterations is the expected number of digests before a match,
	// 16^d / 2.
	AverageIterations float64

	// AverageMs is AverageIterations at the assumed hash rate.
	AverageMs float64

	// Description is a coarse human-readable bucket.
	Description string
}

// EstimateSolveTime projects the expected solve cost for a difficulty. The
// expectation is over the hash function's uniform output, not over the nonce
// starting point: the search always starts at nonce 0, so realized times
// vary around this.
func EstimateSolveTime(difficulty int) Estimate {
	d := challenge.ClampDifficulty(difficulty)

	iterations := math.Pow(16, float64(d)) / 2
	averageMs := iterations / assumedHashRate * 1000

	return Estimate{
		Difficulty:        d,
		AverageIterations: iterations,
		AverageMs:         averageMs,
		Description:       describe(averageMs),
	}
}

func describe(averageMs float64) string {
	switch {
	case averageMs < 100:
		return "instant"
	case averageMs < 1000:
		return "under a second"
	case averageMs < 10_000:
		return "a few seconds"
	case averageMs < 60_000:
		return "under a minute"
	default:
		return "minutes or more"
	}
}
