// Package solver performs the brute-force nonce search for a proof-of-work
// challenge: hash prefix+nonce for nonce = 0, 1, 2, … until the digest
// starts with the target.
package solver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/chattyClaw/nohumanallowed/internal"
)

const (
	// DefaultMaxIterations bounds the search when the caller does not.
	DefaultMaxIterations = 10_000_000

	// DefaultProgressInterval is how many iterations pass between
	// progress callbacks and cancellation checks.
	DefaultProgressInterval = 100_000
)

// Options tunes a single solve. The zero value is usable.
type Options struct {
	// MaxIterations caps the search. Non-positive means the default.
	MaxIterations int

	// ProgressInterval is the batch size between OnProgress calls and
	// context checks. Non-positive means the default.
	ProgressInterval int

	// OnProgress, if set, is called every ProgressInterval iterations
	// with the iteration count so far and the observed hash rate in
	// hashes per second. The rate is 0 when no time has elapsed yet.
	OnProgress func(iterations int, hashRate float64)

	// Digest overrides the hash function, mainly so tests can swap in a
	// predictable one. Defaults to SHA-256 hex.
	Digest func(string) string
}

// Result is the outcome of a search. When Found is false the search
// exhausted MaxIterations without a match; that is a normal outcome, not an
// error.
type Result struct {
	Nonce      string
	Hash       string
	Found      bool
	Iterations int
	Elapsed    time.Duration
}

// Solve searches for a nonce whose digest of prefix+nonce starts with
// target. Nonces are consecutive decimal strings starting at 0, so the result
// is deterministic for a given prefix. The context is checked once per
// progress batch; cancellation returns ctx.Err() with the partial result.
func Solve(ctx context.Context, prefix, target string, opts *Options) (Result, error) {
	if opts == nil {
		opts = &Options{}
	}

	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	interval := opts.ProgressInterval
	if interval <= 0 {
		interval = DefaultProgressInterval
	}

	digest := opts.Digest
	if digest == nil {
		digest = internal.SHA256sum
	}

	start := time.Now()

	for i := 0; i < maxIterations; i++ {
		nonce := strconv.Itoa(i)
		hash := digest(prefix + nonce)

		if strings.HasPrefix(hash, target) {
			return Result{
				Nonce:      nonce,
				Hash:       hash,
				Found:      true,
				Iterations: i + 1,
				Elapsed:    time.Since(start),
			}, nil
		}

		if (i+1)%interval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Iterations: i + 1, Elapsed: time.Since(start)}, err
			}
			if opts.OnProgress != nil {
				opts.OnProgress(i+1, hashRate(i+1, time.Since(start)))
			}
		}
	}

	return Result{
		Found:      false,
		Iterations: maxIterations,
		Elapsed:    time.Since(start),
	}, nil
}

func hashRate(iterations int, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs == 0 {
		return 0
	}
	return float64(iterations) / secs
}
