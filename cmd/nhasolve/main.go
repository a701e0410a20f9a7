// Command nhasolve fetches a proof-of-work challenge from a running
// nohumanallowed gate, solves it locally, submits the solution, and prints
// the resulting session token. It exists for smoke-testing deployments and
// for trusted automation that is allowed through the gate.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	_ "github.com/joho/godotenv/autoload"

	"github.com/chattyClaw/nohumanallowed"
	"github.com/chattyClaw/nohumanallowed/internal"
	"github.com/chattyClaw/nohumanallowed/lib/challenge"
	"github.com/chattyClaw/nohumanallowed/lib/solver"
)

var (
	serverURL        = flag.String("server-url", "http://localhost:8923", "base URL of the nohumanallowed gate")
	maxIterations    = flag.Int("max-iterations", solver.DefaultMaxIterations, "give up after this many hashes")
	progressInterval = flag.Int("progress-interval", solver.DefaultProgressInterval, "log progress every this many hashes")
	timeout          = flag.Duration("timeout", 2*time.Minute, "overall deadline for fetching, solving and submitting")
	slogLevel        = flag.String("slog-level", "ERROR", "logging level (see https://pkg.go.dev/log/slog#hdr-Levels)")
)

type passResponse struct {
	OK     bool   `json:"ok"`
	Token  string `json:"token"`
	Hash   string `json:"hash"`
	Reason string `json:"reason"`
}

func fetchChallenge(ctx context.Context, baseURL string) (*challenge.Challenge, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+nohumanallowed.APIPrefix+"make-challenge", nil)
	if err != nil {
		return nil, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't fetch challenge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("make-challenge returned status %d", resp.StatusCode)
	}

	var c challenge.Challenge
	if err := json.NewDecoder(resp.Body).Decode(&c); err != nil {
		return nil, fmt.Errorf("can't decode challenge: %w", err)
	}
	return &c, nil
}

func submitSolution(ctx context.Context, baseURL string, c *challenge.Challenge, solved solver.Result) (*passResponse, error) {
	body, err := json.Marshal(map[string]any{
		"id":          c.ID,
		"prefix":      c.Prefix,
		"nonce":       solved.Nonce,
		"target":      c.Target,
		"expiresAt":   c.ExpiresAt,
		"signature":   c.Signature,
		"metadata":    c.Metadata,
		"elapsedTime": solved.Elapsed.Milliseconds(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+nohumanallowed.APIPrefix+"pass-challenge", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("can't submit solution: %w", err)
	}
	defer resp.Body.Close()

	var passed passResponse
	if err := json.NewDecoder(resp.Body).Decode(&passed); err != nil {
		return nil, fmt.Errorf("can't decode verdict: %w", err)
	}

	if !passed.OK {
		return nil, fmt.Errorf("gate rejected the solution: %s", passed.Reason)
	}
	return &passed, nil
}

func main() {
	flagenv.Parse()
	flag.Parse()

	internal.InitSlog(*slogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	c, err := fetchChallenge(ctx, *serverURL)
	if err != nil {
		log.Fatal(err)
	}

	est := solver.EstimateSolveTime(len(c.Target))
	fmt.Fprintf(os.Stderr, "challenge %s: difficulty %d, expected solve time %s\n", c.ID, len(c.Target), est.Description)

	solved, err := solver.Solve(ctx, c.Prefix, c.Target, &solver.Options{
		MaxIterations:    *maxIterations,
		ProgressInterval: *progressInterval,
		OnProgress: func(iterations int, hashRate float64) {
			slog.Info("solving", "iterations", iterations, "hashRate", hashRate)
		},
	})
	if err != nil {
		log.Fatalf("solve aborted: %v", err)
	}
	if !solved.Found {
		log.Fatalf("no solution within %d iterations", solved.Iterations)
	}

	fmt.Fprintf(os.Stderr, "solved in %d iterations (%s)\n", solved.Iterations, solved.Elapsed)

	passed, err := submitSolution(ctx, *serverURL, c, solved)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(passed.Token)
}
