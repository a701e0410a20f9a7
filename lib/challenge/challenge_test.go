package challenge

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/chattyClaw/nohumanallowed"
)

var idPattern = regexp.MustCompile(`^nha_[0-9a-f]{24}$`)

func mustNew(t *testing.T, opts Options) *Challenge {
	t.Helper()

	c, err := New(opts)
	if err != nil {
		t.Fatalf("can't create challenge: %v", err)
	}
	return c
}

func TestNewShape(t *testing.T) {
	c := mustNew(t, Options{})

	if !idPattern.MatchString(c.ID) {
		t.Errorf("id %q does not match %s", c.ID, idPattern)
	}

	if len(c.Prefix) != 16 {
		t.Errorf("prefix %q is %d characters, wanted 16", c.Prefix, len(c.Prefix))
	}

	if strings.Trim(c.Prefix, "0123456789abcdef") != "" {
		t.Errorf("prefix %q is not lowercase hex", c.Prefix)
	}

	if c.Target != strings.Repeat("0", nohumanallowed.DefaultDifficulty) {
		t.Errorf("default target is %q", c.Target)
	}

	if c.Signature != "" {
		t.Errorf("unsigned challenge has signature %q", c.Signature)
	}

	wantExpiry := time.Now().Add(nohumanallowed.DefaultChallengeTTL).Unix()
	if c.ExpiresAt < wantExpiry-2 || c.ExpiresAt > wantExpiry+2 {
		t.Errorf("expiresAt %d is not near %d", c.ExpiresAt, wantExpiry)
	}
}

func TestNewDifficultyClamping(t *testing.T) {
	for _, cs := range []struct {
		name       string
		difficulty int
		wantLen    int
	}{
		{"unset", 0, nohumanallowed.DefaultDifficulty},
		{"min", 1, 1},
		{"max", 6, 6},
		{"below-range", -3, 1},
		{"above-range", 10, 6},
		{"in-range", 3, 3},
	} {
		t.Run(cs.name, func(t *testing.T) {
			c := mustNew(t, Options{Difficulty: cs.difficulty})

			if len(c.Target) != cs.wantLen {
				t.Errorf("target %q has length %d, wanted %d", c.Target, len(c.Target), cs.wantLen)
			}

			if strings.Trim(c.Target, "0") != "" {
				t.Errorf("target %q contains more than zeros", c.Target)
			}
		})
	}
}

func TestNewExpiresIn(t *testing.T) {
	for _, cs := range []struct {
		name      string
		expiresIn time.Duration
		wantTTL   time.Duration
	}{
		{"unset", 0, nohumanallowed.DefaultChallengeTTL},
		{"negative", -5 * time.Second, nohumanallowed.DefaultChallengeTTL},
		{"explicit", 120 * time.Second, 120 * time.Second},
	} {
		t.Run(cs.name, func(t *testing.T) {
			c := mustNew(t, Options{ExpiresIn: cs.expiresIn})

			want := time.Now().Add(cs.wantTTL).Unix()
			if c.ExpiresAt < want-2 || c.ExpiresAt > want+2 {
				t.Errorf("expiresAt %d is not near %d", c.ExpiresAt, want)
			}
		})
	}
}

func TestNewSigned(t *testing.T) {
	c := mustNew(t, Options{Secret: "hunter2"})

	if len(c.Signature) != sigLen {
		t.Fatalf("signature %q is %d characters, wanted %d", c.Signature, len(c.Signature), sigLen)
	}

	want := Sign(c.Prefix, c.Target, c.ExpiresAt, c.Metadata, "hunter2")
	if c.Signature != want {
		t.Errorf("signature does not recompute: got %s, want %s", c.Signature, want)
	}
}

func TestSignMetadataOrderIndependent(t *testing.T) {
	a := map[string]any{"ip": "127.0.0.1", "ua": "curl/8.0", "tags": []any{"a", "b"}}
	b := map[string]any{"tags": []any{"a", "b"}, "ua": "curl/8.0", "ip": "127.0.0.1"}

	sigA := Sign("deadbeefdeadbeef", "0000", 1700000000, a, "hunter2")
	sigB := Sign("deadbeefdeadbeef", "0000", 1700000000, b, "hunter2")
	if sigA != sigB {
		t.Errorf("semantically equal metadata signed differently: %s vs %s", sigA, sigB)
	}

	c := map[string]any{"ip": "127.0.0.2", "ua": "curl/8.0", "tags": []any{"a", "b"}}
	if sigC := Sign("deadbeefdeadbeef", "0000", 1700000000, c, "hunter2"); sigC == sigA {
		t.Error("different metadata produced the same signature")
	}
}

func TestChallengesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		c := mustNew(t, Options{})
		if seen[c.ID] || seen[c.Prefix] {
			t.Fatalf("duplicate id or prefix after %d challenges", i)
		}
		seen[c.ID] = true
		seen[c.Prefix] = true
	}
}
