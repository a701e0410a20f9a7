package lib

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chattyClaw/nohumanallowed"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	fname := filepath.Join(t.TempDir(), "nohumanallowed.yaml")
	if err := os.WriteFile(fname, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return fname
}

func TestLoadConfigOrDefault(t *testing.T) {
	cfg, err := LoadConfigOrDefault("", 5)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Difficulty != 5 {
		t.Errorf("got difficulty %d, wanted 5", cfg.Difficulty)
	}
	if cfg.ExpiresIn() != nohumanallowed.DefaultChallengeTTL {
		t.Errorf("got TTL %s, wanted default", cfg.ExpiresIn())
	}
	if cfg.MaxTokenAge() != nohumanallowed.DefaultTokenMaxAge {
		t.Errorf("got token age %s, wanted default", cfg.MaxTokenAge())
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	fname := writeConfig(t, `
difficulty: 3
expires_in: 120
max_token_age: 600
require_signature: true
metadata:
  deployment: staging
`)

	cfg, err := LoadConfigOrDefault(fname, 4)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Difficulty != 3 {
		t.Errorf("got difficulty %d, wanted 3", cfg.Difficulty)
	}
	if cfg.ExpiresIn() != 120*time.Second {
		t.Errorf("got TTL %s, wanted 2m", cfg.ExpiresIn())
	}
	if cfg.MaxTokenAge() != 10*time.Minute {
		t.Errorf("got token age %s, wanted 10m", cfg.MaxTokenAge())
	}
	if !cfg.RequireSignature {
		t.Error("require_signature was not read")
	}
	if cfg.Metadata["deployment"] != "staging" {
		t.Errorf("metadata not read: %v", cfg.Metadata)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	for _, cs := range []struct {
		name     string
		contents string
		want     error
	}{
		{"negative-difficulty", "difficulty: -1", ErrNegativeDifficulty},
		{"negative-expiry", "expires_in: -10", ErrNegativeExpiry},
		{"negative-token-age", "max_token_age: -10", ErrNegativeTokenAge},
	} {
		t.Run(cs.name, func(t *testing.T) {
			_, err := LoadConfigOrDefault(writeConfig(t, cs.contents), 4)
			if !errors.Is(err, cs.want) {
				t.Errorf("got error %v, wanted %v", err, cs.want)
			}
		})
	}

	if _, err := LoadConfigOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), 4); err == nil {
		t.Error("missing config file did not error")
	}
}
