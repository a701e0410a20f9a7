package lib

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chattyClaw/nohumanallowed"
)

// Config is the optional file-based configuration for the gate. Flags and
// environment variables fill the same fields; the file wins when present.
type Config struct {
	// Difficulty is the number of leading zero hex characters required of
	// a solution digest.
	Difficulty int `yaml:"difficulty" json:"difficulty"`

	// ExpiresInSeconds is how long an issued challenge stays solvable.
	ExpiresInSeconds int `yaml:"expires_in" json:"expires_in"`

	// MaxTokenAgeSeconds is the exclusive age bound on session tokens.
	MaxTokenAgeSeconds int `yaml:"max_token_age" json:"max_token_age"`

	// RequireSignature rejects challenge submissions without a signature.
	// It only makes sense together with a secret.
	RequireSignature bool `yaml:"require_signature" json:"require_signature"`

	// Metadata is attached to every issued challenge.
	Metadata map[string]any `yaml:"metadata" json:"metadata"`
}

var (
	ErrNegativeDifficulty = errors.New("config: difficulty can't be negative")
	ErrNegativeExpiry     = errors.New("config: expires_in can't be negative")
	ErrNegativeTokenAge   = errors.New("config: max_token_age can't be negative")
)

// Valid collects every fault in the configuration instead of stopping at the
// first one.
func (c *Config) Valid() error {
	var errs []error

	if c.Difficulty < 0 {
		errs = append(errs, ErrNegativeDifficulty)
	}
	if c.ExpiresInSeconds < 0 {
		errs = append(errs, ErrNegativeExpiry)
	}
	if c.MaxTokenAgeSeconds < 0 {
		errs = append(errs, ErrNegativeTokenAge)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config: invalid: %w", errors.Join(errs...))
	}
	return nil
}

// ExpiresIn returns the challenge TTL as a duration, falling back to the
// default when unset.
func (c *Config) ExpiresIn() time.Duration {
	if c.ExpiresInSeconds <= 0 {
		return nohumanallowed.DefaultChallengeTTL
	}
	return time.Duration(c.ExpiresInSeconds) * time.Second
}

// MaxTokenAge returns the token age bound as a duration, falling back to the
// default when unset.
func (c *Config) MaxTokenAge() time.Duration {
	if c.MaxTokenAgeSeconds <= 0 {
		return nohumanallowed.DefaultTokenMaxAge
	}
	return time.Duration(c.MaxTokenAgeSeconds) * time.Second
}

// LoadConfigOrDefault reads a YAML config file, or returns a default config
// built around defaultDifficulty when fname is empty.
func LoadConfigOrDefault(fname string, defaultDifficulty int) (*Config, error) {
	result := &Config{Difficulty: defaultDifficulty}

	if fname != "" {
		fin, err := os.Open(fname)
		if err != nil {
			return nil, fmt.Errorf("can't open config file %s: %w", fname, err)
		}
		defer fin.Close()

		if err := yaml.NewDecoder(fin).Decode(result); err != nil {
			return nil, fmt.Errorf("can't parse config file %s: %w", fname, err)
		}
	}

	if err := result.Valid(); err != nil {
		return nil, err
	}

	return result, nil
}
