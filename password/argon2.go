package password

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB   = 8 * 1024
	minSaltLength = 16
	minKeyLength  = 16
)

// Config holds the argon2id cost parameters and the length policy.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength defaults to MinLengthFloor, MaxPasswordBytes to
	// DefaultMaxPasswordBytes.
	MinLength        int
	MaxPasswordBytes int
}

func (c Config) validate() error {
	switch {
	case c.Memory < minMemoryKB:
		return fmt.Errorf("password memory must be >= %d KB", minMemoryKB)
	case c.Time < 1:
		return errors.New("password time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password parallelism must be >= 1")
	case c.SaltLength < minSaltLength:
		return fmt.Errorf("password salt length must be >= %d", minSaltLength)
	case c.KeyLength < minKeyLength:
		return fmt.Errorf("password key length must be >= %d", minKeyLength)
	case c.MinLength != 0 && c.MinLength < MinLengthFloor:
		return fmt.Errorf("password min length must be >= %d", MinLengthFloor)
	case c.MaxPasswordBytes < 0 || (c.MaxPasswordBytes > 0 && c.MaxPasswordBytes < c.MinLength):
		return errors.New("password max bytes must cover min length")
	}
	return nil
}

// Argon2 hashes and verifies account passwords.
type Argon2 struct {
	cfg    Config
	policy Policy
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MinLength == 0 {
		cfg.MinLength = MinLengthFloor
	}
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	return &Argon2{
		cfg:    cfg,
		policy: Policy{MinLength: cfg.MinLength, MaxBytes: cfg.MaxPasswordBytes},
	}, nil
}

// Policy returns the length policy Hash enforces.
func (a *Argon2) Policy() Policy { return a.policy }

// Hash returns the PHC encoding of pw, or a *LengthError when pw breaks
// the policy.
func (a *Argon2) Hash(pw string) (string, error) {
	if err := a.policy.Check(pw); err != nil {
		return "", err
	}

	h := phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        make([]byte, a.cfg.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", fmt.Errorf("password salt: %w", err)
	}
	h.key = argon2.IDKey([]byte(pw), h.salt, h.time, h.memory, h.parallelism, a.cfg.KeyLength)
	return h.String(), nil
}

// Verify reports whether pw matches encoded. A malformed hash is an error,
// a mismatch is not. Over-long input fails before any key derivation.
func (a *Argon2) Verify(pw, encoded string) (bool, error) {
	if err := a.policy.checkMax(pw); err != nil {
		return false, err
	}
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(pw), h.salt, h.time, h.memory, h.parallelism, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker cost
// parameters or a different key length than the current config.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	h, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	return h.memory < a.cfg.Memory ||
		h.time < a.cfg.Time ||
		h.parallelism < a.cfg.Parallelism ||
		uint32(len(h.key)) != a.cfg.KeyLength, nil
}
