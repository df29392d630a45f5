package limiters

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goAccount/internal/rate"
	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxAttempts = 5
	defaultCooldown    = time.Minute
)

var (
	// ErrAttemptsExceeded is returned once a user has used up the failures
	// allowed in the current window.
	ErrAttemptsExceeded = errors.New("attempts exceeded")
	// ErrAttemptsUnavailable wraps Redis failures.
	ErrAttemptsUnavailable = errors.New("attempt limiter unavailable")
)

// Kind names the credential whose failed attempts are counted.
type Kind string

const (
	KindPassword Kind = "pwd"
	KindTOTP     Kind = "totp"
)

// Config holds the per-kind thresholds. Zero values fall back to
// 5 attempts per minute.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// Attempts counts failed credential checks per realm user. Keys are
// att:<kind>:<realm>:<user>.
type Attempts struct {
	window *rate.Window
}

// NewAttempts creates an [Attempts] limiter for kind.
func NewAttempts(redisClient redis.UniversalClient, kind Kind, cfg Config) *Attempts {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = defaultMaxAttempts
	}
	cd := cfg.Cooldown
	if cd <= 0 {
		cd = defaultCooldown
	}
	return &Attempts{window: rate.NewWindow(redisClient, "att:"+string(kind), max, cd)}
}

func subject(realmID, userID string) string {
	return realmID + ":" + userID
}

// Check returns ErrAttemptsExceeded when the user may not try again yet.
func (l *Attempts) Check(ctx context.Context, realmID, userID string) error {
	if l == nil {
		return nil
	}
	return mapErr(l.window.Check(ctx, subject(realmID, userID)))
}

// Acquire reserves one attempt before a credential is checked. The
// reservation stands as a failure unless Reset follows.
func (l *Attempts) Acquire(ctx context.Context, realmID, userID string) error {
	if l == nil {
		return nil
	}
	return mapErr(l.window.Acquire(ctx, subject(realmID, userID)))
}

// RecordFailure counts one failed attempt.
func (l *Attempts) RecordFailure(ctx context.Context, realmID, userID string) error {
	if l == nil {
		return nil
	}
	return mapErr(l.window.RecordFailure(ctx, subject(realmID, userID)))
}

// Reset clears the user's failures after a successful check.
func (l *Attempts) Reset(ctx context.Context, realmID, userID string) error {
	if l == nil {
		return nil
	}
	return mapErr(l.window.Reset(ctx, subject(realmID, userID)))
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrAttemptsExceeded
	case errors.Is(err, rate.ErrRedisUnavailable):
		return errors.Join(ErrAttemptsUnavailable, err)
	default:
		return err
	}
}
