package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned once a window has used up its attempts.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// hit bumps the counter and starts the window on its first increment, in
// one round trip so a crash cannot leave a counter without a TTL.
var hit = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// take admits one attempt only while the window has room, so parallel
// callers cannot all pass a stale count.
var take = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n >= tonumber(ARGV[2]) then
  return -1
end
n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n
`)

// Window is a fixed-window failure counter stored in Redis under
// <prefix>:<subject>.
type Window struct {
	redis    redis.UniversalClient
	prefix   string
	limit    int64
	cooldown time.Duration
}

// NewWindow creates a [Window] that trips after limit failures and resets
// cooldown after the first one.
func NewWindow(client redis.UniversalClient, prefix string, limit int, cooldown time.Duration) *Window {
	return &Window{redis: client, prefix: prefix, limit: int64(limit), cooldown: cooldown}
}

func (w *Window) key(subject string) string {
	return w.prefix + ":" + subject
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func (w *Window) count(ctx context.Context, subject string) (int64, error) {
	n, err := w.redis.Get(ctx, w.key(subject)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, unavailable(err)
	}
	return max(n, 0), nil
}

// Check returns ErrRateLimited once subject has used up its failures.
func (w *Window) Check(ctx context.Context, subject string) error {
	if w == nil {
		return nil
	}
	n, err := w.count(ctx, subject)
	if err != nil {
		return err
	}
	if n >= w.limit {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure counts one failure. It returns ErrRateLimited when this
// failure reaches the limit.
func (w *Window) RecordFailure(ctx context.Context, subject string) error {
	if w == nil {
		return nil
	}
	n, err := hit.Run(ctx, w.redis, []string{w.key(subject)}, w.cooldown.Milliseconds()).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n >= w.limit {
		return ErrRateLimited
	}
	return nil
}

// Acquire counts one attempt for subject, or returns ErrRateLimited without
// counting when the window is already full. Callers Reset on success.
func (w *Window) Acquire(ctx context.Context, subject string) error {
	if w == nil {
		return nil
	}
	n, err := take.Run(ctx, w.redis, []string{w.key(subject)}, w.cooldown.Milliseconds(), w.limit).Int64()
	if err != nil {
		return unavailable(err)
	}
	if n < 0 {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the window for subject.
func (w *Window) Reset(ctx context.Context, subject string) error {
	if w == nil {
		return nil
	}
	if err := w.redis.Del(ctx, w.key(subject)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Attempts returns the failures recorded in the current window.
func (w *Window) Attempts(ctx context.Context, subject string) (int, error) {
	if w == nil {
		return 0, nil
	}
	n, err := w.count(ctx, subject)
	return int(n), err
}

// RetryAfter reports how long until the window for subject clears. It is
// zero when no window is open.
func (w *Window) RetryAfter(ctx context.Context, subject string) (time.Duration, error) {
	if w == nil {
		return 0, nil
	}
	ttl, err := w.redis.PTTL(ctx, w.key(subject)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return max(ttl, 0), nil
}
