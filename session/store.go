package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned for missing or lapsed sessions.
	ErrNotFound = errors.New("session not found")
)

const minSlidingTTL = time.Second

// revokeOthers deletes every session in the user index (KEYS[1]) except
// ARGV[2]. Session keys are ARGV[1]..sid. Returns how many keys existed.
var revokeOthers = redis.NewScript(`
local removed = 0
for _, sid in ipairs(redis.call("SMEMBERS", KEYS[1])) do
  if sid ~= ARGV[2] then
    removed = removed + redis.call("DEL", ARGV[1] .. sid)
    redis.call("SREM", KEYS[1], sid)
  end
end
return removed
`)

// Options configures a [Store].
type Options struct {
	Prefix string
	// Sliding renews the key TTL on every Get.
	Sliding bool
	// IdleTimeout caps a sliding renewal, so unused sessions lapse before
	// their absolute deadline.
	IdleTimeout time.Duration
	// MaxLifetime caps every session at CreatedAt+MaxLifetime.
	MaxLifetime time.Duration
	// Jitter spreads sliding renewals by up to ±Jitter.
	Jitter time.Duration
}

// Store is a Redis-backed session store. Each session lives under
// prefix:realm:sid, indexed per user under prefixu:realm:user.
type Store struct {
	redis redis.UniversalClient
	opts  Options
}

// NewStore returns a [Store] over client.
func NewStore(client redis.UniversalClient, opts Options) *Store {
	return &Store{redis: client, opts: opts}
}

// MaxLifetime is the absolute lifetime cap applied to every session.
func (s *Store) MaxLifetime() time.Duration { return s.opts.MaxLifetime }

func realmPart(realmID string) string {
	if realmID == "" {
		return "0"
	}
	return realmID
}

func (s *Store) keyBase(realmID string) string {
	return s.opts.Prefix + ":" + realmPart(realmID) + ":"
}

func (s *Store) key(realmID, sessionID string) string {
	return s.keyBase(realmID) + sessionID
}

func (s *Store) userKey(realmID, userID string) string {
	return s.opts.Prefix + "u:" + realmPart(realmID) + ":" + userID
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Save writes sess and adds it to the user index. The key lives until the
// idle timeout for sliding sessions, otherwise until the session deadline.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := time.Until(sess.Deadline(s.opts.MaxLifetime))
	if ttl <= 0 {
		return fmt.Errorf("session %s: already expired", sess.SessionID)
	}
	if s.opts.Sliding && s.opts.IdleTimeout > 0 && s.opts.IdleTimeout < ttl {
		ttl = s.opts.IdleTimeout
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.RealmID, sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.RealmID, sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) load(ctx context.Context, realmID, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(realmID, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID
	return sess, nil
}

// Get loads a session and records the access. Sessions past their deadline
// are removed and reported as [ErrNotFound].
func (s *Store) Get(ctx context.Context, realmID, sessionID string) (*Session, error) {
	sess, err := s.load(ctx, realmID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	remaining := sess.Deadline(s.opts.MaxLifetime).Sub(now)
	if remaining <= 0 {
		if err := s.remove(ctx, sess); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}

	sess.LastAccess = now.Unix()
	data, err := Encode(sess)
	if err != nil {
		return nil, err
	}

	key := s.key(realmID, sessionID)
	if s.opts.Sliding {
		err = s.redis.Set(ctx, key, data, s.slidingTTL(remaining)).Err()
	} else {
		err = s.redis.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true}).Err()
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, realmID, sessionID string) error {
	sess, err := s.load(ctx, realmID, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.remove(ctx, sess)
}

func (s *Store) remove(ctx context.Context, sess *Session) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sess.RealmID, sess.SessionID))
		pipe.SRem(ctx, s.userKey(sess.RealmID, sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// ListForUser returns the live sessions of a user, most recently accessed
// first, without renewing them. Index entries whose key has lapsed are
// pruned. The result is never nil.
func (s *Store) ListForUser(ctx context.Context, realmID, userID string) ([]*Session, error) {
	userKey := s.userKey(realmID, userID)

	ids, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	sessions := make([]*Session, 0, len(ids))
	if len(ids) == 0 {
		return sessions, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(realmID, id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	var stale []any
	now := time.Now()
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		sess, err := Decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		sess.SessionID = ids[i]
		if !sess.Deadline(s.opts.MaxLifetime).After(now) {
			continue
		}
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, userKey, stale...).Err(); err != nil {
			return nil, unavailable(err)
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.LastAccess != b.LastAccess {
			return a.LastAccess > b.LastAccess
		}
		return a.SessionID < b.SessionID
	})
	return sessions, nil
}

// DeleteAllForUser removes every session of a user except keepSessionID,
// which may be empty, in one script run. It returns how many sessions
// still existed.
func (s *Store) DeleteAllForUser(ctx context.Context, realmID, userID, keepSessionID string) (int, error) {
	n, err := revokeOthers.Run(ctx, s.redis,
		[]string{s.userKey(realmID, userID)},
		s.keyBase(realmID), keepSessionID,
	).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// ActiveSessionCount returns the size of the user index. Lapsed entries
// count until the next ListForUser prunes them.
func (s *Store) ActiveSessionCount(ctx context.Context, realmID, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.userKey(realmID, userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Ping measures a Redis round trip.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), unavailable(err)
	}
	return time.Since(start), nil
}

// slidingTTL is the idle timeout, jittered, clamped to [1s, remaining].
func (s *Store) slidingTTL(remaining time.Duration) time.Duration {
	ttl := remaining
	if idle := s.opts.IdleTimeout; idle > 0 && idle < ttl {
		ttl = idle
	}
	if j := s.opts.Jitter; j > 0 {
		ttl += time.Duration(rand.Int64N(int64(2*j)+1)) - j
	}
	ttl = min(ttl, remaining)
	return max(ttl, min(minSlidingTTL, remaining))
}
