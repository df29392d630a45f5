package goAccount

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goAccount/internal/stores"
	"github.com/redis/go-redis/v9"
)

// RedisUserProvider is a [UserProvider] that keeps account records in Redis.
// It backs the accountd demo server and tests; production deployments
// normally adapt their own user database instead.
type RedisUserProvider struct {
	store *stores.UserStore
}

var _ UserProvider = (*RedisUserProvider)(nil)

// NewRedisUserProvider stores records under prefix ("acu" when empty).
func NewRedisUserProvider(client redis.UniversalClient, prefix string) *RedisUserProvider {
	return &RedisUserProvider{store: stores.NewUserStore(client, prefix)}
}

// PutUser creates or replaces a user. TOTP state is reset.
func (p *RedisUserProvider) PutUser(ctx context.Context, user UserRecord) error {
	return userStoreErr(p.store.Put(ctx, &stores.UserRecord{
		RealmID:      user.RealmID,
		UserID:       user.UserID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
	}))
}

func (p *RedisUserProvider) GetUserByID(ctx context.Context, realmID, userID string) (UserRecord, error) {
	rec, err := p.store.Get(ctx, realmID, userID)
	if err != nil {
		return UserRecord{}, userStoreErr(err)
	}
	return UserRecord{
		UserID:       rec.UserID,
		RealmID:      rec.RealmID,
		Username:     rec.Username,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		TOTPEnabled:  rec.TOTPEnabled,
	}, nil
}

func (p *RedisUserProvider) UpdatePasswordHash(ctx context.Context, realmID, userID, newHash string) error {
	return p.update(ctx, realmID, userID, func(r *stores.UserRecord) {
		r.PasswordHash = newHash
	})
}

func (p *RedisUserProvider) EnableTOTP(ctx context.Context, realmID, userID string, secret []byte) error {
	return p.update(ctx, realmID, userID, func(r *stores.UserRecord) {
		r.TOTPEnabled = true
		r.TOTPVerified = false
		r.TOTPSecret = append([]byte(nil), secret...)
		r.TOTPCounter = 0
	})
}

func (p *RedisUserProvider) DisableTOTP(ctx context.Context, realmID, userID string) error {
	return p.update(ctx, realmID, userID, func(r *stores.UserRecord) {
		r.TOTPEnabled = false
		r.TOTPVerified = false
		r.TOTPSecret = nil
		r.TOTPCounter = 0
	})
}

func (p *RedisUserProvider) MarkTOTPVerified(ctx context.Context, realmID, userID string) error {
	return p.update(ctx, realmID, userID, func(r *stores.UserRecord) {
		r.TOTPVerified = true
	})
}

// UpdateTOTPLastUsedCounter records the counter of the last accepted code.
// The stored counter never moves backwards.
func (p *RedisUserProvider) UpdateTOTPLastUsedCounter(ctx context.Context, realmID, userID string, counter int64) error {
	return p.update(ctx, realmID, userID, func(r *stores.UserRecord) {
		if counter > r.TOTPCounter {
			r.TOTPCounter = counter
		}
	})
}

// TOTPState returns the stored authenticator secret and last used counter.
func (p *RedisUserProvider) TOTPState(ctx context.Context, realmID, userID string) ([]byte, int64, error) {
	rec, err := p.store.Get(ctx, realmID, userID)
	if err != nil {
		return nil, 0, userStoreErr(err)
	}
	return rec.TOTPSecret, rec.TOTPCounter, nil
}

func (p *RedisUserProvider) update(ctx context.Context, realmID, userID string, fn func(*stores.UserRecord)) error {
	return userStoreErr(p.store.Update(ctx, realmID, userID, func(r *stores.UserRecord) error {
		fn(r)
		return nil
	}))
}

func userStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrUserNotFound):
		return ErrUserNotFound
	case errors.Is(err, stores.ErrUserRedisUnavailable):
		return fmt.Errorf("%w: %v", ErrUserStoreUnavailable, err)
	default:
		return err
	}
}
