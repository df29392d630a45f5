package goAccount

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/session"
)

// RedisSessionProvider lists and ends user sessions held in the Redis
// session store. It implements [SessionProvider] and [SessionTerminator].
type RedisSessionProvider struct {
	store *session.Store
}

// NewRedisSessionProvider returns the default session provider over store.
func NewRedisSessionProvider(store *session.Store) *RedisSessionProvider {
	return &RedisSessionProvider{store: store}
}

// GetSessionsFor returns the live sessions of user, most recent first.
func (p *RedisSessionProvider) GetSessionsFor(ctx context.Context, realm Realm, user Principal) ([]SessionInfo, error) {
	sessions, err := p.store.ListForUser(ctx, realm.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionInfo(s, p.store.MaxLifetime()))
	}
	return out, nil
}

// LogoutOtherSessions ends every session of user except keepSessionID.
func (p *RedisSessionProvider) LogoutOtherSessions(ctx context.Context, realm Realm, user Principal, keepSessionID string) (int, error) {
	n, err := p.store.DeleteAllForUser(ctx, realm.ID, user.ID, keepSessionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	return n, nil
}

func toSessionInfo(s *session.Session, maxLifetime time.Duration) SessionInfo {
	return SessionInfo{
		ID:         s.SessionID,
		IPAddress:  s.IPAddress,
		Started:    time.Unix(s.CreatedAt, 0),
		LastAccess: time.Unix(s.LastAccess, 0),
		Expires:    s.Deadline(maxLifetime),
		Clients:    append([]string(nil), s.Clients...),
	}
}
