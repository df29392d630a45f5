package session

import "time"

// Session is one login session of a user within a realm, as listed on the
// account console sessions page.
//
// Timestamps are unix seconds so the binary encoding stays fixed width.
type Session struct {
	SessionID string
	RealmID   string
	UserID    string

	IPAddress string
	UserAgent string
	Clients   []string

	CreatedAt  int64
	LastAccess int64
	ExpiresAt  int64
}

// Deadline is the earlier of the stored expiry and CreatedAt+maxLifetime.
// A non-positive maxLifetime leaves the stored expiry alone.
func (s *Session) Deadline(maxLifetime time.Duration) time.Time {
	expires := time.Unix(s.ExpiresAt, 0)
	if maxLifetime <= 0 {
		return expires
	}
	if capped := time.Unix(s.CreatedAt, 0).Add(maxLifetime); capped.Before(expires) {
		return capped
	}
	return expires
}

// Expired reports whether the session expiry is at or before now.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}
