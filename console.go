package goAccount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goAccount/internal"
	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/password"
	"github.com/MrEthical07/goAccount/permission"
	"github.com/MrEthical07/goAccount/session"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Console is the long-lived account console. It owns the shared services
// (session store, limiters, hashing, token verification, audit) and hands
// out one [Dispatcher] per request.
//
// Console is safe for concurrent use.
type Console struct {
	config Config
	logger zerolog.Logger

	pages      PageBuilderFactory
	sessions   SessionProvider
	redirector LoginRedirector
	errorPages ErrorPager
	users      UserProvider

	roles           *permission.Roles
	sessionStore    *session.Store
	passwordLimiter *limiters.Attempts
	totpLimiter     *limiters.Attempts
	passwordHash    *password.Argon2
	totp            *authenticator
	tokens          *jwt.Manager
	audit           *internalaudit.Dispatcher
	metrics         *Metrics

	// lookups collapses concurrent strict checks of one session into a
	// single store read.
	lookups singleflight.Group
}

// Close drains pending audit events. The console must not be used afterwards.
func (c *Console) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}

// AuditDropped returns how many audit events were dropped because the buffer was full.
func (c *Console) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the console counters.
func (c *Console) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Features returns the enabled console features.
func (c *Console) Features() Features {
	return c.config.Features
}

// Ping reports the latency of the session backend.
func (c *Console) Ping(ctx context.Context) (time.Duration, error) {
	if c == nil || c.sessionStore == nil {
		return 0, ErrConsoleNotReady
	}
	return c.sessionStore.Ping(ctx)
}

func (c *Console) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// NewDispatcher returns the request-scoped dispatcher for one console
// request. auth may be nil for an unauthenticated request.
func (c *Console) NewDispatcher(auth *AuthContext, info RequestInfo) *Dispatcher {
	return &Dispatcher{
		console: c,
		auth:    auth,
		info:    info,
	}
}

func (c *Console) lookupSession(ctx context.Context, realm, sid string) (*session.Session, error) {
	v, err, _ := c.lookups.Do(realm+"/"+sid, func() (any, error) {
		return c.sessionStore.Get(context.WithoutCancel(ctx), realm, sid)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session), nil
}

// Authenticate verifies an identity token and returns the principal it
// carries. In strict mode the token's session must still exist in the
// session store; [ModeInherit] uses the configured default.
func (c *Console) Authenticate(ctx context.Context, token string, mode RouteMode) (*AuthContext, error) {
	if c == nil || c.tokens == nil {
		return nil, ErrConsoleNotReady
	}

	if mode == ModeInherit {
		mode = c.config.ValidationMode
	}
	if mode != ModeJWTOnly && mode != ModeStrict {
		return nil, ErrInvalidRouteMode
	}

	claims, err := c.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if mode == ModeStrict {
		sess, err := c.lookupSession(ctx, claims.Realm, claims.SessionID)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
		}
		if sess.UserID != claims.Subject {
			return nil, ErrSessionNotFound
		}
	}

	return &AuthContext{
		Realm: Realm{ID: claims.Realm, Name: claims.Realm},
		User: Principal{
			ID:        claims.Subject,
			Username:  claims.PreferredUsername,
			Email:     claims.Email,
			FirstName: claims.GivenName,
			LastName:  claims.FamilyName,
		},
		Client:    Client{ClientID: claims.AuthorizedParty},
		SessionID: claims.SessionID,
		Roles:     append([]string(nil), claims.Roles...),
	}, nil
}

// OpenSession records a new login session for user and issues an identity
// token bound to it. The client IP and user agent are taken from ctx.
// Used by login services sharing the session store and by accountd token.
func (c *Console) OpenSession(ctx context.Context, realmID string, user UserRecord, roles []string) (string, string, error) {
	if c == nil || c.tokens == nil {
		return "", "", ErrConsoleNotReady
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:  sid,
		RealmID:    realmID,
		UserID:     user.UserID,
		IPAddress:  ClientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Clients:    []string{c.config.Console.ClientID},
		CreatedAt:  now.Unix(),
		LastAccess: now.Unix(),
		ExpiresAt:  now.Add(c.config.Session.MaxLifetime).Unix(),
	}

	if err := c.sessionStore.Save(ctx, sess); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	token, err := c.tokens.Issue(jwt.IdentityClaims{
		Realm:             realmID,
		SessionID:         sess.SessionID,
		AuthorizedParty:   c.config.Console.ClientID,
		PreferredUsername: user.Username,
		Email:             user.Email,
		Roles:             roles,
		RegisteredClaims:  gjwt.RegisteredClaims{Subject: user.UserID},
	})
	if err != nil {
		_ = c.sessionStore.Delete(ctx, realmID, sess.SessionID)
		return "", "", err
	}

	return token, sess.SessionID, nil
}

// HashPassword hashes pw with the console's Argon2 parameters and length
// policy. Used to seed user stores.
func (c *Console) HashPassword(pw string) (string, error) {
	if c == nil || c.passwordHash == nil {
		return "", ErrConsoleNotReady
	}
	return c.passwordHash.Hash(pw)
}

func (c *Console) hasPermission(auth *AuthContext, name string) bool {
	if auth == nil || c.roles == nil {
		return false
	}
	return c.roles.Allows(auth.Roles, name)
}
