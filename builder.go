package goAccount

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/goAccount/internal/audit"
	"github.com/MrEthical07/goAccount/internal/limiters"
	"github.com/MrEthical07/goAccount/jwt"
	"github.com/MrEthical07/goAccount/password"
	"github.com/MrEthical07/goAccount/permission"
	"github.com/MrEthical07/goAccount/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles a [Console]. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *zerolog.Logger

	permissions []string
	roles       map[string][]string

	pages      PageBuilderFactory
	sessions   SessionProvider
	redirector LoginRedirector
	errorPages ErrorPager
	users      UserProvider
	auditSink  AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions and attempt limiters.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the console logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithPermissions overrides [DefaultPermissions].
func (b *Builder) WithPermissions(perms []string) *Builder {
	b.permissions = perms
	return b
}

// WithRoles overrides [DefaultRoles].
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithPageBuilder sets the factory for per-request page builders.
func (b *Builder) WithPageBuilder(factory PageBuilderFactory) *Builder {
	b.pages = factory
	return b
}

// WithSessionProvider overrides the Redis session provider.
func (b *Builder) WithSessionProvider(sp SessionProvider) *Builder {
	b.sessions = sp
	return b
}

// WithLoginRedirector sets the collaborator that answers unauthenticated requests.
func (b *Builder) WithLoginRedirector(lr LoginRedirector) *Builder {
	b.redirector = lr
	return b
}

// WithErrorPager sets the collaborator that renders forbidden and bad request pages.
func (b *Builder) WithErrorPager(ep ErrorPager) *Builder {
	b.errorPages = ep
	return b
}

// WithUserProvider sets the user database adapter.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.users = up
	return b
}

// WithAuditSink sets where account events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the dispatch latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the console.
func (b *Builder) Build() (*Console, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.pages == nil {
		return nil, errors.New("page builder factory required")
	}
	if b.redirector == nil {
		return nil, errors.New("login redirector required")
	}
	if b.errorPages == nil {
		return nil, errors.New("error pager required")
	}
	if b.users == nil {
		return nil, errors.New("user provider required")
	}

	perms := b.permissions
	if len(perms) == 0 {
		perms = DefaultPermissions()
	}
	roleDefs := b.roles
	if len(roleDefs) == 0 {
		roleDefs = DefaultRoles()
	}

	// -------- PERMISSION REGISTRY --------
	registry := permission.NewRegistry(cfg.Permission.RootBitReserved)
	for _, p := range perms {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	if _, ok := registry.Lookup(cfg.Console.RequiredPermission); !ok {
		return nil, errors.New("Console RequiredPermission is not a registered permission")
	}

	// -------- ROLES --------
	roles := permission.NewRoles(registry)
	for roleName, permList := range roleDefs {
		if err := roles.Define(roleName, permList); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	// -------- SESSION STORE --------
	var jitter time.Duration
	if cfg.Session.JitterEnabled {
		jitter = cfg.Session.JitterRange
	}
	store := session.NewStore(b.redis, session.Options{
		Prefix:      cfg.Session.RedisPrefix,
		Sliding:     cfg.Session.SlidingExpiration,
		IdleTimeout: cfg.Session.IdleTimeout,
		MaxLifetime: cfg.Session.MaxLifetime,
		Jitter:      jitter,
	})

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	console := &Console{
		config:       cloneConfig(cfg),
		logger:       logger.With().Str("component", "account-console").Logger(),
		pages:        b.pages,
		redirector:   b.redirector,
		errorPages:   b.errorPages,
		users:        b.users,
		roles:        roles,
		sessionStore: store,
	}

	console.sessions = b.sessions
	if console.sessions == nil {
		console.sessions = NewRedisSessionProvider(store)
	}

	console.passwordLimiter = limiters.NewAttempts(b.redis, limiters.KindPassword, limiters.Config{
		MaxAttempts: cfg.Limits.PasswordMaxAttempts,
		Cooldown:    cfg.Limits.PasswordCooldown,
	})
	console.totpLimiter = limiters.NewAttempts(b.redis, limiters.KindTOTP, limiters.Config{
		MaxAttempts: cfg.Limits.TOTPMaxAttempts,
		Cooldown:    cfg.Limits.TOTPCooldown,
	})
	console.metrics = NewMetrics(cfg.Metrics)
	totp, err := newAuthenticator(cfg.TOTP)
	if err != nil {
		return nil, err
	}
	console.totp = totp

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MinLength:        cfg.Password.MinLength,
		MaxPasswordBytes: cfg.Password.MaxBytes,
	})
	if err != nil {
		return nil, err
	}
	console.passwordHash = ph

	jm, err := jwt.NewManager(jwt.Config{
		TokenTTL:      cfg.JWT.TokenTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
	})
	if err != nil {
		return nil, err
	}
	console.tokens = jm

	// Started last: the dispatcher owns a goroutine.
	if cfg.Audit.Enabled {
		console.audit = internalaudit.New(internalaudit.Options{
			Buffer: cfg.Audit.BufferSize,
			Block:  !cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	b.built = true
	return console, nil
}
