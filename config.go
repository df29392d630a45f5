package goAccount

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the full console configuration. Build clones it, so changes
// made after Build have no effect.
type Config struct {
	Console        ConsoleConfig
	Features       Features
	JWT            JWTConfig
	Session        SessionConfig
	TOTP           TOTPConfig
	Password       PasswordConfig
	Limits         LimitsConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
	Permission     PermissionConfig
	ValidationMode ValidationMode
}

/*
====================================
CONSOLE CONFIG
====================================
*/

// ConsoleConfig identifies the console itself.
//
// ClientID is the client the console is registered as; it is recorded on
// events raised without a client in the auth context. RequiredPermission
// must be held by a principal for any authenticated page to render.
type ConsoleConfig struct {
	ClientID           string
	RequiredPermission string
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures identity token issuance and verification.
type JWTConfig struct {
	TokenTTL      time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the Redis session store.
//
// With SlidingExpiration each strict authentication pushes the idle
// deadline forward, never past MaxLifetime from creation. JitterRange
// spreads key expiry by up to plus or minus the range.
type SessionConfig struct {
	RedisPrefix       string
	SlidingExpiration bool
	IdleTimeout       time.Duration
	MaxLifetime       time.Duration
	JitterEnabled     bool
	JitterRange       time.Duration
}

// TOTPConfig shapes enrolled authenticators. Period is in seconds and Skew
// counts whole periods accepted on either side of now.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// PasswordConfig holds the argon2id cost parameters and the length policy.
// MaxBytes of zero means the hasher's default.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxBytes    int
}

// LimitsConfig bounds failed verification attempts on the update forms.
type LimitsConfig struct {
	PasswordMaxAttempts int
	PasswordCooldown    time.Duration
	TOTPMaxAttempts     int
	TOTPCooldown        time.Duration
}

// AuditConfig controls the event dispatcher. With DropIfFull unset a full
// buffer makes emitters wait for room until their request ends.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

type PermissionConfig struct {
	RootBitReserved bool // if true, highest bit is root/super admin
}

// ValidationMode selects how identity tokens are checked by [Console.Authenticate].
type ValidationMode int

const (
	// ModeInherit uses the mode from [Config.ValidationMode].
	ModeInherit ValidationMode = -1

	// ModeJWTOnly trusts a valid signature and expiry without a session lookup.
	ModeJWTOnly ValidationMode = 1
	// ModeStrict additionally requires the token's session to exist in the session store.
	ModeStrict ValidationMode = 2
)

func (m ValidationMode) String() string {
	switch m {
	case ModeInherit:
		return "inherit"
	case ModeJWTOnly:
		return "jwt_only"
	case ModeStrict:
		return "strict"
	}
	return fmt.Sprintf("ValidationMode(%d)", int(m))
}

// RouteMode is the per-route override mode for Console.Authenticate.
type RouteMode = ValidationMode

const (
	// DefaultClientID is the client the console registers as by default.
	DefaultClientID = "account-console"
	// PermissionManageAccount gates every authenticated console page.
	PermissionManageAccount      = "manage-account"
	PermissionViewProfile        = "view-profile"
	PermissionManageAccountLinks = "manage-account-links"
)

// DefaultPermissions are the account permissions registered when the builder
// is not given any.
func DefaultPermissions() []string {
	return []string{PermissionViewProfile, PermissionManageAccount, PermissionManageAccountLinks}
}

// DefaultRoles maps the standard account roles to their permissions. The
// manage-account role is composite and carries manage-account-links.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		PermissionViewProfile:        {PermissionViewProfile},
		PermissionManageAccount:      {PermissionManageAccount, PermissionManageAccountLinks},
		PermissionManageAccountLinks: {PermissionManageAccountLinks},
	}
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline console configuration. Callers still
// need to supply JWT keys before Build.
func DefaultConfig() Config {
	return Config{
		Console: ConsoleConfig{
			ClientID:           DefaultClientID,
			RequiredPermission: PermissionManageAccount,
		},
		Features: Features{
			Events:         true,
			PasswordUpdate: true,
			TOTP:           true,
		},
		JWT: JWTConfig{
			TokenTTL:      5 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			RedisPrefix:       "acs",
			SlidingExpiration: true,
			IdleTimeout:       30 * time.Minute,
			MaxLifetime:       10 * time.Hour,
		},
		TOTP: TOTPConfig{
			Issuer:    "goAccount",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   10,
			MaxBytes:    1024,
		},
		Limits: LimitsConfig{
			PasswordMaxAttempts: 5,
			PasswordCooldown:    15 * time.Minute,
			TOTPMaxAttempts:     5,
			TOTPCooldown:        time.Minute,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		ValidationMode: ModeStrict,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}

/*
====================================
VALIDATION
====================================
*/

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s %s", ErrInvalidConfig, field, fmt.Sprintf(format, args...))
}

// Validate reports the first setting Build would refuse. Every error wraps
// [ErrInvalidConfig] and names the offending field.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateConsole,
		c.validateJWT,
		c.validateSession,
		c.validateTOTP,
		c.validatePassword,
		c.validateRuntime,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateConsole() error {
	if strings.TrimSpace(c.Console.ClientID) == "" {
		return invalid("Console.ClientID", "must be set")
	}
	if strings.TrimSpace(c.Console.RequiredPermission) == "" {
		return invalid("Console.RequiredPermission", "must be set")
	}
	switch c.ValidationMode {
	case ModeJWTOnly, ModeStrict:
		return nil
	}
	return invalid("ValidationMode", "must be jwt_only or strict, got %s", c.ValidationMode)
}

func (c *Config) validateJWT() error {
	j := c.JWT
	switch {
	case j.TokenTTL <= 0:
		return invalid("JWT.TokenTTL", "must be > 0")
	case j.Leeway < 0 || j.Leeway > 2*time.Minute:
		return invalid("JWT.Leeway", "must be between 0 and 2m")
	}
	switch j.SigningMethod {
	case "ed25519":
		if len(j.PublicKey) == 0 {
			return invalid("JWT.PublicKey", "is required for ed25519")
		}
	case "hs256":
		if len(j.PrivateKey) == 0 {
			return invalid("JWT.PrivateKey", "is required for hs256")
		}
	default:
		return invalid("JWT.SigningMethod", "%q is not supported", j.SigningMethod)
	}
	return nil
}

func (c *Config) validateSession() error {
	s := c.Session
	switch {
	case strings.TrimSpace(s.RedisPrefix) == "":
		return invalid("Session.RedisPrefix", "must be set")
	case s.IdleTimeout <= 0:
		return invalid("Session.IdleTimeout", "must be > 0")
	case s.MaxLifetime <= 0:
		return invalid("Session.MaxLifetime", "must be > 0")
	case s.IdleTimeout > s.MaxLifetime:
		return invalid("Session.IdleTimeout", "must not exceed MaxLifetime")
	case s.JitterRange < 0 || s.JitterRange > time.Duration((math.MaxInt64-1)/2):
		return invalid("Session.JitterRange", "out of range")
	case s.JitterEnabled && s.JitterRange == 0:
		return invalid("Session.JitterRange", "must be > 0 when JitterEnabled is set")
	}
	return nil
}

func (c *Config) validateTOTP() error {
	t := c.TOTP
	switch {
	case t.Digits != 6 && t.Digits != 8:
		return invalid("TOTP.Digits", "must be 6 or 8")
	case t.Period <= 0:
		return invalid("TOTP.Period", "must be > 0")
	case t.Skew < 0 || t.Skew > 3:
		return invalid("TOTP.Skew", "must be between 0 and 3")
	case c.Features.TOTP && strings.TrimSpace(t.Issuer) == "":
		return invalid("TOTP.Issuer", "must be set when the TOTP feature is enabled")
	}
	if _, err := lookupOTPHash(t.Algorithm); err != nil || t.Algorithm == "" {
		return invalid("TOTP.Algorithm", "must be SHA1, SHA256 or SHA512")
	}
	return nil
}

func (c *Config) validatePassword() error {
	p := c.Password
	switch {
	case p.Memory < 8*1024:
		return invalid("Password.Memory", "must be >= 8192 KB")
	case p.Time < 1:
		return invalid("Password.Time", "must be >= 1")
	case p.Parallelism < 1:
		return invalid("Password.Parallelism", "must be >= 1")
	case p.SaltLength < 16:
		return invalid("Password.SaltLength", "must be >= 16")
	case p.KeyLength < 16:
		return invalid("Password.KeyLength", "must be >= 16")
	case p.MinLength < 8:
		return invalid("Password.MinLength", "must be >= 8")
	case p.MaxBytes < 0 || (p.MaxBytes > 0 && p.MaxBytes < p.MinLength):
		return invalid("Password.MaxBytes", "must be 0 or at least MinLength")
	}
	return nil
}

// validateRuntime covers limits, audit and metrics.
func (c *Config) validateRuntime() error {
	switch {
	case c.Limits.PasswordMaxAttempts <= 0 || c.Limits.TOTPMaxAttempts <= 0:
		return invalid("Limits.MaxAttempts", "must be > 0")
	case c.Limits.PasswordCooldown <= 0 || c.Limits.TOTPCooldown <= 0:
		return invalid("Limits.Cooldown", "must be > 0")
	case c.Audit.Enabled && c.Audit.BufferSize <= 0:
		return invalid("Audit.BufferSize", "must be > 0 when audit is enabled")
	case c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled:
		return invalid("Metrics.EnableLatencyHistograms", "requires Metrics.Enabled")
	}
	return nil
}
