package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/MrEthical07/goAccount/internal/logging"
	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Listen            string `yaml:"listen"`
	PublicURL         string `yaml:"public_url"`
	LoginURL          string `yaml:"login_url"`
	TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`

	Log       logging.Config  `yaml:"log"`
	Redis     redisConfig     `yaml:"redis"`
	State     stateConfig     `yaml:"state"`
	RateLimit rateLimitConfig `yaml:"rate_limit"`
	JWT       jwtConfig       `yaml:"jwt"`
	Session   sessionConfig   `yaml:"session"`
	Features  featuresConfig  `yaml:"features"`
	TOTP      totpConfig      `yaml:"totp"`
	Password  passwordConfig  `yaml:"password"`
	Audit     auditConfig     `yaml:"audit"`
	Metrics   metricsConfig   `yaml:"metrics"`
	Users     []userConfig    `yaml:"users"`
}

type redisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// UserPrefix namespaces the demo user records.
	UserPrefix string `yaml:"user_prefix"`
}

type stateConfig struct {
	Cookie        string        `yaml:"cookie"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

type rateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	CacheSize         int     `yaml:"cache_size"`
}

type jwtConfig struct {
	SigningMethod  string        `yaml:"signing_method"`
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	TTL            time.Duration `yaml:"ttl"`
	Leeway         time.Duration `yaml:"leeway"`
	KeyID          string        `yaml:"key_id"`
	IdentityCookie string        `yaml:"identity_cookie"`
	// ValidationMode is "strict" or "jwt_only".
	ValidationMode string `yaml:"validation_mode"`
}

type sessionConfig struct {
	Prefix      string        `yaml:"prefix"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	Sliding     bool          `yaml:"sliding"`
}

type featuresConfig struct {
	IdentityFederation bool `yaml:"identity_federation"`
	Events             bool `yaml:"events"`
	PasswordUpdate     bool `yaml:"password_update"`
	TOTP               bool `yaml:"totp"`
}

type totpConfig struct {
	Issuer string `yaml:"issuer"`
}

type passwordConfig struct {
	MinLength   int    `yaml:"min_length"`
	MemoryKB    uint32 `yaml:"memory_kb"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
}

type auditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Sink is "log" or "file".
	Sink string              `yaml:"sink"`
	File *logging.FileConfig `yaml:"file"`
}

type metricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Histograms bool   `yaml:"histograms"`
	Path       string `yaml:"path"`
}

type userConfig struct {
	Realm    string   `yaml:"realm"`
	ID       string   `yaml:"id"`
	Username string   `yaml:"username"`
	Email    string   `yaml:"email"`
	Password string   `yaml:"password"`
	Roles    []string `yaml:"roles"`
}

func defaultFileConfig() fileConfig {
	d := goAccount.DefaultConfig()
	return fileConfig{
		Listen:   ":8080",
		LoginURL: "/realms/{realm}/protocol/openid-connect/auth",
		Log: logging.Config{
			Level:  "info",
			Format: logging.FormatConsole,
		},
		Redis: redisConfig{Addr: "localhost:6379", UserPrefix: "acu"},
		State: stateConfig{TTL: 12 * time.Hour},
		RateLimit: rateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			CacheSize:         4096,
		},
		JWT: jwtConfig{
			SigningMethod:  d.JWT.SigningMethod,
			TTL:            d.JWT.TokenTTL,
			Leeway:         d.JWT.Leeway,
			ValidationMode: "strict",
		},
		Session: sessionConfig{
			Prefix:      d.Session.RedisPrefix,
			IdleTimeout: d.Session.IdleTimeout,
			MaxLifetime: d.Session.MaxLifetime,
			Sliding:     d.Session.SlidingExpiration,
		},
		Features: featuresConfig{
			IdentityFederation: d.Features.IdentityFederation,
			Events:             d.Features.Events,
			PasswordUpdate:     d.Features.PasswordUpdate,
			TOTP:               d.Features.TOTP,
		},
		TOTP: totpConfig{Issuer: d.TOTP.Issuer},
		Password: passwordConfig{
			MinLength:   d.Password.MinLength,
			MemoryKB:    d.Password.Memory,
			Time:        d.Password.Time,
			Parallelism: d.Password.Parallelism,
		},
		Audit:   auditConfig{Sink: "log"},
		Metrics: metricsConfig{Enabled: true, Path: "/metrics"},
	}
}

func loadConfig(path string) (*fileConfig, error) {
	if path == "" {
		return nil, errors.New("config file path is required. Use -c or --config flag")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*fileConfig, error) {
	cfg := defaultFileConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(cfg.State.Key) < 32 {
		return nil, errors.New("state.key must be at least 32 characters")
	}
	if cfg.Audit.Sink != "log" && cfg.Audit.Sink != "file" {
		return nil, fmt.Errorf("audit.sink %q: want log or file", cfg.Audit.Sink)
	}
	if cfg.Audit.Enabled && cfg.Audit.Sink == "file" && (cfg.Audit.File == nil || cfg.Audit.File.Filename == "") {
		return nil, errors.New("audit.file.filename is required for the file sink")
	}
	seen := map[string]bool{}
	for i, u := range cfg.Users {
		if u.Realm == "" || u.ID == "" {
			return nil, fmt.Errorf("users[%d]: realm and id are required", i)
		}
		key := u.Realm + "/" + u.ID
		if seen[key] {
			return nil, fmt.Errorf("users[%d]: duplicate user %s", i, key)
		}
		seen[key] = true
	}
	return &cfg, nil
}

func (c *fileConfig) validationMode() (goAccount.ValidationMode, error) {
	switch strings.ToLower(c.JWT.ValidationMode) {
	case "", "strict":
		return goAccount.ModeStrict, nil
	case "jwt_only", "jwt-only":
		return goAccount.ModeJWTOnly, nil
	default:
		return 0, fmt.Errorf("jwt.validation_mode %q: want strict or jwt_only", c.JWT.ValidationMode)
	}
}

// consoleConfig maps the file onto the library configuration.
func (c *fileConfig) consoleConfig() (goAccount.Config, error) {
	cfg := goAccount.DefaultConfig()

	mode, err := c.validationMode()
	if err != nil {
		return cfg, err
	}
	cfg.ValidationMode = mode

	cfg.JWT.SigningMethod = strings.ToLower(c.JWT.SigningMethod)
	cfg.JWT.TokenTTL = c.JWT.TTL
	cfg.JWT.Leeway = c.JWT.Leeway
	cfg.JWT.Issuer = c.JWT.Issuer
	cfg.JWT.Audience = c.JWT.Audience
	cfg.JWT.KeyID = c.JWT.KeyID

	switch cfg.JWT.SigningMethod {
	case "hs256":
		if c.JWT.Secret == "" {
			return cfg, errors.New("jwt.secret is required for hs256")
		}
		cfg.JWT.PrivateKey = []byte(c.JWT.Secret)
	default:
		if c.JWT.PrivateKeyFile != "" {
			if cfg.JWT.PrivateKey, err = os.ReadFile(c.JWT.PrivateKeyFile); err != nil {
				return cfg, fmt.Errorf("jwt.private_key_file: %w", err)
			}
		}
		if c.JWT.PublicKeyFile != "" {
			if cfg.JWT.PublicKey, err = os.ReadFile(c.JWT.PublicKeyFile); err != nil {
				return cfg, fmt.Errorf("jwt.public_key_file: %w", err)
			}
		}
	}

	cfg.Session.RedisPrefix = c.Session.Prefix
	cfg.Session.IdleTimeout = c.Session.IdleTimeout
	cfg.Session.MaxLifetime = c.Session.MaxLifetime
	cfg.Session.SlidingExpiration = c.Session.Sliding

	cfg.Features = goAccount.Features{
		IdentityFederation: c.Features.IdentityFederation,
		Events:             c.Features.Events,
		PasswordUpdate:     c.Features.PasswordUpdate,
		TOTP:               c.Features.TOTP,
	}

	cfg.TOTP.Issuer = c.TOTP.Issuer
	cfg.Password.MinLength = c.Password.MinLength
	cfg.Password.Memory = c.Password.MemoryKB
	cfg.Password.Time = c.Password.Time
	cfg.Password.Parallelism = c.Password.Parallelism

	cfg.Audit.Enabled = c.Audit.Enabled
	cfg.Metrics.Enabled = c.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = c.Metrics.Histograms

	return cfg, cfg.Validate()
}

func (c *fileConfig) findUser(realm, id string) (userConfig, bool) {
	for _, u := range c.Users {
		if u.Realm == realm && u.ID == id {
			return u, true
		}
	}
	return userConfig{}, false
}
