package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the identity token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

const (
	maxLeeway           = 2 * time.Minute
	defaultMaxFutureIAT = 10 * time.Minute
)

var (
	// ErrMissingIdentity is returned for valid tokens lacking sub, realm or sid.
	ErrMissingIdentity = errors.New("token does not identify a session")
	// ErrUnknownKey is returned when the kid header names no verify key.
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrNoSigningKey is returned by Issue on a verify-only manager.
	ErrNoSigningKey = errors.New("no signing key configured")
)

func missing(claim string) error {
	return fmt.Errorf("%w: %s", ErrMissingIdentity, claim)
}

// Config configures token issuance and verification. Verifying ed25519
// tokens needs only PublicKey or VerifyKeys; issuing needs PrivateKey.
type Config struct {
	TokenTTL      time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	RequireIAT    bool
	MaxFutureIAT  time.Duration
	// KeyID is written to the kid header of issued tokens.
	KeyID      string
	VerifyKeys map[string][]byte
}

// Manager issues and verifies identity tokens.
type Manager struct {
	cfg    Config
	keys   *keyset
	parser *jwt.Parser
}

// NewManager validates cfg and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > maxLeeway {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = defaultMaxFutureIAT
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	keys, err := newKeyset(cfg)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{cfg: cfg, keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs claims. Expiry, issued-at, issuer and audience come from the
// config; a missing token ID is generated.
func (m *Manager) Issue(claims IdentityClaims) (string, error) {
	if m.keys.sign == nil {
		return "", ErrNoSigningKey
	}

	now := time.Now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.cfg.TokenTTL))
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.Issuer = m.cfg.Issuer
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(m.keys.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}
	return token.SignedString(m.keys.sign)
}

// Parse verifies raw and returns its claims.
func (m *Manager) Parse(raw string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := m.parser.ParseWithClaims(raw, claims, m.keys.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if iat := claims.IssuedAt; iat != nil && iat.After(time.Now().Add(m.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", jwt.ErrTokenUsedBeforeIssued)
	}
	if err := claims.identify(); err != nil {
		return nil, err
	}
	return claims, nil
}
