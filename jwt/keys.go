package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyset holds the parsed keys for one signing method. Keys are decoded
// once at construction.
type keyset struct {
	method jwt.SigningMethod
	sign   any
	// verify maps kid to key. The empty kid is the default verify key.
	verify map[string]any
	// requireKid is set when tokens must name a key in verify.
	requireKid bool
}

func newKeyset(cfg Config) (*keyset, error) {
	ks := &keyset{verify: make(map[string]any)}
	decode := func(b []byte) (any, error) { return b, nil }

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		ks.method = jwt.SigningMethodHS256
		ks.sign = cfg.PrivateKey
		ks.verify[""] = cfg.PrivateKey
	case MethodEd25519:
		ks.method = jwt.SigningMethodEdDSA
		decode = func(b []byte) (any, error) { return parseEdPublicKey(b) }
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			ks.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			ks.verify[""] = pub
		}
		if len(cfg.PublicKey) == 0 && len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		// A rotation set replaces the default key.
		ks.verify = make(map[string]any, len(cfg.VerifyKeys))
		ks.requireKid = true
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := decode(raw)
			if err != nil {
				return nil, fmt.Errorf("verify key %q: %w", kid, err)
			}
			ks.verify[kid] = key
		}
		if cfg.KeyID != "" {
			if _, ok := ks.verify[cfg.KeyID]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	} else if cfg.KeyID != "" {
		ks.verify = map[string]any{cfg.KeyID: ks.verify[""]}
		ks.requireKid = true
	}
	return ks, nil
}

// keyFunc selects the verify key named by the token header.
func (ks *keyset) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != ks.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)
	if !ks.requireKid {
		kid = ""
	} else if kid == "" {
		return nil, ErrUnknownKey
	}
	key, ok := ks.verify[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, kid)
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
