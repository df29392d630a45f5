package goAccount

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

var (
	errEmptyTOTPSecret     = errors.New("totp: empty secret")
	errUnsupportedTOTPHash = errors.New("totp: unsupported algorithm")

	totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// otpHash pairs the otpauth algorithm label with its hash constructor.
type otpHash struct {
	label string
	new   func() hash.Hash
}

func lookupOTPHash(name string) (otpHash, error) {
	switch strings.ToUpper(name) {
	case "", "SHA1":
		return otpHash{label: "SHA1", new: sha1.New}, nil
	case "SHA256":
		return otpHash{label: "SHA256", new: sha256.New}, nil
	case "SHA512":
		return otpHash{label: "SHA512", new: sha512.New}, nil
	}
	return otpHash{}, fmt.Errorf("%w: %q", errUnsupportedTOTPHash, name)
}

// authenticator issues enrollment secrets and checks RFC 6238 codes.
type authenticator struct {
	issuer  string
	digits  int
	period  int64
	skew    int64
	hash    otpHash
	modulus uint32
}

// enrollment is what the TOTP page shows a user who has no authenticator
// yet.
type enrollment struct {
	Secret  []byte
	Encoded string
	URI     string
}

func newAuthenticator(cfg TOTPConfig) (*authenticator, error) {
	h, err := lookupOTPHash(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	a := &authenticator{
		issuer: cfg.Issuer,
		digits: cfg.Digits,
		period: int64(cfg.Period),
		skew:   int64(cfg.Skew),
		hash:   h,
	}
	if a.digits <= 0 {
		a.digits = 6
	}
	if a.period <= 0 {
		a.period = 30
	}
	if a.skew < 0 {
		a.skew = 0
	}
	a.modulus = 1
	for range a.digits {
		a.modulus *= 10
	}
	return a, nil
}

// Enroll draws a fresh secret for account.
func (a *authenticator) Enroll(account string) (enrollment, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return enrollment{}, err
	}
	encoded := totpEncoding.EncodeToString(raw)
	return enrollment{Secret: raw, Encoded: encoded, URI: a.uri(encoded, account)}, nil
}

// uri renders the otpauth:// link encoded into the enrollment QR code.
func (a *authenticator) uri(encoded, account string) string {
	q := url.Values{
		"secret":    {encoded},
		"issuer":    {a.issuer},
		"algorithm": {a.hash.label},
		"digits":    {strconv.Itoa(a.digits)},
		"period":    {strconv.FormatInt(a.period, 10)},
	}
	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + a.issuer + ":" + account,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// Verify reports whether code is valid for secret at now, scanning skew
// steps either side. The matching counter is returned so callers can
// refuse replays. Codes of the wrong shape never match.
func (a *authenticator) Verify(secret []byte, code string, now time.Time) (int64, bool, error) {
	if len(secret) == 0 {
		return 0, false, errEmptyTOTPSecret
	}
	code = strings.TrimSpace(code)
	if len(code) != a.digits || strings.IndexFunc(code, notDigit) >= 0 {
		return 0, false, nil
	}

	current := now.Unix() / a.period
	for counter := current - a.skew; counter <= current+a.skew; counter++ {
		if counter < 0 {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(a.code(secret, counter)), []byte(code)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

// code computes the HOTP value for counter (RFC 4226 section 5.3).
func (a *authenticator) code(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(a.hash.new, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	off := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", a.digits, truncated%a.modulus)
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

// decodeTOTPSecret parses the secret echoed back by the enrollment form.
// Case, padding and the spaces from the grouped display form are ignored.
func decodeTOTPSecret(encoded string) ([]byte, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '=' {
			return -1
		}
		return r
	}, strings.ToUpper(strings.TrimSpace(encoded)))
	if cleaned == "" {
		return nil, errEmptyTOTPSecret
	}
	return totpEncoding.DecodeString(cleaned)
}

// groupSecret splits a base32 secret into blocks of four for manual entry.
func groupSecret(secret string) string {
	var b strings.Builder
	for len(secret) > 4 {
		b.WriteString(secret[:4])
		b.WriteByte(' ')
		secret = secret[4:]
	}
	b.WriteString(secret)
	return b.String()
}
