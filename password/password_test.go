package password

import (
	"errors"
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newHasher(t *testing.T, mutate func(*Config)) *Argon2 {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newHasher(t, nil)

	encoded, err := h.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("P@ssw0rd-Ascii", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify: ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("wrong-password", encoded)
	if err != nil || ok {
		t.Fatalf("wrong password: ok=%v err=%v", ok, err)
	}
}

func TestHashSaltsEveryCall(t *testing.T) {
	h := newHasher(t, nil)
	a, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("hashes of the same password must differ")
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := newHasher(t, nil)
	encoded, err := weak.Hash("upgrade-me-please")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if up, err := weak.NeedsUpgrade(encoded); err != nil || up {
		t.Fatalf("same config: up=%v err=%v", up, err)
	}

	strong := newHasher(t, func(c *Config) { c.Time = 2 })
	if up, err := strong.NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("stronger config: up=%v err=%v", up, err)
	}

	longer := newHasher(t, func(c *Config) { c.KeyLength = 64 })
	if up, err := longer.NeedsUpgrade(encoded); err != nil || !up {
		t.Fatalf("key length change: up=%v err=%v", up, err)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newHasher(t, nil)
	good, err := h.Hash("valid-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	fields := strings.Split(good, "$")

	cases := map[string]string{
		"empty":         "",
		"garbage":       "not-a-hash",
		"bcrypt":        "$2a$10$abcdefghijklmnopqrstuv",
		"wrong version": strings.Replace(good, "v=19", "v=16", 1),
		"low memory":    strings.Replace(good, "m=8192", "m=1024", 1),
		"dup param":     strings.Replace(good, "p=1", "m=8192", 1),
		"extra param":   strings.Replace(good, "p=1", "p=1,x=2", 1),
		"short salt":    strings.Join([]string{"", fields[1], fields[2], fields[3], "c2FsdA==", fields[5]}, "$"),
		"bad key":       strings.Join([]string{"", fields[1], fields[2], fields[3], fields[4], "!!"}, "$"),
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.Verify("valid-password", encoded); !errors.Is(err, ErrMalformedHash) {
				t.Fatalf("expected ErrMalformedHash, got %v", err)
			}
		})
	}
}

func TestLengthPolicy(t *testing.T) {
	h := newHasher(t, func(c *Config) {
		c.MinLength = 12
		c.MaxPasswordBytes = 64
	})

	_, err := h.Hash("elevenchars")
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	var le *LengthError
	if !errors.As(err, &le) || le.Limit != 12 {
		t.Fatalf("expected limit 12, got %v", err)
	}

	if _, err := h.Hash("twelve-chars"); err != nil {
		t.Fatalf("password at min length must hash: %v", err)
	}

	exact := strings.Repeat("b", 64)
	encoded, err := h.Hash(exact)
	if err != nil {
		t.Fatalf("password at max length must hash: %v", err)
	}

	_, err = h.Hash(exact + "b")
	if !errors.As(err, &le) || !errors.Is(err, ErrTooLong) || le.Limit != 64 {
		t.Fatalf("expected ErrTooLong with limit 64, got %v", err)
	}

	if _, err := h.Verify(exact+"c", encoded); !errors.Is(err, ErrTooLong) {
		t.Fatalf("Verify must reject over-long input, got %v", err)
	}
}

func TestPolicyDefaults(t *testing.T) {
	h := newHasher(t, nil)
	p := h.Policy()
	if p.MinLength != MinLengthFloor || p.MaxBytes != DefaultMaxPasswordBytes {
		t.Fatalf("unexpected defaults %+v", p)
	}
	if _, err := h.Hash(""); !errors.Is(err, ErrTooShort) {
		t.Fatalf("empty password: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"memory":      func(c *Config) { c.Memory = 1024 },
		"time":        func(c *Config) { c.Time = 0 },
		"parallelism": func(c *Config) { c.Parallelism = 0 },
		"salt":        func(c *Config) { c.SaltLength = 8 },
		"key":         func(c *Config) { c.KeyLength = 8 },
		"min length":  func(c *Config) { c.MinLength = 4 },
		"max below":   func(c *Config) { c.MinLength = 16; c.MaxPasswordBytes = 10 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			if _, err := NewArgon2(cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}
