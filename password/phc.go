package password

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// ErrMalformedHash wraps every PHC decoding failure.
var ErrMalformedHash = errors.New("malformed password hash")

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h phc) String() string {
	var sb strings.Builder
	sb.WriteString("$" + algorithmID)
	sb.WriteString("$v=" + strconv.Itoa(argon2.Version))
	fmt.Fprintf(&sb, "$m=%d,t=%d,p=%d", h.memory, h.time, h.parallelism)
	sb.WriteString("$" + base64.StdEncoding.EncodeToString(h.salt))
	sb.WriteString("$" + base64.StdEncoding.EncodeToString(h.key))
	return sb.String()
}

func malformed(what string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, what)
}

func decodePHC(s string) (phc, error) {
	var h phc

	fields := strings.Split(s, "$")
	if len(fields) != 6 || fields[0] != "" {
		return h, malformed("field count")
	}
	if fields[1] != algorithmID {
		return h, malformed("algorithm " + fields[1])
	}

	v, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return h, malformed("version")
	}
	if n, err := strconv.Atoi(v); err != nil || n != argon2.Version {
		return h, malformed("version " + v)
	}

	if err := h.decodeParams(fields[3]); err != nil {
		return h, err
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(h.salt) < minSaltLength {
		return h, malformed("salt")
	}
	if h.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return h, malformed("key")
	}
	return h, nil
}

// decodeParams reads "m=..,t=..,p=..". Each key must appear exactly once.
func (h *phc) decodeParams(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || seen[k] {
			return malformed("parameters")
		}
		seen[k] = true

		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < minMemoryKB {
				return malformed("memory")
			}
			h.memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < 1 {
				return malformed("time")
			}
			h.time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < 1 {
				return malformed("parallelism")
			}
			h.parallelism = uint8(n)
		default:
			return malformed("parameter " + k)
		}
	}
	if len(seen) != 3 {
		return malformed("parameters")
	}
	return nil
}
