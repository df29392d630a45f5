package permission

import "math/bits"

// Grants is the set of permission bits a principal holds after its token
// roles are resolved. Bit positions come from a [Registry].
type Grants uint64

// Has reports whether bit is set. Out-of-range bits are never held.
func (g Grants) Has(bit int) bool {
	if bit < 0 || bit >= MaxBits {
		return false
	}
	return g&(1<<uint(bit)) != 0
}

// With returns g plus bit.
func (g Grants) With(bit int) Grants {
	if bit < 0 || bit >= MaxBits {
		return g
	}
	return g | 1<<uint(bit)
}

// Without returns g minus bit.
func (g Grants) Without(bit int) Grants {
	if bit < 0 || bit >= MaxBits {
		return g
	}
	return g &^ (1 << uint(bit))
}

// Len is the number of bits held.
func (g Grants) Len() int {
	return bits.OnesCount64(uint64(g))
}
