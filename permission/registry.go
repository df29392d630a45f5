package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MaxBits is the width of [Grants].
const MaxBits = 64

var (
	ErrFrozen      = errors.New("permission: registry frozen")
	ErrEmptyName   = errors.New("permission: empty name")
	ErrDuplicate   = errors.New("permission: already registered")
	ErrBitsExhaust = errors.New("permission: no free bits")
	ErrUnknown     = errors.New("permission: not registered")
)

// Registry assigns bit positions to permission names in registration
// order. With a reserved root bit, the highest bit stands for every
// permission at once.
type Registry struct {
	mu     sync.RWMutex
	bits   map[string]int
	names  []string
	root   int
	frozen bool
}

// NewRegistry returns an empty registry. reserveRoot keeps bit 63 for the
// root permission.
func NewRegistry(reserveRoot bool) *Registry {
	r := &Registry{bits: make(map[string]int), root: -1}
	if reserveRoot {
		r.root = MaxBits - 1
	}
	return r
}

// Register assigns the next free bit to name.
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.frozen:
		return -1, ErrFrozen
	case name == "":
		return -1, ErrEmptyName
	}
	if _, ok := r.bits[name]; ok {
		return -1, fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	limit := MaxBits
	if r.root >= 0 {
		limit = r.root
	}
	next := len(r.names)
	if next >= limit {
		return -1, fmt.Errorf("%w: %s", ErrBitsExhaust, name)
	}

	r.bits[name] = next
	r.names = append(r.names, name)
	return next, nil
}

// Lookup returns the bit assigned to name.
func (r *Registry) Lookup(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.bits[name]
	return bit, ok
}

// Names lists registered permissions, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := append([]string(nil), r.names...)
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// RootBit returns the reserved root bit, if any.
func (r *Registry) RootBit() (int, bool) {
	return r.root, r.root >= 0
}

// Satisfies reports whether g holds the named permission, directly or
// through the root bit.
func (r *Registry) Satisfies(g Grants, name string) bool {
	if r.root >= 0 && g.Has(r.root) {
		return true
	}
	bit, ok := r.Lookup(name)
	return ok && g.Has(bit)
}

// Freeze stops further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Len is the number of registered permissions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
