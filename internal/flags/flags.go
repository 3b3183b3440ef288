// Package flags provides append-only registries of named boolean conditions
// mapped to reserved bit positions in a 64-bit mask. Masks are stored
// alongside data points (e.g. "infilled", "out of range") and combined with
// bitwise OR, so a bit position must keep its meaning for as long as any
// stored mask references it: bits are allocated monotonically and never
// renumbered or reused, even after a flag name is deprecated. Deprecation is
// a naming convention (suffix the name), not a bit reclaim.
//
// A Registry is an explicitly passed value, never process-global state, so
// several independent flagging systems can coexist; a Mask is only meaningful
// to the Registry that produced it.
package flags

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrNameCollision reports an attempt to register a name twice. This
	// covers re-registering a deprecated name: the convention is to register
	// a suffixed replacement instead.
	ErrNameCollision = errors.New("flag name already registered")

	// ErrUnknownFlag reports a reference to a name the registry has never
	// seen.
	ErrUnknownFlag = errors.New("unknown flag")

	// ErrInvalidBit reports a configured flag value that is not a single
	// power-of-two bit.
	ErrInvalidBit = errors.New("flag value is not a single bit")

	// ErrRegistryFull reports exhaustion of the 64 available bit positions.
	ErrRegistryFull = errors.New("no bit positions left")
)

// Mask is a combination of flag bits for one data point.
type Mask uint64

// Registry maps flag names to bit positions. Registration happens during
// configuration; afterwards the registry must be treated as read-only (it is
// then safe for concurrent use).
type Registry struct {
	name   string
	byName map[string]Mask
	order  []string
	used   Mask // union of all allocated bits, including retired ones
}

// NewRegistry returns an empty registry. The name identifies the flag system
// in logs and errors.
func NewRegistry(name string) *Registry {
	return &Registry{name: name, byName: map[string]Mask{}}
}

// Name returns the flag system name.
func (r *Registry) Name() string { return r.name }

// Register allocates the next unused bit for the given name and returns it.
// Bits are assigned as 1 << (highest allocated bit + 1), so a retired bit is
// never handed back out.
func (r *Registry) Register(name string) (Mask, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty name", ErrUnknownFlag)
	}
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("%w: %q in system %q", ErrNameCollision, name, r.name)
	}
	var bit Mask = 1
	if r.used != 0 {
		shift := bits.Len64(uint64(r.used))
		if shift >= 64 {
			return 0, fmt.Errorf("%w: system %q", ErrRegistryFull, r.name)
		}
		bit = 1 << shift
	}
	r.byName[name] = bit
	r.order = append(r.order, name)
	r.used |= bit
	return bit, nil
}

// registerAt binds a name to a fixed bit. Used when loading a flag system
// from a definition file whose bit values are part of the stored-data
// contract.
func (r *Registry) registerAt(name string, bit Mask) error {
	if bit == 0 || bit&(bit-1) != 0 {
		return fmt.Errorf("%w: %q = %d", ErrInvalidBit, name, bit)
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %q in system %q", ErrNameCollision, name, r.name)
	}
	if r.used&bit != 0 {
		return fmt.Errorf("%w: bit %d already bound in system %q", ErrNameCollision, bit, r.name)
	}
	r.byName[name] = bit
	r.order = append(r.order, name)
	r.used |= bit
	return nil
}

// Bit returns the bit for a registered name.
func (r *Registry) Bit(name string) (Mask, error) {
	bit, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q in system %q", ErrUnknownFlag, name, r.name)
	}
	return bit, nil
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Combine sets the named flag on the mask.
func (r *Registry) Combine(m Mask, name string) (Mask, error) {
	bit, err := r.Bit(name)
	if err != nil {
		return m, err
	}
	return m | bit, nil
}

// Clear removes the named flag from the mask.
func (r *Registry) Clear(m Mask, name string) (Mask, error) {
	bit, err := r.Bit(name)
	if err != nil {
		return m, err
	}
	return m &^ bit, nil
}

// IsSet reports whether the named flag is set on the mask.
func (r *Registry) IsSet(m Mask, name string) (bool, error) {
	bit, err := r.Bit(name)
	if err != nil {
		return false, err
	}
	return m&bit != 0, nil
}

// Decode returns the names of all currently registered flags set on the
// mask, in registration order. Bits with no surviving name (possible when a
// mask produced by a newer registry is decoded by an older one) are ignored.
func (r *Registry) Decode(m Mask) []string {
	var names []string
	for _, name := range r.order {
		if m&r.byName[name] != 0 {
			names = append(names, name)
		}
	}
	return names
}
