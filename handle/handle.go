// Package handle provides the named, lock-protected scalar slots exchanged
// between hardware drivers and controllers.
package handle

import (
	"math"
	"sync"

	"github.com/pkg/errors"
)

// ErrValueBusy is returned by Set when the slot's exclusive lock could not be
// taken without waiting. Callers on the realtime path treat it as a skipped
// update, not a failure.
var ErrValueBusy = errors.New("interface value is held by another writer")

// slot is the shared implementation behind state and command interfaces.
type slot struct {
	desc Description

	mu       sync.RWMutex
	value    float64
	hasValue bool
}

// Name returns the canonical "<prefix>/<interface_name>" key.
func (s *slot) Name() string { return s.desc.Name() }

// Prefix returns the joint/sensor/gpio name.
func (s *slot) Prefix() string { return s.desc.Prefix }

// InterfaceName returns the bare interface name.
func (s *slot) InterfaceName() string { return s.desc.InterfaceName }

// Description returns the immutable description the handle was built from.
func (s *slot) Description() Description { return s.desc }

// Get returns the current value. The second return reports whether the slot
// holds a value; handles built by NewStateInterface and NewCommandInterface
// always start with one (the declared initial value, else 0 for state and NaN
// for command handles), so for them it is always true.
func (s *slot) Get() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.hasValue
}

// Value returns the current value, or NaN when the slot holds none.
func (s *slot) Value() float64 {
	v, ok := s.Get()
	if !ok {
		return math.NaN()
	}
	return v
}

// Set replaces the value without blocking. When the exclusive lock is
// contended it returns ErrValueBusy and leaves the value unchanged.
func (s *slot) Set(value float64) error {
	if !s.mu.TryLock() {
		return ErrValueBusy
	}
	s.value = value
	s.hasValue = true
	s.mu.Unlock()
	return nil
}

// SetBlocking replaces the value, waiting for the exclusive lock. Critical
// sections on these locks are microsecond scale; drivers that prefer a
// guaranteed store over a bounded one use this.
func (s *slot) SetBlocking(value float64) {
	s.mu.Lock()
	s.value = value
	s.hasValue = true
	s.mu.Unlock()
}

// StateInterface is a driver-to-controller channel. Consumers read it;
// only the owning driver writes it.
type StateInterface struct {
	slot
}

// NewStateInterface builds a state handle. State numerics without a declared
// initial value start at 0.
func NewStateInterface(desc Description) (*StateInterface, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	initial, err := desc.ParseInitialValue(0)
	if err != nil {
		return nil, err
	}
	h := &StateInterface{}
	h.slot = slot{desc: desc, value: initial, hasValue: true}
	return h, nil
}

// CommandInterface is a controller-to-driver channel. A single claimer
// writes it; the owning driver reads it.
type CommandInterface struct {
	slot
}

// NewCommandInterface builds a command handle. Command numerics without a
// declared initial value start at NaN so a driver can tell "never commanded"
// from a real command.
func NewCommandInterface(desc Description) (*CommandInterface, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	initial, err := desc.ParseInitialValue(math.NaN())
	if err != nil {
		return nil, err
	}
	h := &CommandInterface{}
	h.slot = slot{desc: desc, value: initial, hasValue: true}
	return h, nil
}

// ResetValue returns a command handle to its declared initial value, or the
// given fallback when none was declared. Used when a component recovers from
// an error and stale commands must not survive into the next activation.
func (c *CommandInterface) ResetValue(fallback float64) {
	v, err := c.desc.ParseInitialValue(fallback)
	if err != nil {
		v = fallback
	}
	c.SetBlocking(v)
}
