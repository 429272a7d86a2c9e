package manager

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/handle"
)

// LoanedStateInterface is a shared lend of a state interface. Any number of
// concurrent lends may exist; each is independently scoped and holds the
// handle alive even if the owning component fails later.
type LoanedStateInterface struct {
	h *handle.StateInterface
}

// Name returns the canonical key of the lent interface.
func (l *LoanedStateInterface) Name() string { return l.h.Name() }

// Get returns the current value; the second return is always true, since a
// state handle starts at its declared initial value or 0.
func (l *LoanedStateInterface) Get() (float64, bool) { return l.h.Get() }

// Value returns the current value; a state never written by its driver reads
// its declared initial value or 0.
func (l *LoanedStateInterface) Value() float64 { return l.h.Value() }

// LoanedCommandInterface is the exclusive lend of a command interface.
// Releasing it re-enables claiming within the same cycle. Double release is
// harmless.
type LoanedCommandInterface struct {
	h       *handle.CommandInterface
	lendID  uuid.UUID
	release func(key string, lendID uuid.UUID)
	once    sync.Once
}

// Name returns the canonical key of the lent interface.
func (l *LoanedCommandInterface) Name() string { return l.h.Name() }

// Get returns the current value; NaN with true for never-commanded numerics.
func (l *LoanedCommandInterface) Get() (float64, bool) { return l.h.Get() }

// Value returns the current value, NaN when unset.
func (l *LoanedCommandInterface) Value() float64 { return l.h.Value() }

// Set stores a command without blocking; ErrValueBusy under contention.
func (l *LoanedCommandInterface) Set(value float64) error { return l.h.Set(value) }

// SetBlocking stores a command, waiting out any contention.
func (l *LoanedCommandInterface) SetBlocking(value float64) { l.h.SetBlocking(value) }

// Release returns the claim to the manager.
func (l *LoanedCommandInterface) Release() {
	l.once.Do(func() {
		l.release(l.h.Name(), l.lendID)
	})
}

// ClaimStateInterface lends a state interface. The interface must exist and
// its owner must be inactive or active.
func (m *Manager) ClaimStateInterface(key string) (*LoanedStateInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.stateIndex[key]
	if !ok {
		return nil, errors.Wrapf(ErrInterfaceNotFound, "state interface %q", key)
	}
	if !e.comp.State().InterfacesAvailable() {
		return nil, errors.Wrapf(ErrInterfaceUnavailable, "state interface %q (component %q is %q)",
			key, e.comp.Name(), e.comp.State())
	}
	return &LoanedStateInterface{h: e.h}, nil
}

// ClaimCommandInterface exclusively lends a command interface. The claim
// fails when the key is unknown, the interface is unavailable, or another
// claim is outstanding.
func (m *Manager) ClaimCommandInterface(key string) (*LoanedCommandInterface, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.commandIndex[key]
	if !ok {
		return nil, errors.Wrapf(ErrInterfaceNotFound, "command interface %q", key)
	}
	if !m.commandAvailableLocked(e) {
		return nil, errors.Wrapf(ErrInterfaceUnavailable, "command interface %q", key)
	}
	if e.claimed {
		return nil, errors.Wrapf(ErrInterfaceClaimed, "command interface %q", key)
	}
	e.claimed = true
	e.lendID = uuid.New()
	return &LoanedCommandInterface{
		h:       e.h,
		lendID:  e.lendID,
		release: m.releaseCommandClaim,
	}, nil
}

func (m *Manager) releaseCommandClaim(key string, lendID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.commandIndex[key]
	if !ok {
		// The interface was removed while lent (e.g. reference interfaces
		// withdrawn); nothing to return.
		return
	}
	if !e.claimed || e.lendID != lendID {
		return
	}
	e.claimed = false
	e.lendID = uuid.UUID{}
}
