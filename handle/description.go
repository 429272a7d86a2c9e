package handle

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// Canonical interface names that imply physical movement. Command interfaces
// with one of these names require the owning component to be active before
// they may be claimed.
const (
	Position     = "position"
	Velocity     = "velocity"
	Acceleration = "acceleration"
	Effort       = "effort"
)

// Separator joins an interface prefix and interface name into a key.
const Separator = "/"

// IsMovementInterface reports whether an interface name commands motion.
func IsMovementInterface(name string) bool {
	switch name {
	case Position, Velocity, Acceleration, Effort:
		return true
	}
	return false
}

// Key builds the canonical "<prefix>/<interface_name>" key.
func Key(prefix, interfaceName string) string {
	return prefix + Separator + interfaceName
}

// SplitKey splits a canonical key into prefix and interface name. Both parts
// must be non-empty. The prefix itself may contain separators; the interface
// name is everything after the last one.
func SplitKey(key string) (prefix, interfaceName string, err error) {
	idx := strings.LastIndex(key, Separator)
	if idx <= 0 || idx == len(key)-1 {
		return "", "", errors.Errorf("malformed interface key %q", key)
	}
	return key[:idx], key[idx+1:], nil
}

// Description describes one interface of a hardware component before any
// handle exists for it. Immutable once built.
type Description struct {
	// Prefix is the joint, sensor, or gpio name the interface belongs to.
	Prefix string
	// InterfaceName is e.g. "position" or "voltage".
	InterfaceName string
	// DataType tags the scalar type; empty means "double".
	DataType string
	// InitialValue is the declared initial value, kept in its textual form
	// from the hardware description. Empty means unspecified.
	InitialValue string
	// Parameters carries free-form per-interface settings.
	Parameters map[string]string
}

// Name returns the canonical key of the described interface.
func (d Description) Name() string {
	return Key(d.Prefix, d.InterfaceName)
}

// Movement reports whether the described interface commands motion.
func (d Description) Movement() bool {
	return IsMovementInterface(d.InterfaceName)
}

// ParseInitialValue returns the declared initial value, or fallback when the
// description does not declare one.
func (d Description) ParseInitialValue(fallback float64) (float64, error) {
	if d.InitialValue == "" {
		return fallback, nil
	}
	v, err := cast.ToFloat64E(d.InitialValue)
	if err != nil {
		return math.NaN(), errors.Wrapf(err, "interface %s: bad initial_value %q", d.Name(), d.InitialValue)
	}
	return v, nil
}

// Validate checks that the description can form a legal key.
func (d Description) Validate() error {
	if d.Prefix == "" {
		return errors.New("interface description missing prefix")
	}
	if d.InterfaceName == "" {
		return errors.Errorf("interface description for %q missing interface name", d.Prefix)
	}
	return nil
}
