// Package hwinfo holds the parsed, immutable description of hardware
// components. The framework consumes these trees; producing them (e.g. from a
// robot description file) is the caller's concern.
package hwinfo

import (
	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/tetherworks/hwcore/handle"
)

// ComponentType discriminates the three driver contracts.
type ComponentType string

// The recognized component types.
const (
	TypeActuator ComponentType = "actuator"
	TypeSensor   ComponentType = "sensor"
	TypeSystem   ComponentType = "system"
)

// InterfaceInfo describes one state or command interface of a joint, sensor,
// or gpio.
type InterfaceInfo struct {
	Name         string            `mapstructure:"name"`
	DataType     string            `mapstructure:"data_type"`
	InitialValue string            `mapstructure:"initial_value"`
	Min          string            `mapstructure:"min"`
	Max          string            `mapstructure:"max"`
	Parameters   map[string]string `mapstructure:"parameters"`
}

// Description expands the interface info into a handle description for the
// given prefix.
func (ii InterfaceInfo) Description(prefix string) handle.Description {
	return handle.Description{
		Prefix:        prefix,
		InterfaceName: ii.Name,
		DataType:      ii.DataType,
		InitialValue:  ii.InitialValue,
		Parameters:    ii.Parameters,
	}
}

// ComponentInfo describes one joint, sensor, or gpio of a hardware component.
type ComponentInfo struct {
	Name              string            `mapstructure:"name"`
	Type              string            `mapstructure:"type"`
	StateInterfaces   []InterfaceInfo   `mapstructure:"state_interfaces"`
	CommandInterfaces []InterfaceInfo   `mapstructure:"command_interfaces"`
	Parameters        map[string]string `mapstructure:"parameters"`
}

// JointLimits carries the declared per-joint command bounds. Absent limits
// leave the corresponding Has flag false.
type JointLimits struct {
	HasPositionLimits bool    `mapstructure:"has_position_limits"`
	MinPosition       float64 `mapstructure:"min_position"`
	MaxPosition       float64 `mapstructure:"max_position"`

	HasVelocityLimits bool    `mapstructure:"has_velocity_limits"`
	MaxVelocity       float64 `mapstructure:"max_velocity"`

	HasAccelerationLimits bool    `mapstructure:"has_acceleration_limits"`
	MaxAcceleration       float64 `mapstructure:"max_acceleration"`

	HasEffortLimits bool    `mapstructure:"has_effort_limits"`
	MaxEffort       float64 `mapstructure:"max_effort"`
}

// Empty reports whether no limit of any kind is declared.
func (jl JointLimits) Empty() bool {
	return !jl.HasPositionLimits && !jl.HasVelocityLimits &&
		!jl.HasAccelerationLimits && !jl.HasEffortLimits
}

// HardwareInfo is the immutable description of one hardware component.
type HardwareInfo struct {
	Name           string        `mapstructure:"name"`
	Type           ComponentType `mapstructure:"type"`
	Group          string        `mapstructure:"group"`
	PluginName     string        `mapstructure:"plugin_name"`
	IsAsync        bool          `mapstructure:"is_async"`
	ThreadPriority int           `mapstructure:"thread_priority"`

	// ReadWriteRate is the per-component cycle rate in Hz. Zero means "run at
	// the manager's update rate".
	ReadWriteRate float64 `mapstructure:"rw_rate"`

	Joints  []ComponentInfo `mapstructure:"joints"`
	Sensors []ComponentInfo `mapstructure:"sensors"`
	GPIOs   []ComponentInfo `mapstructure:"gpios"`

	// Limits maps joint name to its declared command bounds.
	Limits map[string]JointLimits `mapstructure:"limits"`

	// Parameters carries free-form settings interpreted by drivers.
	Parameters map[string]string `mapstructure:"parameters"`
}

// Validate checks the structural invariants the framework relies on:
// non-empty names, a known type, and well-formed interface declarations with
// no duplicate keys inside the component.
func (hi HardwareInfo) Validate() error {
	if hi.Name == "" {
		return errors.New("hardware component missing name")
	}
	switch hi.Type {
	case TypeActuator, TypeSensor, TypeSystem:
	default:
		return errors.Errorf("hardware component %q has unknown type %q", hi.Name, hi.Type)
	}
	if hi.PluginName == "" {
		return errors.Errorf("hardware component %q missing plugin_name", hi.Name)
	}
	if hi.ReadWriteRate < 0 {
		return errors.Errorf("hardware component %q has negative rw_rate", hi.Name)
	}
	seenState := map[string]bool{}
	seenCommand := map[string]bool{}
	for _, group := range [][]ComponentInfo{hi.Joints, hi.Sensors, hi.GPIOs} {
		for _, ci := range group {
			if ci.Name == "" {
				return errors.Errorf("hardware component %q has an unnamed joint/sensor/gpio", hi.Name)
			}
			for _, ii := range ci.StateInterfaces {
				desc := ii.Description(ci.Name)
				if err := desc.Validate(); err != nil {
					return errors.Wrapf(err, "hardware component %q", hi.Name)
				}
				if seenState[desc.Name()] {
					return errors.Errorf("hardware component %q declares state interface %q twice", hi.Name, desc.Name())
				}
				seenState[desc.Name()] = true
			}
			for _, ii := range ci.CommandInterfaces {
				desc := ii.Description(ci.Name)
				if err := desc.Validate(); err != nil {
					return errors.Wrapf(err, "hardware component %q", hi.Name)
				}
				if seenCommand[desc.Name()] {
					return errors.Errorf("hardware component %q declares command interface %q twice", hi.Name, desc.Name())
				}
				seenCommand[desc.Name()] = true
			}
		}
	}
	return nil
}

// StateDescriptions lists the declared state interfaces of all joints,
// sensors, and gpios, in declaration order.
func (hi HardwareInfo) StateDescriptions() []handle.Description {
	var out []handle.Description
	for _, group := range [][]ComponentInfo{hi.Joints, hi.Sensors, hi.GPIOs} {
		for _, ci := range group {
			for _, ii := range ci.StateInterfaces {
				out = append(out, ii.Description(ci.Name))
			}
		}
	}
	return out
}

// CommandDescriptions lists the declared command interfaces of all joints,
// sensors, and gpios, in declaration order.
func (hi HardwareInfo) CommandDescriptions() []handle.Description {
	var out []handle.Description
	for _, group := range [][]ComponentInfo{hi.Joints, hi.Sensors, hi.GPIOs} {
		for _, ci := range group {
			for _, ii := range ci.CommandInterfaces {
				out = append(out, ii.Description(ci.Name))
			}
		}
	}
	return out
}

// BoolParam reads a boolean free-form parameter. Missing keys return false.
func (hi HardwareInfo) BoolParam(key string) bool {
	raw, ok := hi.Parameters[key]
	if !ok {
		return false
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return false
	}
	return v
}

// FloatParam reads a float free-form parameter, returning fallback when the
// key is missing or malformed.
func (hi HardwareInfo) FloatParam(key string, fallback float64) float64 {
	raw, ok := hi.Parameters[key]
	if !ok {
		return fallback
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return fallback
	}
	return v
}

// StringParam reads a string free-form parameter.
func (hi HardwareInfo) StringParam(key string) string {
	return hi.Parameters[key]
}
