// Package registry maps hardware plugin names to driver constructors so the
// resource manager can build components from parsed descriptions alone.
package registry

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/hwinfo"
)

var (
	mu        sync.RWMutex
	actuators = map[string]func() component.Actuator{}
	sensors   = map[string]func() component.Sensor{}
	systems   = map[string]func() component.System{}
)

// RegisterActuator registers an actuator driver constructor under a plugin
// name. Registering the same name twice panics; it is a program wiring error.
func RegisterActuator(pluginName string, ctor func() component.Actuator) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := actuators[pluginName]; ok {
		panic("duplicate actuator driver registration: " + pluginName)
	}
	actuators[pluginName] = ctor
}

// RegisterSensor registers a sensor driver constructor under a plugin name.
func RegisterSensor(pluginName string, ctor func() component.Sensor) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := sensors[pluginName]; ok {
		panic("duplicate sensor driver registration: " + pluginName)
	}
	sensors[pluginName] = ctor
}

// RegisterSystem registers a system driver constructor under a plugin name.
func RegisterSystem(pluginName string, ctor func() component.System) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := systems[pluginName]; ok {
		panic("duplicate system driver registration: " + pluginName)
	}
	systems[pluginName] = ctor
}

// NewComponent constructs the wrapped component for a hardware description,
// looking the driver up by declared type and plugin name.
func NewComponent(info hwinfo.HardwareInfo) (*component.Component, error) {
	mu.RLock()
	defer mu.RUnlock()
	switch info.Type {
	case hwinfo.TypeActuator:
		ctor, ok := actuators[info.PluginName]
		if !ok {
			return nil, errors.Errorf("no actuator driver registered as %q for component %q", info.PluginName, info.Name)
		}
		return component.NewActuator(ctor()), nil
	case hwinfo.TypeSensor:
		ctor, ok := sensors[info.PluginName]
		if !ok {
			return nil, errors.Errorf("no sensor driver registered as %q for component %q", info.PluginName, info.Name)
		}
		return component.NewSensor(ctor()), nil
	case hwinfo.TypeSystem:
		ctor, ok := systems[info.PluginName]
		if !ok {
			return nil, errors.Errorf("no system driver registered as %q for component %q", info.PluginName, info.Name)
		}
		return component.NewSystem(ctor()), nil
	}
	return nil, errors.Errorf("component %q has unknown type %q", info.Name, info.Type)
}
