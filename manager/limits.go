package manager

import (
	"time"

	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/limits"
)

// ImportJointLimiters registers limiters for already-loaded components from
// additional hardware descriptions, e.g. when limits are declared separately
// from the component description that loaded the hardware.
func (m *Manager) ImportJointLimiters(infos []hwinfo.HardwareInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		c, ok := m.byName[info.Name]
		if !ok {
			return errors.Wrapf(ErrComponentNotFound, "%q", info.Name)
		}
		m.importLimitsLocked(c, info.Limits)
	}
	return nil
}

// importJointLimitersLocked wires the limits a component's own description
// declares; runs as part of registration.
func (m *Manager) importJointLimitersLocked(c *component.Component) {
	m.importLimitsLocked(c, c.Info().Limits)
}

// importLimitsLocked builds a limiter for every joint with declared limits,
// binding the joint's command and measured state handles. Joints without
// declared limits get no limiter and their commands pass through untouched.
func (m *Manager) importLimitsLocked(c *component.Component, jointLimits map[string]hwinfo.JointLimits) {
	for joint, jl := range jointLimits {
		if jl.Empty() {
			continue
		}
		limiter, err := limits.NewJointLimiter(joint, jl)
		if err != nil {
			m.logger.Errorw("skipping invalid joint limits", "component", c.Name(), "joint", joint, "error", err)
			continue
		}
		cmd := func(iface string) *handle.CommandInterface {
			if e, ok := m.commandIndex[handle.Key(joint, iface)]; ok && e.comp == c {
				return e.h
			}
			return nil
		}
		st := func(iface string) *handle.StateInterface {
			if e, ok := m.stateIndex[handle.Key(joint, iface)]; ok && e.comp == c {
				return e.h
			}
			return nil
		}
		limiter.BindCommandHandles(
			cmd(handle.Position), cmd(handle.Velocity), cmd(handle.Acceleration), cmd(handle.Effort))
		limiter.BindStateHandles(st(handle.Position), st(handle.Velocity))
		m.limiters = append(m.limiters, limiter)
		m.logger.Debugw("imported joint limiter", "component", c.Name(), "joint", joint)
	}
}

// EnforceCommandLimits rewrites all limited joints' commands in place so the
// subsequent write pushes only reachable, in-bounds references. Runs between
// the controllers' updates and Write. Reports whether any command was
// modified.
func (m *Manager) EnforceCommandLimits(period time.Duration) bool {
	m.mu.Lock()
	limiters := make([]*limits.JointLimiter, len(m.limiters))
	copy(limiters, m.limiters)
	m.mu.Unlock()

	changed := false
	for _, l := range limiters {
		if l.Enforce(period) {
			changed = true
		}
	}
	return changed
}
