package manager

import (
	"sort"
	"time"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/lifecycle"
)

// cycleKind discriminates the two dispatch directions; the loop shape is
// identical.
type cycleKind int

const (
	cycleRead cycleKind = iota
	cycleWrite
)

func (k cycleKind) String() string {
	if k == cycleRead {
		return "read"
	}
	return "write"
}

// Read triggers one read cycle across all configured components, respecting
// per-component rates. It returns the aggregated result and the names of
// components (plus their group mates) that failed this cycle.
func (m *Manager) Read(t time.Time, period time.Duration) (component.ReturnType, []string) {
	return m.dispatch(cycleRead, t, period)
}

// Write pushes commands through one write cycle across all configured
// components, with the same shape as Read. Components whose drivers request
// deactivation are transitioned to inactive but stay loaded.
func (m *Manager) Write(t time.Time, period time.Duration) (component.ReturnType, []string) {
	return m.dispatch(cycleWrite, t, period)
}

func (m *Manager) dispatch(kind cycleKind, t time.Time, period time.Duration) (component.ReturnType, []string) {
	// Snapshot load order; the manager lock is not held while drivers run.
	m.mu.Lock()
	comps := make([]*component.Component, len(m.components))
	copy(comps, m.components)
	// Half the nominal period of slack lets a slightly-early cycle through
	// instead of slipping a whole period.
	epsilon := time.Duration(float64(time.Second) / m.updateRate / 2)
	m.mu.Unlock()

	var failed []*component.Component
	anyDeactivate := false

	for _, c := range comps {
		state := c.State()
		if !state.InterfacesAvailable() {
			continue
		}

		var status component.CycleStatus
		if c.IsAsync() {
			status = m.trigger(kind, c, t, period)
			if !status.Triggered {
				// Worker still busy; the published status was already folded
				// in, nothing else to record this cycle.
				continue
			}
		} else {
			if !m.cycleDue(kind, c, t, epsilon) {
				continue
			}
			status = m.trigger(kind, c, t, period)
		}

		switch status.Result {
		case component.ReturnOK:
			m.record(kind, c, t, status.ExecutionTime)
		case component.ReturnDeactivate:
			m.record(kind, c, t, status.ExecutionTime)
			anyDeactivate = true
			if c.State() == lifecycle.Active {
				m.logger.Infow("component requested deactivation",
					"component", c.Name(), "cycle", kind.String())
				if err := c.Transition(lifecycle.Deactivate); err != nil {
					m.logger.Errorw("deactivation after driver request failed",
						"component", c.Name(), "error", err)
				}
			}
		default:
			m.logger.Errorw("component cycle returned error",
				"component", c.Name(), "cycle", kind.String())
			failed = append(failed, c)
		}
	}

	if len(failed) == 0 {
		if anyDeactivate {
			return component.ReturnDeactivate, nil
		}
		return component.ReturnOK, nil
	}

	failedNames := m.failComponents(comps, failed)
	return component.ReturnError, failedNames
}

func (m *Manager) trigger(kind cycleKind, c *component.Component, t time.Time, period time.Duration) component.CycleStatus {
	if kind == cycleRead {
		return c.TriggerRead(t, period)
	}
	return c.TriggerWrite(t, period)
}

func (m *Manager) record(kind cycleKind, c *component.Component, t time.Time, execution time.Duration) {
	if kind == cycleRead {
		c.RecordReadCycle(t, execution)
		return
	}
	c.RecordWriteCycle(t, execution)
}

// cycleDue checks the per-component rate for sync components. A component
// running at the manager rate is always due.
func (m *Manager) cycleDue(kind cycleKind, c *component.Component, t time.Time, epsilon time.Duration) bool {
	rate := c.Info().ReadWriteRate
	if rate <= 0 || rate >= m.updateRate {
		return true
	}
	var last time.Time
	if kind == cycleRead {
		last = c.LastReadTime()
	} else {
		last = c.LastWriteTime()
	}
	if last.IsZero() {
		return true
	}
	interval := time.Duration(float64(time.Second) / rate)
	return t.Sub(last)+epsilon >= interval
}

// failComponents expands the failed set across groups, runs each failed
// component's error recovery, and returns the sorted names.
func (m *Manager) failComponents(comps, failed []*component.Component) []string {
	inFailure := map[string]bool{}
	groups := map[string]bool{}
	for _, c := range failed {
		inFailure[c.Name()] = true
		if g := c.GroupName(); g != "" {
			groups[g] = true
		}
	}
	// Group mates fail together: every non-finalized member of a failed
	// component's group joins the failure in the same cycle.
	expanded := append([]*component.Component(nil), failed...)
	for _, c := range comps {
		if inFailure[c.Name()] {
			continue
		}
		if g := c.GroupName(); g != "" && groups[g] && c.State() != lifecycle.Finalized {
			inFailure[c.Name()] = true
			expanded = append(expanded, c)
		}
	}

	for _, c := range expanded {
		if err := c.RecoverFromError(); err != nil {
			m.logger.Warnw("component error recovery", "component", c.Name(), "outcome", err)
		}
	}

	names := make([]string, 0, len(inFailure))
	for name := range inFailure {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
