package manager

import (
	"github.com/tetherworks/hwcore/component"
)

// switchPartition groups the start/stop keys of one mode switch by owning
// component. Keys owned by nobody (including controller reference
// interfaces) are not relevant to any hardware and pass through.
type switchPartition struct {
	comp   *component.Component
	starts []string
	stops  []string
}

func (m *Manager) partitionSwitch(startKeys, stopKeys []string) []*switchPartition {
	m.mu.Lock()
	defer m.mu.Unlock()

	byComp := map[string]*switchPartition{}
	ordered := []*switchPartition{}
	lookup := func(key string) *switchPartition {
		e, ok := m.commandIndex[key]
		if !ok || e.isReference() {
			return nil
		}
		p, ok := byComp[e.comp.Name()]
		if !ok {
			p = &switchPartition{comp: e.comp}
			byComp[e.comp.Name()] = p
			ordered = append(ordered, p)
		}
		return p
	}
	for _, key := range startKeys {
		if p := lookup(key); p != nil {
			p.starts = append(p.starts, key)
		}
	}
	for _, key := range stopKeys {
		if p := lookup(key); p != nil {
			p.stops = append(p.stops, key)
		}
	}
	return ordered
}

// PrepareCommandModeSwitch asks every affected component whether the
// proposed combination of starting and stopping command interfaces is
// acceptable. Empty proposals are trivially acceptable. May run outside the
// realtime path.
func (m *Manager) PrepareCommandModeSwitch(startKeys, stopKeys []string) bool {
	if len(startKeys) == 0 && len(stopKeys) == 0 {
		return true
	}
	for _, p := range m.partitionSwitch(startKeys, stopKeys) {
		if ret := p.comp.PrepareCommandModeSwitch(p.starts, p.stops); ret != component.ReturnOK {
			m.logger.Errorw("component rejected command mode switch",
				"component", p.comp.Name(), "starts", p.starts, "stops", p.stops)
			return false
		}
	}
	return true
}

// PerformCommandModeSwitch applies a prepared mode switch. Runs within the
// realtime path; the per-component calls must be fast.
func (m *Manager) PerformCommandModeSwitch(startKeys, stopKeys []string) bool {
	if len(startKeys) == 0 && len(stopKeys) == 0 {
		return true
	}
	for _, p := range m.partitionSwitch(startKeys, stopKeys) {
		if ret := p.comp.PerformCommandModeSwitch(p.starts, p.stops); ret != component.ReturnOK {
			m.logger.Errorw("component failed to perform command mode switch",
				"component", p.comp.Name(), "starts", p.starts, "stops", p.stops)
			return false
		}
	}
	return true
}
