package manager

import (
	"sort"

	"github.com/samber/lo"
)

// CacheControllerToHardware records which hardware components a controller
// touches, derived from the interface keys it claims. Unknown keys are
// ignored; reference interfaces have no hardware owner. Re-caching a
// controller replaces its previous entry.
func (m *Manager) CacheControllerToHardware(controller string, interfaceKeys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}
	var names []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, key := range interfaceKeys {
		if e, ok := m.commandIndex[key]; ok && !e.isReference() {
			add(e.comp.Name())
		}
		if e, ok := m.stateIndex[key]; ok {
			add(e.comp.Name())
		}
	}
	m.controllerCache[controller] = names
}

// CachedControllersToHardware lists the controllers whose cached interface
// usage touches the named hardware component, sorted. The controller
// manager uses this to deactivate only affected controllers after a
// hardware failure.
func (m *Manager) CachedControllersToHardware(componentName string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	controllers := lo.PickBy(m.controllerCache, func(_ string, comps []string) bool {
		return lo.Contains(comps, componentName)
	})
	names := lo.Keys(controllers)
	sort.Strings(names)
	return names
}

// RemoveControllerFromCache forgets a controller's cached hardware usage.
func (m *Manager) RemoveControllerFromCache(controller string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.controllerCache, controller)
}
