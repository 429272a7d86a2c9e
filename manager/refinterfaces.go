package manager

import (
	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/handle"
)

// ImportControllerReferenceInterfaces publishes a controller's command-like
// handles under "<controller>/<name>" keys so other controllers can claim
// them through the usual machinery. They start unavailable. Returns the
// registered keys in import order.
func (m *Manager) ImportControllerReferenceInterfaces(controller string, handles []*handle.CommandInterface) ([]string, error) {
	if controller == "" {
		return nil, errors.New("controller name must not be empty")
	}
	if len(handles) == 0 {
		return nil, errors.Errorf("controller %q imported no reference interfaces", controller)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.refControllers[controller]; exists {
		return nil, errors.Errorf("controller %q already has reference interfaces imported", controller)
	}
	keys := make([]string, 0, len(handles))
	for _, h := range handles {
		if h.Prefix() != controller {
			return nil, errors.Errorf("reference interface %q is not prefixed by its controller %q", h.Name(), controller)
		}
		key := h.Name()
		if _, ok := m.commandIndex[key]; ok {
			return nil, errors.Errorf("command interface key %q already registered", key)
		}
		keys = append(keys, key)
	}
	for i, h := range handles {
		m.commandIndex[keys[i]] = &commandEntry{h: h, controller: controller}
	}
	m.refControllers[controller] = keys
	m.logger.Debugw("imported controller reference interfaces", "controller", controller, "keys", keys)
	return keys, nil
}

// ControllerReferenceInterfaceKeys lists a controller's imported reference
// keys.
func (m *Manager) ControllerReferenceInterfaceKeys(controller string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.refControllers[controller]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownController, "%q", controller)
	}
	return append([]string(nil), keys...), nil
}

// MakeControllerReferenceInterfacesAvailable opens a controller's reference
// interfaces for claiming.
func (m *Manager) MakeControllerReferenceInterfacesAvailable(controller string) error {
	return m.setReferenceAvailability(controller, true)
}

// MakeControllerReferenceInterfacesUnavailable closes a controller's
// reference interfaces to new claims. Outstanding lends stay valid.
func (m *Manager) MakeControllerReferenceInterfacesUnavailable(controller string) error {
	return m.setReferenceAvailability(controller, false)
}

func (m *Manager) setReferenceAvailability(controller string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.refControllers[controller]
	if !ok {
		return errors.Wrapf(ErrUnknownController, "%q", controller)
	}
	for _, key := range keys {
		m.commandIndex[key].available = available
	}
	return nil
}

// RemoveControllerReferenceInterfaces withdraws a controller's reference
// interfaces. Removal fails while any of them is claimed.
func (m *Manager) RemoveControllerReferenceInterfaces(controller string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.refControllers[controller]
	if !ok {
		return errors.Wrapf(ErrUnknownController, "%q", controller)
	}
	for _, key := range keys {
		if m.commandIndex[key].claimed {
			return errors.Errorf("reference interface %q of controller %q is still claimed", key, controller)
		}
	}
	for _, key := range keys {
		delete(m.commandIndex, key)
	}
	delete(m.refControllers, controller)
	m.logger.Debugw("removed controller reference interfaces", "controller", controller)
	return nil
}
