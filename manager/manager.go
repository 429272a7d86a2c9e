// Package manager binds controllers to hardware components: it owns every
// component wrapper, indexes interface handles by canonical key, arbitrates
// exclusive command claims, drives lifecycle fan-out, and runs the periodic
// read/write dispatch with per-component rates and group failure handling.
package manager

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/lifecycle"
	"github.com/tetherworks/hwcore/limits"
	"github.com/tetherworks/hwcore/registry"
	"github.com/tetherworks/hwcore/utils"
)

// Sentinel errors callers branch on.
var (
	// ErrInterfaceNotFound reports an operation on a key no component exports.
	ErrInterfaceNotFound = errors.New("interface does not exist")
	// ErrInterfaceUnavailable reports a claim on an interface whose owner is
	// not in a state that makes it available.
	ErrInterfaceUnavailable = errors.New("interface is not available")
	// ErrInterfaceClaimed reports an exclusive claim on an already-claimed
	// command interface.
	ErrInterfaceClaimed = errors.New("command interface is already claimed")
	// ErrUnknownController reports a reference-interface operation on a
	// controller that never imported any.
	ErrUnknownController = errors.New("unknown controller")
	// ErrComponentNotFound reports a lifecycle operation on an unknown
	// component name.
	ErrComponentNotFound = errors.New("hardware component does not exist")
)

// DefaultUpdateRate is the assumed control loop rate (Hz) when the caller
// does not provide one. It sets the slack for per-component rate checks.
const DefaultUpdateRate = 100.0

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	// Logger receives manager and component logs. Defaults to a production
	// logger named "resource_manager".
	Logger golog.Logger
	// Clock is the time source for cycle bookkeeping. Defaults to the wall
	// clock; tests inject a mock.
	Clock clock.Clock
	// UpdateRate is the nominal control loop rate in Hz.
	UpdateRate float64
}

type stateEntry struct {
	comp *component.Component
	h    *handle.StateInterface
}

type commandEntry struct {
	// comp owns hardware command interfaces; nil for controller reference
	// interfaces.
	comp *component.Component
	h    *handle.CommandInterface

	claimed bool
	lendID  uuid.UUID

	// set only for controller reference interfaces
	controller string
	available  bool
}

func (e *commandEntry) isReference() bool { return e.comp == nil }

// Manager is the registry and arbiter of hardware components and their
// interface handles.
type Manager struct {
	logger     golog.Logger
	clk        clock.Clock
	updateRate float64

	// mu serializes lifecycle transitions, load/import/remove, claims, and
	// mode-switch partitioning. It is not held while sync components read or
	// write, and never by async workers. Internal helpers with the Locked
	// suffix assume it is held; public methods never call public methods.
	mu sync.Mutex

	components []*component.Component
	byName     map[string]*component.Component

	stateIndex   map[string]*stateEntry
	commandIndex map[string]*commandEntry

	// refControllers maps controller name to its imported reference keys.
	refControllers map[string][]string

	// controllerCache maps controller name to the hardware components it
	// touches, for failure notification.
	controllerCache map[string][]string

	limiters []*limits.JointLimiter
}

// New builds an empty manager.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = golog.NewLogger("resource_manager")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	rate := opts.UpdateRate
	if rate <= 0 {
		rate = DefaultUpdateRate
	}
	return &Manager{
		logger:          logger,
		clk:             clk,
		updateRate:      rate,
		byName:          map[string]*component.Component{},
		stateIndex:      map[string]*stateEntry{},
		commandIndex:    map[string]*commandEntry{},
		refControllers:  map[string][]string{},
		controllerCache: map[string][]string{},
	}
}

// UpdateRate returns the nominal control loop rate in Hz.
func (m *Manager) UpdateRate() float64 { return m.updateRate }

// LoadAndInitialize constructs, initializes, and registers a component for
// every hardware description. The call is all-or-nothing: on any failure the
// manager is left exactly as it was.
func (m *Manager) LoadAndInitialize(infos []hwinfo.HardwareInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	built := make([]*component.Component, 0, len(infos))
	abort := func(cause error) error {
		for _, c := range built {
			if err := c.Shutdown(); err != nil {
				m.logger.Debugw("shutdown of unregistered component failed", "component", c.Name(), "error", err)
			}
		}
		return cause
	}

	seen := map[string]bool{}
	for _, info := range infos {
		if _, exists := m.byName[info.Name]; exists || seen[info.Name] {
			return abort(errors.Errorf("duplicate hardware component name %q", info.Name))
		}
		seen[info.Name] = true
		c, err := registry.NewComponent(info)
		if err != nil {
			return abort(err)
		}
		if err := c.Initialize(info, m.logger, m.clk); err != nil {
			return abort(errors.Wrapf(err, "initializing component %q", info.Name))
		}
		built = append(built, c)
	}

	if err := m.checkKeyCollisions(built); err != nil {
		return abort(err)
	}
	for _, c := range built {
		m.registerLocked(c)
	}
	return nil
}

// ImportComponent initializes and registers a single pre-built driver at
// runtime, with the same contract as LoadAndInitialize.
func (m *Manager) ImportComponent(drv interface{}, info hwinfo.HardwareInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[info.Name]; exists {
		return errors.Errorf("duplicate hardware component name %q", info.Name)
	}
	c, err := component.NewFromInfo(info, drv)
	if err != nil {
		return err
	}
	if err := c.Initialize(info, m.logger, m.clk); err != nil {
		return errors.Wrapf(err, "initializing component %q", info.Name)
	}
	if err := m.checkKeyCollisions([]*component.Component{c}); err != nil {
		if shutdownErr := c.Shutdown(); shutdownErr != nil {
			m.logger.Debugw("shutdown of unregistered component failed", "component", c.Name(), "error", shutdownErr)
		}
		return err
	}
	m.registerLocked(c)
	return nil
}

func (m *Manager) checkKeyCollisions(newComponents []*component.Component) error {
	seenState := map[string]bool{}
	seenCommand := map[string]bool{}
	for _, c := range newComponents {
		for _, h := range c.StateHandles() {
			key := h.Name()
			if seenState[key] {
				return errors.Errorf("state interface key %q exported twice in this load", key)
			}
			if _, ok := m.stateIndex[key]; ok {
				return errors.Errorf("state interface key %q already registered", key)
			}
			seenState[key] = true
		}
		for _, h := range c.CommandHandles() {
			key := h.Name()
			if seenCommand[key] {
				return errors.Errorf("command interface key %q exported twice in this load", key)
			}
			if _, ok := m.commandIndex[key]; ok {
				return errors.Errorf("command interface key %q already registered", key)
			}
			seenCommand[key] = true
		}
	}
	return nil
}

func (m *Manager) registerLocked(c *component.Component) {
	m.components = append(m.components, c)
	m.byName[c.Name()] = c
	for _, h := range c.StateHandles() {
		m.stateIndex[h.Name()] = &stateEntry{comp: c, h: h}
	}
	for _, h := range c.CommandHandles() {
		m.commandIndex[h.Name()] = &commandEntry{comp: c, h: h}
	}
	m.importJointLimitersLocked(c)
	m.logger.Infow("registered hardware component",
		"component", c.Name(), "type", string(c.Kind()),
		"async", c.IsAsync(), "group", c.GroupName())
}

// SetComponentState drives the named component through whatever transitions
// reach the target state.
func (m *Manager) SetComponentState(name string, target lifecycle.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byName[name]
	if !ok {
		return errors.Wrapf(ErrComponentNotFound, "%q", name)
	}
	path, ok := lifecycle.Path(c.State(), target)
	if !ok {
		return errors.Errorf("component %q: no transition path from %q to %q", name, c.State(), target)
	}
	for _, t := range path {
		if err := c.Transition(t); err != nil {
			return err
		}
	}
	return nil
}

// ComponentNames lists registered components in load order.
func (m *Manager) ComponentNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Map(m.components, func(c *component.Component, _ int) string { return c.Name() })
}

// ComponentState returns the lifecycle state of a named component.
func (m *Manager) ComponentState(name string) (lifecycle.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byName[name]
	if !ok {
		return lifecycle.Unknown, errors.Wrapf(ErrComponentNotFound, "%q", name)
	}
	return c.State(), nil
}

// ComponentStatus describes one registered component, including its rolling
// cycle statistics.
type ComponentStatus struct {
	Name          string
	Kind          component.Kind
	State         lifecycle.State
	Group         string
	IsAsync       bool
	ReadWriteRate float64

	ReadExecution    utils.StatsSnapshot
	ReadPeriodicity  utils.StatsSnapshot
	WriteExecution   utils.StatsSnapshot
	WritePeriodicity utils.StatsSnapshot
}

// ComponentStates reports the status of every registered component.
func (m *Manager) ComponentStates() map[string]ComponentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ComponentStatus, len(m.components))
	for _, c := range m.components {
		readExec, readPeriod := c.ReadStats()
		writeExec, writePeriod := c.WriteStats()
		out[c.Name()] = ComponentStatus{
			Name:             c.Name(),
			Kind:             c.Kind(),
			State:            c.State(),
			Group:            c.GroupName(),
			IsAsync:          c.IsAsync(),
			ReadWriteRate:    c.Info().ReadWriteRate,
			ReadExecution:    readExec,
			ReadPeriodicity:  readPeriod,
			WriteExecution:   writeExec,
			WritePeriodicity: writePeriod,
		}
	}
	return out
}

// StateInterfaceKeys lists all registered state interface keys, sorted.
func (m *Manager) StateInterfaceKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := lo.Keys(m.stateIndex)
	sort.Strings(keys)
	return keys
}

// CommandInterfaceKeys lists all registered command interface keys,
// including imported controller reference interfaces, sorted.
func (m *Manager) CommandInterfaceKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := lo.Keys(m.commandIndex)
	sort.Strings(keys)
	return keys
}

// StateInterfaceExists reports membership of a state key.
func (m *Manager) StateInterfaceExists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.stateIndex[key]
	return ok
}

// CommandInterfaceExists reports membership of a command key.
func (m *Manager) CommandInterfaceExists(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.commandIndex[key]
	return ok
}

// StateInterfaceAvailable reports whether a state interface exists and its
// owning component is inactive or active.
func (m *Manager) StateInterfaceAvailable(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.stateIndex[key]
	return ok && e.comp.State().InterfacesAvailable()
}

// CommandInterfaceAvailable reports whether a command interface may be
// claimed right now. Movement interfaces additionally require their owner to
// be active; reference interfaces follow their controller's toggle.
func (m *Manager) CommandInterfaceAvailable(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.commandIndex[key]
	return ok && m.commandAvailableLocked(e)
}

func (m *Manager) commandAvailableLocked(e *commandEntry) bool {
	if e.isReference() {
		return e.available
	}
	state := e.comp.State()
	if !state.InterfacesAvailable() {
		return false
	}
	if e.h.Description().Movement() && state != lifecycle.Active {
		return false
	}
	return true
}

// CommandInterfaceClaimed reports whether a command interface is currently
// claimed.
func (m *Manager) CommandInterfaceClaimed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.commandIndex[key]
	return ok && e.claimed
}

// Shutdown drives every component to its terminal state and stops all async
// workers. The manager stays queryable; finalized components keep their
// registration but their interfaces are permanently unavailable.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs error
	for _, c := range m.components {
		errs = multierr.Append(errs, c.Shutdown())
	}
	return errs
}
