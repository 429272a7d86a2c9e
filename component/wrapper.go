package component

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/lifecycle"
	"github.com/tetherworks/hwcore/utils"
)

// Kind names the three driver contracts a wrapper can hold.
type Kind string

// Wrapper kinds.
const (
	KindActuator Kind = "actuator"
	KindSensor   Kind = "sensor"
	KindSystem   Kind = "system"
)

// Sentinel errors callers branch on.
var (
	// ErrTransitionInvalid reports a transition requested from a state that
	// does not allow it.
	ErrTransitionInvalid = errors.New("transition not allowed from current lifecycle state")
	// ErrCallbackFailed reports a driver callback returning failure; the
	// component stays in its source state and the transition may be retried.
	ErrCallbackFailed = errors.New("lifecycle callback reported failure")
	// ErrNotConfigured reports an interface-configuration query outside
	// inactive/active.
	ErrNotConfigured = errors.New("component is not configured")
)

// Component owns one driver: its lifecycle, its exported handles, its
// optional async worker, and its cycle statistics.
type Component struct {
	kind   Kind
	drv    Driver
	reader Reader
	writer Writer
	modeSw ModeSwitcher

	info   hwinfo.HardwareInfo
	logger golog.Logger
	clk    clock.Clock

	state atomic.Int32

	// transitions and error recovery are serialized by the manager's lock;
	// this mutex additionally protects direct wrapper use in tests.
	mu          sync.Mutex
	initialized bool
	errorCount  int

	stateHandles   map[string]*handle.StateInterface
	commandHandles map[string]*handle.CommandInterface
	stateOrder     []string
	commandOrder   []string

	async *AsyncExecutor

	readExecStats    *utils.CycleStats
	readPeriodStats  *utils.CycleStats
	writeExecStats   *utils.CycleStats
	writePeriodStats *utils.CycleStats
	lastReadTime     time.Time
	lastWriteTime    time.Time
}

// NewActuator wraps an actuator driver.
func NewActuator(drv Actuator) *Component {
	return newComponent(KindActuator, drv, drv, drv, drv)
}

// NewSensor wraps a sensor driver.
func NewSensor(drv Sensor) *Component {
	return newComponent(KindSensor, drv, drv, nil, nil)
}

// NewSystem wraps a system driver.
func NewSystem(drv System) *Component {
	return newComponent(KindSystem, drv, drv, drv, drv)
}

// NewFromInfo wraps drv according to the declared component type.
func NewFromInfo(info hwinfo.HardwareInfo, drv interface{}) (*Component, error) {
	switch info.Type {
	case hwinfo.TypeActuator:
		a, ok := drv.(Actuator)
		if !ok {
			return nil, errors.Errorf("driver for %q does not implement the actuator contract", info.Name)
		}
		return NewActuator(a), nil
	case hwinfo.TypeSensor:
		s, ok := drv.(Sensor)
		if !ok {
			return nil, errors.Errorf("driver for %q does not implement the sensor contract", info.Name)
		}
		return NewSensor(s), nil
	case hwinfo.TypeSystem:
		s, ok := drv.(System)
		if !ok {
			return nil, errors.Errorf("driver for %q does not implement the system contract", info.Name)
		}
		return NewSystem(s), nil
	}
	return nil, errors.Errorf("component %q has unknown type %q", info.Name, info.Type)
}

func newComponent(kind Kind, drv Driver, reader Reader, writer Writer, modeSw ModeSwitcher) *Component {
	c := &Component{
		kind:             kind,
		drv:              drv,
		reader:           reader,
		writer:           writer,
		modeSw:           modeSw,
		readExecStats:    utils.NewCycleStats(0),
		readPeriodStats:  utils.NewCycleStats(0),
		writeExecStats:   utils.NewCycleStats(0),
		writePeriodStats: utils.NewCycleStats(0),
	}
	c.state.Store(int32(lifecycle.Unknown))
	return c
}

// Initialize attaches the hardware description, exports all handles, starts
// the async worker when requested, and runs the driver's OnInit exactly
// once. On success the component sits in the unconfigured state.
func (c *Component) Initialize(info hwinfo.HardwareInfo, logger golog.Logger, clk clock.Clock) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return errors.Errorf("component %q is already initialized", c.info.Name)
	}
	if err := info.Validate(); err != nil {
		return err
	}
	if string(c.kind) != string(info.Type) {
		return errors.Errorf("component %q declared as %s but wrapped as %s", info.Name, info.Type, c.kind)
	}
	c.info = info
	c.logger = logger.Named(string(c.kind)).Named(info.Name)
	c.clk = clk
	c.drv.Core().attach(info, c.logger, clk)

	if err := c.exportHandles(); err != nil {
		return err
	}
	c.drv.Core().setHandles(c.stateHandles, c.commandHandles)

	if info.IsAsync {
		var writeFn func(time.Time, time.Duration) ReturnType
		if c.writer != nil {
			writeFn = c.writer.Write
		}
		c.async = NewAsyncExecutor(info.Name, c.reader.Read, writeFn, info.ThreadPriority, clk, c.logger)
		c.logger.Infow("starting async worker", "thread_priority", info.ThreadPriority)
		c.async.Start()
	}

	switch ret := c.drv.OnInit(); ret {
	case CallbackSuccess:
	case CallbackFailure:
		c.teardownAsync()
		return errors.Wrapf(ErrCallbackFailed, "initializing component %q", info.Name)
	default:
		c.teardownAsync()
		return errors.Errorf("initializing component %q: driver reported error", info.Name)
	}
	c.initialized = true
	c.state.Store(int32(lifecycle.Unconfigured))
	return nil
}

func (c *Component) exportHandles() error {
	states := map[string]*handle.StateInterface{}
	commands := map[string]*handle.CommandInterface{}
	var stateOrder, commandOrder []string

	stateDescs := c.info.StateDescriptions()
	stateDescs = append(stateDescs, c.drv.UnlistedStateDescriptions()...)
	for _, desc := range stateDescs {
		h, err := handle.NewStateInterface(desc)
		if err != nil {
			return errors.Wrapf(err, "component %q", c.info.Name)
		}
		if _, ok := states[h.Name()]; ok {
			return errors.Errorf("component %q exports state interface %q more than once", c.info.Name, h.Name())
		}
		states[h.Name()] = h
		stateOrder = append(stateOrder, h.Name())
	}

	if c.writer != nil {
		commandDescs := c.info.CommandDescriptions()
		if exporter, ok := c.drv.(CommandExporter); ok {
			commandDescs = append(commandDescs, exporter.UnlistedCommandDescriptions()...)
		}
		for _, desc := range commandDescs {
			h, err := handle.NewCommandInterface(desc)
			if err != nil {
				return errors.Wrapf(err, "component %q", c.info.Name)
			}
			if _, ok := commands[h.Name()]; ok {
				return errors.Errorf("component %q exports command interface %q more than once", c.info.Name, h.Name())
			}
			commands[h.Name()] = h
			commandOrder = append(commandOrder, h.Name())
		}
	} else if len(c.info.CommandDescriptions()) > 0 {
		return errors.Errorf("sensor component %q declares command interfaces", c.info.Name)
	}

	c.stateHandles = states
	c.commandHandles = commands
	c.stateOrder = stateOrder
	c.commandOrder = commandOrder
	return nil
}

func (c *Component) teardownAsync() {
	if c.async != nil {
		c.async.Stop()
		c.async = nil
	}
}

// Name returns the component name.
func (c *Component) Name() string { return c.info.Name }

// GroupName returns the failure-coupling group, empty when ungrouped.
func (c *Component) GroupName() string { return c.info.Group }

// Kind returns the wrapped driver contract kind.
func (c *Component) Kind() Kind { return c.kind }

// Info returns the attached hardware description.
func (c *Component) Info() hwinfo.HardwareInfo { return c.info }

// IsAsync reports whether the component runs on a dedicated worker.
func (c *Component) IsAsync() bool { return c.async != nil }

// State returns the current lifecycle state.
func (c *Component) State() lifecycle.State {
	return lifecycle.State(c.state.Load())
}

// StateHandles returns the exported state interfaces in export order.
func (c *Component) StateHandles() []*handle.StateInterface {
	out := make([]*handle.StateInterface, 0, len(c.stateOrder))
	for _, k := range c.stateOrder {
		out = append(out, c.stateHandles[k])
	}
	return out
}

// CommandHandles returns the exported command interfaces in export order.
func (c *Component) CommandHandles() []*handle.CommandInterface {
	out := make([]*handle.CommandInterface, 0, len(c.commandOrder))
	for _, k := range c.commandOrder {
		out = append(out, c.commandHandles[k])
	}
	return out
}

// StateInterfaceConfiguration lists exported state keys. Only legal while
// the component is configured.
func (c *Component) StateInterfaceConfiguration() ([]string, error) {
	if !c.State().InterfacesAvailable() {
		return nil, errors.Wrapf(ErrNotConfigured, "component %q in state %q", c.info.Name, c.State())
	}
	return append([]string(nil), c.stateOrder...), nil
}

// CommandInterfaceConfiguration lists exported command keys. Only legal
// while the component is configured.
func (c *Component) CommandInterfaceConfiguration() ([]string, error) {
	if !c.State().InterfacesAvailable() {
		return nil, errors.Wrapf(ErrNotConfigured, "component %q in state %q", c.info.Name, c.State())
	}
	return append([]string(nil), c.commandOrder...), nil
}

// Transition drives one lifecycle transition through the driver callback.
func (c *Component) Transition(t lifecycle.Transition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(t)
}

func (c *Component) transitionLocked(t lifecycle.Transition) error {
	prev := c.State()
	if !t.ValidFrom(prev) {
		return errors.Wrapf(ErrTransitionInvalid, "component %q: %s from %q", c.info.Name, t, prev)
	}
	var ret CallbackReturn
	switch t {
	case lifecycle.Configure:
		ret = c.drv.OnConfigure(prev)
	case lifecycle.Activate:
		if c.async != nil {
			c.async.ResetStatus()
		}
		ret = c.drv.OnActivate(prev)
	case lifecycle.Deactivate:
		ret = c.drv.OnDeactivate(prev)
	case lifecycle.Cleanup:
		ret = c.drv.OnCleanup(prev)
	case lifecycle.Shutdown:
		ret = c.drv.OnShutdown(prev)
	default:
		return errors.Errorf("component %q: unknown transition", c.info.Name)
	}

	switch ret {
	case CallbackSuccess:
		c.state.Store(int32(t.Target()))
		if t == lifecycle.Shutdown {
			c.finalize()
		}
		c.logger.Debugw("lifecycle transition", "transition", t.String(), "state", c.State().String())
		return nil
	case CallbackFailure:
		return errors.Wrapf(ErrCallbackFailed, "component %q: %s", c.info.Name, t)
	default:
		return c.recoverFromErrorLocked(prev)
	}
}

// Shutdown drives the component to its terminal state, stopping the async
// worker.
func (c *Component) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == lifecycle.Finalized {
		return nil
	}
	return c.transitionLocked(lifecycle.Shutdown)
}

func (c *Component) finalize() {
	c.state.Store(int32(lifecycle.Finalized))
	c.teardownAsync()
	c.stateHandles = nil
	c.commandHandles = nil
	c.drv.Core().setHandles(nil, nil)
}

// RecoverFromError runs the driver's OnError ladder after a cycle or
// lifecycle error. The first recoverable occurrence lands in unconfigured
// with command handles reset; a second occurrence, or OnError itself
// failing, finalizes the component.
func (c *Component) RecoverFromError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recoverFromErrorLocked(c.State())
}

func (c *Component) recoverFromErrorLocked(prev lifecycle.State) error {
	if c.State() == lifecycle.Finalized {
		return nil
	}
	c.errorCount++
	ret := c.drv.OnError(prev)
	if ret == CallbackSuccess && c.errorCount < 2 {
		for _, h := range c.commandHandles {
			h.ResetValue(0)
		}
		c.state.Store(int32(lifecycle.Unconfigured))
		c.logger.Warnw("component recovered from error", "state", c.State().String())
		return errors.Errorf("component %q errored and recovered to unconfigured", c.info.Name)
	}
	c.logger.Errorw("component failed fatally", "previous_state", prev.String())
	c.finalize()
	return errors.Errorf("component %q errored fatally and was finalized", c.info.Name)
}

// TriggerRead runs the driver's read, or for async components drops a
// trigger to the worker and reports the most recently published status.
func (c *Component) TriggerRead(t time.Time, period time.Duration) CycleStatus {
	var status CycleStatus
	if c.async != nil {
		status.Result, status.ExecutionTime = c.async.LastRead()
		status.Triggered = c.async.Trigger(t, period)
		if !status.Triggered {
			c.logger.Warnw("previous async cycle still in progress; dropping read/write trigger")
			status.Result = ReturnOK
		}
		return status
	}
	start := c.clk.Now()
	status.Triggered = true
	status.Result = c.reader.Read(t, period)
	status.ExecutionTime = c.clk.Now().Sub(start)
	return status
}

// TriggerWrite pushes commands through the driver's write, or for async
// components reports the worker's most recently published write status.
func (c *Component) TriggerWrite(t time.Time, period time.Duration) CycleStatus {
	var status CycleStatus
	if c.writer == nil {
		status.Triggered = true
		status.Result = ReturnOK
		return status
	}
	if c.async != nil {
		status.Triggered = true
		status.Result, status.ExecutionTime = c.async.LastWrite()
		return status
	}
	start := c.clk.Now()
	status.Triggered = true
	status.Result = c.writer.Write(t, period)
	status.ExecutionTime = c.clk.Now().Sub(start)
	return status
}

// PrepareCommandModeSwitch forwards to the driver; sensors accept anything.
func (c *Component) PrepareCommandModeSwitch(starts, stops []string) ReturnType {
	if c.modeSw == nil {
		return ReturnOK
	}
	return c.modeSw.PrepareCommandModeSwitch(starts, stops)
}

// PerformCommandModeSwitch forwards to the driver; sensors accept anything.
func (c *Component) PerformCommandModeSwitch(starts, stops []string) ReturnType {
	if c.modeSw == nil {
		return ReturnOK
	}
	return c.modeSw.PerformCommandModeSwitch(starts, stops)
}

// LastReadTime returns when the last successful read cycle ran.
func (c *Component) LastReadTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReadTime
}

// LastWriteTime returns when the last successful write cycle ran.
func (c *Component) LastWriteTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastWriteTime
}

// RecordReadCycle folds one successful read cycle into the statistics.
func (c *Component) RecordReadCycle(t time.Time, execution time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if execution > 0 {
		c.readExecStats.AddSample(execution.Seconds())
	}
	if !c.lastReadTime.IsZero() {
		c.readPeriodStats.AddSample(t.Sub(c.lastReadTime).Seconds())
	}
	c.lastReadTime = t
}

// RecordWriteCycle folds one successful write cycle into the statistics.
func (c *Component) RecordWriteCycle(t time.Time, execution time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if execution > 0 {
		c.writeExecStats.AddSample(execution.Seconds())
	}
	if !c.lastWriteTime.IsZero() {
		c.writePeriodStats.AddSample(t.Sub(c.lastWriteTime).Seconds())
	}
	c.lastWriteTime = t
}

// ReadStats returns execution-time and periodicity statistics for reads.
func (c *Component) ReadStats() (execution, periodicity utils.StatsSnapshot) {
	return c.readExecStats.Snapshot(), c.readPeriodStats.Snapshot()
}

// WriteStats returns execution-time and periodicity statistics for writes.
func (c *Component) WriteStats() (execution, periodicity utils.StatsSnapshot) {
	return c.writeExecStats.Snapshot(), c.writePeriodStats.Snapshot()
}
