package component

import (
	"fmt"
	"math"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/lifecycle"
)

// Base is the shared composition struct behind every driver: the attached
// hardware description, the injected logger and clock, and the handle maps
// the wrapper allocates. Drivers embed it and talk to their handles through
// its accessors.
//
// Handle accessors panic on unknown keys. A driver asking for an interface
// it never declared is a programming error, not a runtime condition.
type Base struct {
	info   hwinfo.HardwareInfo
	logger golog.Logger
	clk    clock.Clock

	states   map[string]*handle.StateInterface
	commands map[string]*handle.CommandInterface
}

// Core returns the base itself; embedding Base satisfies Driver.Core.
func (b *Base) Core() *Base { return b }

func (b *Base) attach(info hwinfo.HardwareInfo, logger golog.Logger, clk clock.Clock) {
	b.info = info
	b.logger = logger
	b.clk = clk
}

func (b *Base) setHandles(states map[string]*handle.StateInterface, commands map[string]*handle.CommandInterface) {
	b.states = states
	b.commands = commands
}

// HardwareInfo returns the attached hardware description.
func (b *Base) HardwareInfo() hwinfo.HardwareInfo { return b.info }

// Logger returns the component's logger.
func (b *Base) Logger() golog.Logger { return b.logger }

// Clock returns the injected time source.
func (b *Base) Clock() clock.Clock { return b.clk }

// HasStateInterface reports whether the component exports the state
// interface with the given canonical key.
func (b *Base) HasStateInterface(key string) bool {
	_, ok := b.states[key]
	return ok
}

// HasCommandInterface reports whether the component exports the command
// interface with the given canonical key.
func (b *Base) HasCommandInterface(key string) bool {
	_, ok := b.commands[key]
	return ok
}

// State returns the current value of a state interface; a state never written
// reads its declared initial value or 0.
func (b *Base) State(key string) float64 {
	h, ok := b.states[key]
	if !ok {
		panic(fmt.Sprintf("state interface %q not exported by component %q", key, b.info.Name))
	}
	return h.Value()
}

// SetState stores a state value. Uses the blocking store; the driver owns
// its state handles and contention comes only from microsecond-scale reads.
func (b *Base) SetState(key string, value float64) {
	h, ok := b.states[key]
	if !ok {
		panic(fmt.Sprintf("state interface %q not exported by component %q", key, b.info.Name))
	}
	h.SetBlocking(value)
}

// Command returns the current value of a command interface. NaN means no
// command has arrived and no initial value was declared.
func (b *Base) Command(key string) float64 {
	h, ok := b.commands[key]
	if !ok {
		panic(fmt.Sprintf("command interface %q not exported by component %q", key, b.info.Name))
	}
	return h.Value()
}

// SetCommand stores a command value from the driver side, e.g. to echo back
// a clamped command.
func (b *Base) SetCommand(key string, value float64) {
	h, ok := b.commands[key]
	if !ok {
		panic(fmt.Sprintf("command interface %q not exported by component %q", key, b.info.Name))
	}
	h.SetBlocking(value)
}

// CommandIsSet reports whether the command value is anything other than NaN.
func (b *Base) CommandIsSet(key string) bool {
	return !math.IsNaN(b.Command(key))
}

// Default lifecycle callbacks: every transition succeeds without work.

// OnInit implements Lifecycle.
func (b *Base) OnInit() CallbackReturn { return CallbackSuccess }

// OnConfigure implements Lifecycle.
func (b *Base) OnConfigure(lifecycle.State) CallbackReturn { return CallbackSuccess }

// OnActivate implements Lifecycle.
func (b *Base) OnActivate(lifecycle.State) CallbackReturn { return CallbackSuccess }

// OnDeactivate implements Lifecycle.
func (b *Base) OnDeactivate(lifecycle.State) CallbackReturn { return CallbackSuccess }

// OnCleanup implements Lifecycle.
func (b *Base) OnCleanup(lifecycle.State) CallbackReturn { return CallbackSuccess }

// OnShutdown implements Lifecycle.
func (b *Base) OnShutdown(lifecycle.State) CallbackReturn { return CallbackSuccess }

// OnError implements Lifecycle. The default recovers.
func (b *Base) OnError(lifecycle.State) CallbackReturn { return CallbackSuccess }

// UnlistedStateDescriptions implements Driver; no extra interfaces by default.
func (b *Base) UnlistedStateDescriptions() []handle.Description { return nil }

// UnlistedCommandDescriptions implements CommandExporter; none by default.
func (b *Base) UnlistedCommandDescriptions() []handle.Description { return nil }

// PrepareCommandModeSwitch implements ModeSwitcher; any combination is fine
// by default.
func (b *Base) PrepareCommandModeSwitch(_, _ []string) ReturnType { return ReturnOK }

// PerformCommandModeSwitch implements ModeSwitcher.
func (b *Base) PerformCommandModeSwitch(_, _ []string) ReturnType { return ReturnOK }
