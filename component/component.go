// Package component wraps hardware drivers with the lifecycle, handle
// ownership, and read/write trigger machinery the resource manager drives.
package component

import (
	"time"

	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/lifecycle"
)

// ReturnType is the result of a driver's realtime Read or Write.
type ReturnType int

// Realtime cycle results.
const (
	// ReturnOK continues normal operation.
	ReturnOK ReturnType = iota
	// ReturnError marks the component unrecoverable at driver level; the
	// wrapper runs the error recovery ladder.
	ReturnError
	// ReturnDeactivate asks the wrapper to transition the component to
	// inactive, keeping state reads alive. It is honoured from any write and
	// from a sync read; the async worker reports it from a read as ReturnError.
	ReturnDeactivate
)

func (r ReturnType) String() string {
	switch r {
	case ReturnOK:
		return "ok"
	case ReturnError:
		return "error"
	case ReturnDeactivate:
		return "deactivate"
	}
	return "unknown"
}

// CallbackReturn is the result of a driver lifecycle callback.
type CallbackReturn int

// Lifecycle callback results.
const (
	// CallbackSuccess completes the transition.
	CallbackSuccess CallbackReturn = iota
	// CallbackFailure aborts the transition; the component stays in its
	// source state and the transition may be retried.
	CallbackFailure
	// CallbackError triggers OnError-based recovery.
	CallbackError
)

func (c CallbackReturn) String() string {
	switch c {
	case CallbackSuccess:
		return "success"
	case CallbackFailure:
		return "failure"
	case CallbackError:
		return "error"
	}
	return "unknown"
}

// Lifecycle is the set of callbacks every driver implements. Base provides
// no-op implementations of all of them, so drivers override only what they
// need.
type Lifecycle interface {
	// OnInit runs exactly once per driver lifetime, after the hardware
	// description has been attached and the handles have been exported.
	OnInit() CallbackReturn
	OnConfigure(prev lifecycle.State) CallbackReturn
	OnActivate(prev lifecycle.State) CallbackReturn
	OnDeactivate(prev lifecycle.State) CallbackReturn
	OnCleanup(prev lifecycle.State) CallbackReturn
	OnShutdown(prev lifecycle.State) CallbackReturn
	OnError(prev lifecycle.State) CallbackReturn
}

// Driver is the capability set common to all three component kinds.
type Driver interface {
	Lifecycle

	// Core exposes the shared composition struct. Drivers get it for free by
	// embedding Base.
	Core() *Base

	// UnlistedStateDescriptions declares state interfaces beyond those in the
	// hardware description.
	UnlistedStateDescriptions() []handle.Description
}

// Reader populates state handles from hardware.
type Reader interface {
	Read(t time.Time, period time.Duration) ReturnType
}

// Writer pushes command handles to hardware.
type Writer interface {
	Write(t time.Time, period time.Duration) ReturnType
}

// ModeSwitcher lets a driver vet and apply command-mode changes. Keys not
// owned by the driver are not relevant and must be passed through as OK.
type ModeSwitcher interface {
	// PrepareCommandModeSwitch may run outside the realtime path and may
	// reject the proposed combination.
	PrepareCommandModeSwitch(startInterfaces, stopInterfaces []string) ReturnType
	// PerformCommandModeSwitch runs within the realtime path and must be fast.
	PerformCommandModeSwitch(startInterfaces, stopInterfaces []string) ReturnType
}

// CommandExporter declares command interfaces beyond those in the hardware
// description.
type CommandExporter interface {
	UnlistedCommandDescriptions() []handle.Description
}

// Actuator is the contract for 1..n DoF actuating hardware.
type Actuator interface {
	Driver
	Reader
	Writer
	ModeSwitcher
	CommandExporter
}

// Sensor is the contract for read-only hardware. Sensors have no Write and
// export no command interfaces.
type Sensor interface {
	Driver
	Reader
}

// System is the contract for composite hardware: multiple joints, sensors,
// and gpios behind one transport.
type System interface {
	Driver
	Reader
	Writer
	ModeSwitcher
	CommandExporter
}

// CycleStatus reports one TriggerRead or TriggerWrite.
type CycleStatus struct {
	// Triggered is false when an async component was still busy with its
	// previous cycle and the trigger was dropped.
	Triggered bool
	// Result is the cycle result; for async components, the most recently
	// published one.
	Result ReturnType
	// ExecutionTime is how long the cycle ran; for async components, the
	// most recently published duration. Zero when nothing has run yet.
	ExecutionTime time.Duration
}
