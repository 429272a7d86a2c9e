package component_test

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/lifecycle"
)

// fakeSystem lets tests script cycle results and lifecycle outcomes.
type fakeSystem struct {
	component.Base

	readResult  atomic.Int32
	writeResult atomic.Int32
	readCount   atomic.Int32
	writeCount  atomic.Int32

	configureResult component.CallbackReturn
	activateResult  component.CallbackReturn
	errorResult     component.CallbackReturn
	errorCalls      int
}

func (f *fakeSystem) Read(time.Time, time.Duration) component.ReturnType {
	f.readCount.Add(1)
	return component.ReturnType(f.readResult.Load())
}

func (f *fakeSystem) Write(time.Time, time.Duration) component.ReturnType {
	f.writeCount.Add(1)
	return component.ReturnType(f.writeResult.Load())
}

func (f *fakeSystem) OnConfigure(lifecycle.State) component.CallbackReturn {
	return f.configureResult
}

func (f *fakeSystem) OnActivate(lifecycle.State) component.CallbackReturn {
	return f.activateResult
}

func (f *fakeSystem) OnError(lifecycle.State) component.CallbackReturn {
	f.errorCalls++
	return f.errorResult
}

func oneJointInfo(name string) hwinfo.HardwareInfo {
	return hwinfo.HardwareInfo{
		Name:       name,
		Type:       hwinfo.TypeSystem,
		PluginName: "test/FakeSystem",
		Joints: []hwinfo.ComponentInfo{{
			Name: "joint1",
			CommandInterfaces: []hwinfo.InterfaceInfo{{Name: "position"}},
			StateInterfaces: []hwinfo.InterfaceInfo{
				{Name: "position", InitialValue: "1.57"},
				{Name: "velocity"},
			},
		}},
	}
}

func newFake(t *testing.T, info hwinfo.HardwareInfo) (*fakeSystem, *component.Component) {
	t.Helper()
	drv := &fakeSystem{}
	c := component.NewSystem(drv)
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldBeNil)
	return drv, c
}

func TestInitializeExportsHandles(t *testing.T) {
	_, c := newFake(t, oneJointInfo("sys"))
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)

	states := c.StateHandles()
	test.That(t, states, test.ShouldHaveLength, 2)
	test.That(t, states[0].Name(), test.ShouldEqual, "joint1/position")
	test.That(t, states[0].Value(), test.ShouldEqual, 1.57)
	test.That(t, states[1].Value(), test.ShouldEqual, 0.0)

	commands := c.CommandHandles()
	test.That(t, commands, test.ShouldHaveLength, 1)
	test.That(t, math.IsNaN(commands[0].Value()), test.ShouldBeTrue)

	// OnInit runs exactly once per component lifetime
	err := c.Initialize(oneJointInfo("sys"), golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestKindMismatch(t *testing.T) {
	drv := &fakeSystem{}
	c := component.NewSystem(drv)
	info := oneJointInfo("sys")
	info.Type = hwinfo.TypeActuator
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLifecyclePath(t *testing.T) {
	_, c := newFake(t, oneJointInfo("sys"))

	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Inactive)
	test.That(t, c.Transition(lifecycle.Activate), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Active)
	test.That(t, c.Transition(lifecycle.Deactivate), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Inactive)
	test.That(t, c.Transition(lifecycle.Cleanup), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)
	test.That(t, c.Shutdown(), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Finalized)

	// terminal: no transition leaves finalized
	err := c.Transition(lifecycle.Configure)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInvalidTransition(t *testing.T) {
	_, c := newFake(t, oneJointInfo("sys"))
	err := c.Transition(lifecycle.Activate)
	test.That(t, err, test.ShouldWrap, component.ErrTransitionInvalid)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)
}

func TestCallbackFailureKeepsState(t *testing.T) {
	drv, c := newFake(t, oneJointInfo("sys"))
	drv.configureResult = component.CallbackFailure

	err := c.Transition(lifecycle.Configure)
	test.That(t, err, test.ShouldWrap, component.ErrCallbackFailed)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)

	// re-invocation is permitted and can succeed
	drv.configureResult = component.CallbackSuccess
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Inactive)
}

func TestErrorRecoveryLadder(t *testing.T) {
	drv, c := newFake(t, oneJointInfo("sys"))
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)
	test.That(t, c.Transition(lifecycle.Activate), test.ShouldBeNil)

	cmd := c.CommandHandles()[0]
	cmd.SetBlocking(0.42)

	// first recoverable error: back to unconfigured, commands reset
	err := c.RecoverFromError()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)
	test.That(t, drv.errorCalls, test.ShouldEqual, 1)
	test.That(t, cmd.Value(), test.ShouldEqual, 0.0)

	// second error is fatal
	err = c.RecoverFromError()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Finalized)
	test.That(t, drv.errorCalls, test.ShouldEqual, 2)
}

func TestErrorCallbackFailingFinalizes(t *testing.T) {
	drv, c := newFake(t, oneJointInfo("sys"))
	drv.errorResult = component.CallbackError
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)

	err := c.RecoverFromError()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Finalized)
}

func TestActivateCallbackErrorRecovers(t *testing.T) {
	drv, c := newFake(t, oneJointInfo("sys"))
	drv.activateResult = component.CallbackError
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)

	err := c.Transition(lifecycle.Activate)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Unconfigured)
	test.That(t, drv.errorCalls, test.ShouldEqual, 1)
}

func TestInterfaceConfigurationQueries(t *testing.T) {
	_, c := newFake(t, oneJointInfo("sys"))

	_, err := c.StateInterfaceConfiguration()
	test.That(t, err, test.ShouldWrap, component.ErrNotConfigured)
	_, err = c.CommandInterfaceConfiguration()
	test.That(t, err, test.ShouldWrap, component.ErrNotConfigured)

	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)
	states, err := c.StateInterfaceConfiguration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, states, test.ShouldResemble, []string{"joint1/position", "joint1/velocity"})
	commands, err := c.CommandInterfaceConfiguration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, commands, test.ShouldResemble, []string{"joint1/position"})
}

func TestTriggerSync(t *testing.T) {
	drv, c := newFake(t, oneJointInfo("sys"))
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)

	status := c.TriggerRead(time.Now(), 10*time.Millisecond)
	test.That(t, status.Triggered, test.ShouldBeTrue)
	test.That(t, status.Result, test.ShouldEqual, component.ReturnOK)
	test.That(t, drv.readCount.Load(), test.ShouldEqual, int32(1))

	drv.writeResult.Store(int32(component.ReturnDeactivate))
	status = c.TriggerWrite(time.Now(), 10*time.Millisecond)
	test.That(t, status.Triggered, test.ShouldBeTrue)
	test.That(t, status.Result, test.ShouldEqual, component.ReturnDeactivate)
}

func TestSensorTriggerWriteIsNoop(t *testing.T) {
	drv := &fakeSensor{}
	c := component.NewSensor(drv)
	info := oneJointInfo("sensor")
	info.Type = hwinfo.TypeSensor
	info.Joints[0].CommandInterfaces = nil
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldBeNil)

	status := c.TriggerWrite(time.Now(), 10*time.Millisecond)
	test.That(t, status.Triggered, test.ShouldBeTrue)
	test.That(t, status.Result, test.ShouldEqual, component.ReturnOK)
}

type fakeSensor struct {
	component.Base
}

func (f *fakeSensor) Read(time.Time, time.Duration) component.ReturnType {
	return component.ReturnOK
}

func TestSensorRejectsCommandDeclarations(t *testing.T) {
	drv := &fakeSensor{}
	c := component.NewSensor(drv)
	info := oneJointInfo("sensor")
	info.Type = hwinfo.TypeSensor
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldNotBeNil)
}

func TestCycleStatistics(t *testing.T) {
	mockClock := clock.NewMock()
	drv := &fakeSystem{}
	c := component.NewSystem(drv)
	err := c.Initialize(oneJointInfo("sys"), golog.NewTestLogger(t), mockClock)
	test.That(t, err, test.ShouldBeNil)

	execSnap, periodSnap := c.ReadStats()
	test.That(t, execSnap.Count, test.ShouldEqual, 0)
	test.That(t, math.IsNaN(periodSnap.Mean), test.ShouldBeTrue)

	start := mockClock.Now()
	c.RecordReadCycle(start, 2*time.Millisecond)
	c.RecordReadCycle(start.Add(10*time.Millisecond), 4*time.Millisecond)
	c.RecordReadCycle(start.Add(20*time.Millisecond), 3*time.Millisecond)

	execSnap, periodSnap = c.ReadStats()
	test.That(t, execSnap.Count, test.ShouldEqual, 3)
	test.That(t, execSnap.Min, test.ShouldAlmostEqual, 0.002, 1e-12)
	test.That(t, execSnap.Max, test.ShouldAlmostEqual, 0.004, 1e-12)
	// the first cycle has no predecessor, so only two period samples exist
	test.That(t, periodSnap.Count, test.ShouldEqual, 2)
	test.That(t, periodSnap.Mean, test.ShouldAlmostEqual, 0.010, 1e-12)
	test.That(t, c.LastReadTime(), test.ShouldResemble, start.Add(20*time.Millisecond))
}

// blockingSystem parks its read until the gate opens, to exercise async
// backpressure.
type blockingSystem struct {
	component.Base
	gate       chan struct{}
	readCount  atomic.Int32
	writeCount atomic.Int32
	readSeen   atomic.Int32
}

func (b *blockingSystem) Read(time.Time, time.Duration) component.ReturnType {
	<-b.gate
	b.readCount.Add(1)
	return component.ReturnOK
}

func (b *blockingSystem) Write(time.Time, time.Duration) component.ReturnType {
	// read strictly precedes write within one worker cycle
	b.readSeen.Store(b.readCount.Load())
	b.writeCount.Add(1)
	return component.ReturnOK
}

func TestAsyncTriggerBackpressure(t *testing.T) {
	drv := &blockingSystem{gate: make(chan struct{})}
	c := component.NewSystem(drv)
	info := oneJointInfo("async_sys")
	info.IsAsync = true
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, c.Shutdown(), test.ShouldBeNil)
	}()
	test.That(t, c.IsAsync(), test.ShouldBeTrue)
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)
	test.That(t, c.Transition(lifecycle.Activate), test.ShouldBeNil)

	now := time.Now()
	first := c.TriggerRead(now, 10*time.Millisecond)
	test.That(t, first.Triggered, test.ShouldBeTrue)

	// worker is parked inside Read: the second trigger must be dropped
	// without blocking and report OK
	second := c.TriggerRead(now.Add(10*time.Millisecond), 10*time.Millisecond)
	test.That(t, second.Triggered, test.ShouldBeFalse)
	test.That(t, second.Result, test.ShouldEqual, component.ReturnOK)

	close(drv.gate)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, drv.readCount.Load(), test.ShouldEqual, int32(1))
		test.That(tb, drv.writeCount.Load(), test.ShouldEqual, int32(1))
	})
	test.That(t, drv.readSeen.Load(), test.ShouldEqual, int32(1))

	// the worker is idle again; the next trigger is accepted
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		status := c.TriggerRead(now.Add(20*time.Millisecond), 10*time.Millisecond)
		test.That(tb, status.Triggered, test.ShouldBeTrue)
	})
}

func TestAsyncDeactivateTreatedAsError(t *testing.T) {
	drv := &fakeSystem{}
	drv.readResult.Store(int32(component.ReturnDeactivate))
	c := component.NewSystem(drv)
	info := oneJointInfo("async_sys")
	info.IsAsync = true
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, c.Shutdown(), test.ShouldBeNil)
	}()
	test.That(t, c.Transition(lifecycle.Configure), test.ShouldBeNil)

	status := c.TriggerRead(time.Now(), 10*time.Millisecond)
	test.That(t, status.Triggered, test.ShouldBeTrue)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		next := c.TriggerRead(time.Now(), 10*time.Millisecond)
		test.That(tb, next.Triggered, test.ShouldBeTrue)
		test.That(tb, next.Result, test.ShouldEqual, component.ReturnError)
	})
}

func TestShutdownStopsAsyncWorker(t *testing.T) {
	drv := &fakeSystem{}
	c := component.NewSystem(drv)
	info := oneJointInfo("async_sys")
	info.IsAsync = true
	err := c.Initialize(info, golog.NewTestLogger(t), clock.New())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, c.Shutdown(), test.ShouldBeNil)
	test.That(t, c.State(), test.ShouldEqual, lifecycle.Finalized)
	test.That(t, c.IsAsync(), test.ShouldBeFalse)
}
