package limits_test

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/limits"
)

func jointHandles(t *testing.T) (*handle.CommandInterface, *handle.StateInterface) {
	t.Helper()
	cmd, err := handle.NewCommandInterface(handle.Description{Prefix: "joint1", InterfaceName: "position"})
	test.That(t, err, test.ShouldBeNil)
	state, err := handle.NewStateInterface(handle.Description{Prefix: "joint1", InterfaceName: "position", InitialValue: "1.05"})
	test.That(t, err, test.ShouldBeNil)
	return cmd, state
}

func TestPositionVelocityBound(t *testing.T) {
	limiter, err := limits.NewJointLimiter("joint1", hwinfo.JointLimits{
		HasPositionLimits: true, MinPosition: -math.Pi, MaxPosition: math.Pi,
		HasVelocityLimits: true, MaxVelocity: 0.2,
	})
	test.That(t, err, test.ShouldBeNil)

	cmd, state := jointHandles(t)
	limiter.BindCommandHandles(cmd, nil, nil, nil)
	limiter.BindStateHandles(state, nil)

	// a jump request moves one velocity-limit step from the measured position
	cmd.SetBlocking(10.0)
	changed := limiter.Enforce(10 * time.Millisecond)
	test.That(t, changed, test.ShouldBeTrue)
	test.That(t, cmd.Value(), test.ShouldAlmostEqual, 1.052, 1e-9)

	// re-enforcing the bounded command is a no-op
	changed = limiter.Enforce(10 * time.Millisecond)
	test.That(t, changed, test.ShouldBeFalse)
	test.That(t, cmd.Value(), test.ShouldAlmostEqual, 1.052, 1e-9)
}

func TestPositionApproachesBoundAsymptotically(t *testing.T) {
	limiter, err := limits.NewJointLimiter("joint1", hwinfo.JointLimits{
		HasPositionLimits: true, MinPosition: -math.Pi, MaxPosition: math.Pi,
		HasVelocityLimits: true, MaxVelocity: 0.2,
	})
	test.That(t, err, test.ShouldBeNil)

	cmd, state := jointHandles(t)
	limiter.BindCommandHandles(cmd, nil, nil, nil)
	limiter.BindStateHandles(state, nil)

	// the controller keeps asking for an out-of-range position; each
	// enforcement walks one velocity step toward the bound, never past it
	prev := state.Value()
	for i := 0; i < 1200; i++ {
		cmd.SetBlocking(10.0)
		limiter.Enforce(10 * time.Millisecond)
		v := cmd.Value()
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, math.Pi)
		test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, prev)
		prev = v
	}
	test.That(t, prev, test.ShouldAlmostEqual, math.Pi, 1e-9)
}

func TestVelocityAccelerationEffortClamp(t *testing.T) {
	limiter, err := limits.NewJointLimiter("joint1", hwinfo.JointLimits{
		HasVelocityLimits: true, MaxVelocity: 0.2,
		HasAccelerationLimits: true, MaxAcceleration: 1.5,
		HasEffortLimits: true, MaxEffort: 10,
	})
	test.That(t, err, test.ShouldBeNil)

	vel, err := handle.NewCommandInterface(handle.Description{Prefix: "joint1", InterfaceName: "velocity"})
	test.That(t, err, test.ShouldBeNil)
	acc, err := handle.NewCommandInterface(handle.Description{Prefix: "joint1", InterfaceName: "acceleration"})
	test.That(t, err, test.ShouldBeNil)
	eff, err := handle.NewCommandInterface(handle.Description{Prefix: "joint1", InterfaceName: "effort"})
	test.That(t, err, test.ShouldBeNil)
	limiter.BindCommandHandles(nil, vel, acc, eff)

	vel.SetBlocking(-3.0)
	acc.SetBlocking(2.0)
	eff.SetBlocking(11.0)
	test.That(t, limiter.Enforce(10*time.Millisecond), test.ShouldBeTrue)
	test.That(t, vel.Value(), test.ShouldEqual, -0.2)
	test.That(t, acc.Value(), test.ShouldEqual, 1.5)
	test.That(t, eff.Value(), test.ShouldEqual, 10.0)

	// in-bounds commands pass through untouched
	vel.SetBlocking(0.1)
	test.That(t, limiter.Enforce(10*time.Millisecond), test.ShouldBeFalse)
	test.That(t, vel.Value(), test.ShouldEqual, 0.1)
}

func TestUnsetCommandsIgnored(t *testing.T) {
	limiter, err := limits.NewJointLimiter("joint1", hwinfo.JointLimits{
		HasVelocityLimits: true, MaxVelocity: 0.2,
	})
	test.That(t, err, test.ShouldBeNil)
	vel, err := handle.NewCommandInterface(handle.Description{Prefix: "joint1", InterfaceName: "velocity"})
	test.That(t, err, test.ShouldBeNil)
	limiter.BindCommandHandles(nil, vel, nil, nil)

	test.That(t, limiter.Enforce(10*time.Millisecond), test.ShouldBeFalse)
	test.That(t, math.IsNaN(vel.Value()), test.ShouldBeTrue)
}

func TestInvalidLimits(t *testing.T) {
	_, err := limits.NewJointLimiter("", hwinfo.JointLimits{})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = limits.NewJointLimiter("joint1", hwinfo.JointLimits{
		HasPositionLimits: true, MinPosition: 1, MaxPosition: -1,
	})
	test.That(t, err, test.ShouldNotBeNil)
}
