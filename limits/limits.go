// Package limits rewrites joint commands in place so hardware never sees a
// reference outside its declared bounds, regardless of what a controller
// asked for.
package limits

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
)

// JointLimiter bounds the commands of one joint. All handle references are
// optional; a limiter only touches what exists.
type JointLimiter struct {
	joint  string
	limits hwinfo.JointLimits

	positionCmd     *handle.CommandInterface
	velocityCmd     *handle.CommandInterface
	accelerationCmd *handle.CommandInterface
	effortCmd       *handle.CommandInterface

	measuredPosition *handle.StateInterface
	measuredVelocity *handle.StateInterface

	// lastEnforcedPosition is the last bounded position command. Once set it
	// anchors the velocity-derived bound in place of the measured position.
	lastEnforcedPosition float64
}

// NewJointLimiter builds a limiter for one joint.
func NewJointLimiter(joint string, jl hwinfo.JointLimits) (*JointLimiter, error) {
	if joint == "" {
		return nil, errors.New("joint limiter needs a joint name")
	}
	if jl.HasPositionLimits && jl.MinPosition > jl.MaxPosition {
		return nil, errors.Errorf("joint %q: min_position above max_position", joint)
	}
	return &JointLimiter{joint: joint, limits: jl, lastEnforcedPosition: math.NaN()}, nil
}

// Joint returns the limited joint's name.
func (l *JointLimiter) Joint() string { return l.joint }

// BindCommandHandles attaches the joint's command handles. Nil entries are
// skipped during enforcement.
func (l *JointLimiter) BindCommandHandles(position, velocity, acceleration, effort *handle.CommandInterface) {
	l.positionCmd = position
	l.velocityCmd = velocity
	l.accelerationCmd = acceleration
	l.effortCmd = effort
}

// BindStateHandles attaches the joint's measured-state handles.
func (l *JointLimiter) BindStateHandles(position, velocity *handle.StateInterface) {
	l.measuredPosition = position
	l.measuredVelocity = velocity
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Enforce rewrites the joint's commands so they respect the declared bounds
// and lie within one velocity-limit step of the reference position (see
// referencePosition). It reports
// whether any command changed. Enforcing an already-bounded command is a
// no-op, so repeated enforcement is stable.
func (l *JointLimiter) Enforce(period time.Duration) bool {
	if l.limits.Empty() {
		return false
	}
	changed := false
	dt := period.Seconds()

	if l.positionCmd != nil {
		cmd := l.positionCmd.Value()
		if !math.IsNaN(cmd) {
			bounded := cmd
			if l.limits.HasPositionLimits {
				bounded = clamp(bounded, l.limits.MinPosition, l.limits.MaxPosition)
			}
			if l.limits.HasVelocityLimits && dt > 0 {
				ref := l.referencePosition()
				if !math.IsNaN(ref) {
					step := l.limits.MaxVelocity * dt
					bounded = clamp(bounded, ref-step, ref+step)
				}
			}
			if bounded != cmd {
				l.positionCmd.SetBlocking(bounded)
				changed = true
			}
			l.lastEnforcedPosition = bounded
		}
	}

	if l.velocityCmd != nil && l.limits.HasVelocityLimits {
		cmd := l.velocityCmd.Value()
		if !math.IsNaN(cmd) {
			bounded := clamp(cmd, -l.limits.MaxVelocity, l.limits.MaxVelocity)
			if bounded != cmd {
				l.velocityCmd.SetBlocking(bounded)
				changed = true
			}
		}
	}

	if l.accelerationCmd != nil && l.limits.HasAccelerationLimits {
		cmd := l.accelerationCmd.Value()
		if !math.IsNaN(cmd) {
			bounded := clamp(cmd, -l.limits.MaxAcceleration, l.limits.MaxAcceleration)
			if bounded != cmd {
				l.accelerationCmd.SetBlocking(bounded)
				changed = true
			}
		}
	}

	if l.effortCmd != nil && l.limits.HasEffortLimits {
		cmd := l.effortCmd.Value()
		if !math.IsNaN(cmd) {
			bounded := clamp(cmd, -l.limits.MaxEffort, l.limits.MaxEffort)
			if bounded != cmd {
				l.effortCmd.SetBlocking(bounded)
				changed = true
			}
		}
	}

	return changed
}

// referencePosition anchors the velocity-derived position bound. The first
// enforcement integrates from the measured position; afterwards the last
// enforced command is the anchor, so a controller holding an out-of-range
// reference walks toward it one velocity step per period instead of being
// pinned to a stale measurement.
func (l *JointLimiter) referencePosition() float64 {
	if !math.IsNaN(l.lastEnforcedPosition) {
		return l.lastEnforcedPosition
	}
	if l.measuredPosition != nil {
		return l.measuredPosition.Value()
	}
	return math.NaN()
}
