// Package mock provides a hardware-free system driver that mirrors commands
// back into states. It backs tests and bring-up of controller stacks before
// real hardware exists.
package mock

import (
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/handle"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/registry"
)

// PluginName is the registry name of the generic mock system driver.
const PluginName = "hwcore/GenericSystem"

func init() {
	registry.RegisterSystem(PluginName, func() component.System { return &GenericSystem{} })
}

// options are the recognized free-form parameters. All of them are optional.
type options struct {
	MockSensorCommands bool `mapstructure:"mock_sensor_commands"`
	MockGPIOCommands   bool `mapstructure:"mock_gpio_commands"`
	DisableCommands    bool `mapstructure:"disable_commands"`
	CalculateDynamics  bool `mapstructure:"calculate_dynamics"`

	PositionStateFollowingOffset       float64 `mapstructure:"position_state_following_offset"`
	CustomInterfaceWithFollowingOffset string  `mapstructure:"custom_interface_with_following_offset"`

	ExampleParamReadForSec  float64 `mapstructure:"example_param_read_for_sec"`
	ExampleParamWriteForSec float64 `mapstructure:"example_param_write_for_sec"`
}

// GenericSystem mirrors every written command into the matching state
// interface on read, optionally integrating simple joint dynamics, offsetting
// position states, or exposing sensor/gpio states as commandable mirrors.
type GenericSystem struct {
	component.Base

	cfg       options
	cfgLoaded bool

	// modes tracks the active movement command interface per joint when
	// dynamics are calculated.
	modes map[string]string
}

func (g *GenericSystem) loadConfig() error {
	if g.cfgLoaded {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &g.cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(g.HardwareInfo().Parameters); err != nil {
		return err
	}
	g.cfgLoaded = true
	return nil
}

// UnlistedCommandDescriptions adds a command mirror for every sensor or gpio
// state interface that lacks a declared command, when the corresponding mock
// flag is set.
func (g *GenericSystem) UnlistedCommandDescriptions() []handle.Description {
	if err := g.loadConfig(); err != nil {
		return nil
	}
	info := g.HardwareInfo()
	declared := map[string]bool{}
	for _, d := range info.CommandDescriptions() {
		declared[d.Name()] = true
	}
	var out []handle.Description
	if g.cfg.MockSensorCommands {
		for _, ci := range info.Sensors {
			for _, ii := range ci.StateInterfaces {
				desc := ii.Description(ci.Name)
				if !declared[desc.Name()] {
					out = append(out, desc)
				}
			}
		}
	}
	if g.cfg.MockGPIOCommands {
		for _, ci := range info.GPIOs {
			for _, ii := range ci.StateInterfaces {
				desc := ii.Description(ci.Name)
				if !declared[desc.Name()] {
					out = append(out, desc)
				}
			}
		}
	}
	return out
}

// OnInit validates the parameters and seeds the per-joint control modes.
func (g *GenericSystem) OnInit() component.CallbackReturn {
	if err := g.loadConfig(); err != nil {
		g.Logger().Errorw("bad mock parameters", "error", err)
		return component.CallbackError
	}
	g.modes = map[string]string{}
	for _, joint := range g.HardwareInfo().Joints {
		for _, ii := range joint.CommandInterfaces {
			if handle.IsMovementInterface(ii.Name) && ii.Name != handle.Effort {
				g.modes[joint.Name] = ii.Name
				break
			}
		}
	}
	return component.CallbackSuccess
}

// offsetTarget resolves where the position-following offset lands for a
// joint: the custom interface when one is configured and declared, the plain
// position state when no custom name is set, or nowhere at all when the
// configured custom interface is missing.
func (g *GenericSystem) offsetTarget(joint string) (target string, plainPosition bool) {
	if g.cfg.PositionStateFollowingOffset == 0 {
		return "", true
	}
	custom := g.cfg.CustomInterfaceWithFollowingOffset
	if custom == "" {
		return handle.Key(joint, handle.Position), false
	}
	key := handle.Key(joint, custom)
	if g.HasStateInterface(key) {
		return key, true
	}
	return "", true
}

// Read mirrors commands into states, applying dynamics and offsets.
func (g *GenericSystem) Read(_ time.Time, period time.Duration) component.ReturnType {
	if g.cfg.ExampleParamReadForSec > 0 {
		g.Clock().Sleep(time.Duration(g.cfg.ExampleParamReadForSec * float64(time.Second)))
	}
	if g.cfg.DisableCommands {
		return component.ReturnOK
	}
	info := g.HardwareInfo()
	for _, joint := range info.Joints {
		g.readJoint(joint.Name, joint.StateInterfaces, period)
	}
	for _, sensor := range info.Sensors {
		g.mirror(sensor.Name, sensor.StateInterfaces)
	}
	for _, gpio := range info.GPIOs {
		g.mirror(gpio.Name, gpio.StateInterfaces)
	}
	return component.ReturnOK
}

func (g *GenericSystem) readJoint(joint string, states []hwinfo.InterfaceInfo, period time.Duration) {
	if g.cfg.CalculateDynamics {
		g.integrate(joint, period.Seconds())
	}
	offsetKey, mirrorPlainPosition := g.offsetTarget(joint)
	for _, ii := range states {
		iface := ii.Name
		if g.cfg.CalculateDynamics && isDynamicsInterface(iface) {
			continue
		}
		stateKey := handle.Key(joint, iface)
		if iface == handle.Position {
			cmdKey := stateKey
			if !g.HasCommandInterface(cmdKey) {
				continue
			}
			cmd := g.Command(cmdKey)
			if math.IsNaN(cmd) {
				continue
			}
			if offsetKey != "" {
				g.SetState(offsetKey, cmd+g.cfg.PositionStateFollowingOffset)
			}
			if mirrorPlainPosition && offsetKey != stateKey {
				g.SetState(stateKey, cmd)
			}
			continue
		}
		if !g.HasCommandInterface(stateKey) {
			continue
		}
		if cmd := g.Command(stateKey); !math.IsNaN(cmd) {
			g.SetState(stateKey, cmd)
		}
	}
}

// mirror copies set commands into states key for key; used for sensors and
// gpios where mirrors exist either declared or mocked in.
func (g *GenericSystem) mirror(prefix string, states []hwinfo.InterfaceInfo) {
	for _, ii := range states {
		key := handle.Key(prefix, ii.Name)
		if !g.HasCommandInterface(key) {
			continue
		}
		if cmd := g.Command(key); !math.IsNaN(cmd) {
			g.SetState(key, cmd)
		}
	}
}

func isDynamicsInterface(name string) bool {
	return name == handle.Position || name == handle.Velocity || name == handle.Acceleration
}

// integrate advances one joint's position/velocity/acceleration states under
// the joint's active control mode.
func (g *GenericSystem) integrate(joint string, dt float64) {
	if dt <= 0 {
		return
	}
	posKey := handle.Key(joint, handle.Position)
	velKey := handle.Key(joint, handle.Velocity)
	accKey := handle.Key(joint, handle.Acceleration)

	stateOf := func(key string) float64 {
		if g.HasStateInterface(key) {
			if v := g.State(key); !math.IsNaN(v) {
				return v
			}
		}
		return 0
	}
	setIf := func(key string, v float64) {
		if g.HasStateInterface(key) {
			g.SetState(key, v)
		}
	}

	pos := stateOf(posKey)
	vel := stateOf(velKey)
	acc := stateOf(accKey)

	switch g.modes[joint] {
	case handle.Position:
		if !g.HasCommandInterface(posKey) {
			return
		}
		cmd := g.Command(posKey)
		if math.IsNaN(cmd) {
			return
		}
		newVel := (cmd - pos) / dt
		setIf(posKey, cmd)
		setIf(velKey, newVel)
		setIf(accKey, (newVel-vel)/dt)
	case handle.Velocity:
		if !g.HasCommandInterface(velKey) {
			return
		}
		cmd := g.Command(velKey)
		if math.IsNaN(cmd) {
			return
		}
		setIf(posKey, pos+vel*dt)
		setIf(velKey, cmd)
		setIf(accKey, (cmd-vel)/dt)
	case handle.Acceleration:
		if !g.HasCommandInterface(accKey) {
			return
		}
		setIf(posKey, pos+vel*dt)
		setIf(velKey, vel+acc*dt)
		if cmd := g.Command(accKey); !math.IsNaN(cmd) {
			setIf(accKey, cmd)
		}
	}
}

// PrepareCommandModeSwitch vets a proposed switch when dynamics are
// calculated: each of this system's joints may start at most one movement
// interface, and only position, velocity, or acceleration qualify. Keys not
// belonging to a joint of this system pass through.
func (g *GenericSystem) PrepareCommandModeSwitch(startInterfaces, _ []string) component.ReturnType {
	if !g.cfg.CalculateDynamics {
		return component.ReturnOK
	}
	joints := g.jointSet()
	starting := map[string]int{}
	for _, key := range startInterfaces {
		prefix, iface, err := handle.SplitKey(key)
		if err != nil || !joints[prefix] {
			continue
		}
		if !isDynamicsInterface(iface) {
			g.Logger().Errorw("unsupported control mode interface", "interface", key)
			return component.ReturnError
		}
		starting[prefix]++
		if starting[prefix] > 1 {
			g.Logger().Errorw("joint would start multiple movement interfaces", "joint", prefix)
			return component.ReturnError
		}
	}
	return component.ReturnOK
}

// PerformCommandModeSwitch records the new movement mode per joint.
func (g *GenericSystem) PerformCommandModeSwitch(startInterfaces, _ []string) component.ReturnType {
	if !g.cfg.CalculateDynamics {
		return component.ReturnOK
	}
	joints := g.jointSet()
	for _, key := range startInterfaces {
		prefix, iface, err := handle.SplitKey(key)
		if err != nil || !joints[prefix] {
			continue
		}
		if isDynamicsInterface(iface) {
			g.modes[prefix] = iface
		}
	}
	return component.ReturnOK
}

func (g *GenericSystem) jointSet() map[string]bool {
	out := map[string]bool{}
	for _, joint := range g.HardwareInfo().Joints {
		out[joint.Name] = true
	}
	return out
}

// Write drops the commands; the mirror happens on Read.
func (g *GenericSystem) Write(_ time.Time, _ time.Duration) component.ReturnType {
	if g.cfg.ExampleParamWriteForSec > 0 {
		g.Clock().Sleep(time.Duration(g.cfg.ExampleParamWriteForSec * float64(time.Second)))
	}
	return component.ReturnOK
}
