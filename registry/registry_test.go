package registry_test

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/tetherworks/hwcore/component"
	"github.com/tetherworks/hwcore/hwinfo"
	"github.com/tetherworks/hwcore/registry"
)

type noopSensor struct {
	component.Base
}

func (n *noopSensor) Read(time.Time, time.Duration) component.ReturnType {
	return component.ReturnOK
}

func init() {
	registry.RegisterSensor("registrytest/NoopSensor", func() component.Sensor { return &noopSensor{} })
}

func TestLookup(t *testing.T) {
	c, err := registry.NewComponent(hwinfo.HardwareInfo{
		Name:       "imu",
		Type:       hwinfo.TypeSensor,
		PluginName: "registrytest/NoopSensor",
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.Kind(), test.ShouldEqual, component.KindSensor)
}

func TestUnknownPlugin(t *testing.T) {
	_, err := registry.NewComponent(hwinfo.HardwareInfo{
		Name:       "imu",
		Type:       hwinfo.TypeSensor,
		PluginName: "nobody/Registered",
	})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = registry.NewComponent(hwinfo.HardwareInfo{
		Name:       "imu",
		Type:       hwinfo.TypeActuator,
		PluginName: "registrytest/NoopSensor",
	})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		test.That(t, recover(), test.ShouldNotBeNil)
	}()
	registry.RegisterSensor("registrytest/NoopSensor", func() component.Sensor { return &noopSensor{} })
}
