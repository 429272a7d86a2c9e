package utils_test

import (
	"math"
	"testing"

	"go.viam.com/test"

	"github.com/tetherworks/hwcore/utils"
)

func TestCycleStatsEmpty(t *testing.T) {
	cs := utils.NewCycleStats(4)
	snap := cs.Snapshot()
	test.That(t, snap.Count, test.ShouldEqual, 0)
	test.That(t, math.IsNaN(snap.Min), test.ShouldBeTrue)
	test.That(t, math.IsNaN(snap.Max), test.ShouldBeTrue)
	test.That(t, math.IsNaN(snap.Mean), test.ShouldBeTrue)
}

func TestCycleStatsBasics(t *testing.T) {
	cs := utils.NewCycleStats(4)
	cs.AddSample(1)
	cs.AddSample(3)
	snap := cs.Snapshot()
	test.That(t, snap.Count, test.ShouldEqual, 2)
	test.That(t, snap.Min, test.ShouldEqual, 1.0)
	test.That(t, snap.Max, test.ShouldEqual, 3.0)
	test.That(t, snap.Mean, test.ShouldEqual, 2.0)
}

func TestCycleStatsWindowWraps(t *testing.T) {
	cs := utils.NewCycleStats(3)
	for _, v := range []float64{10, 20, 30, 40} {
		cs.AddSample(v)
	}
	snap := cs.Snapshot()
	// 10 fell out of the window; total count keeps growing
	test.That(t, snap.Count, test.ShouldEqual, 4)
	test.That(t, snap.Min, test.ShouldEqual, 20.0)
	test.That(t, snap.Max, test.ShouldEqual, 40.0)
	test.That(t, snap.Mean, test.ShouldEqual, 30.0)
}

func TestCycleStatsReset(t *testing.T) {
	cs := utils.NewCycleStats(3)
	cs.AddSample(5)
	cs.Reset()
	snap := cs.Snapshot()
	test.That(t, snap.Count, test.ShouldEqual, 0)
	test.That(t, math.IsNaN(snap.Mean), test.ShouldBeTrue)
}
