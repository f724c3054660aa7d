package predict

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/forest"
)

func identityMode(mean r3.Vector, n uint32) forest.Mode {
	return forest.Mode{
		Mean:      mean,
		InvCov:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		LogDetCov: 0,
		N:         n,
	}
}

func TestMergeLeafModesMergesWithinRadius(t *testing.T) {
	cfg := Config{K: 10, KIn: 50, RMerge: 0.01}
	leafModes := [][]forest.Mode{
		{identityMode(r3.Vector{X: 0, Y: 0, Z: 0}, 100)},
		{identityMode(r3.Vector{X: 0.005, Y: 0, Z: 0}, 50)},
	}

	pred := MergeLeafModes(leafModes, cfg)
	test.That(t, pred.Usable(), test.ShouldBeTrue)
	test.That(t, len(pred.Modes), test.ShouldEqual, 1)
	test.That(t, pred.Modes[0].N, test.ShouldEqual, uint32(150))
}

func TestMergeLeafModesKeepsDistinctModesSeparate(t *testing.T) {
	cfg := Config{K: 10, KIn: 50, RMerge: 0.01}
	leafModes := [][]forest.Mode{
		{identityMode(r3.Vector{X: 0, Y: 0, Z: 0}, 100)},
		{identityMode(r3.Vector{X: 5, Y: 0, Z: 0}, 50)},
	}

	pred := MergeLeafModes(leafModes, cfg)
	test.That(t, len(pred.Modes), test.ShouldEqual, 2)
	// sorted by N descending
	test.That(t, pred.Modes[0].N, test.ShouldEqual, uint32(100))
	test.That(t, pred.Modes[1].N, test.ShouldEqual, uint32(50))
}

func TestMergeLeafModesCapsAtK(t *testing.T) {
	cfg := Config{K: 2, KIn: 50, RMerge: 0.001}
	var leafModes [][]forest.Mode
	for i := 0; i < 5; i++ {
		leafModes = append(leafModes, []forest.Mode{
			identityMode(r3.Vector{X: float64(i) * 10}, uint32(10 - i)),
		})
	}

	pred := MergeLeafModes(leafModes, cfg)
	test.That(t, len(pred.Modes), test.ShouldEqual, 2)
}

func TestMergeLeafModesUnusableWhenEmpty(t *testing.T) {
	pred := MergeLeafModes(nil, Config{K: 10, KIn: 50, RMerge: 0.01})
	test.That(t, pred.Usable(), test.ShouldBeFalse)
}
