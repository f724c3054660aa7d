package forest

import (
	"bytes"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func sampleForest() *Forest {
	return &Forest{
		TreeCount:       2,
		MaxModesPerLeaf: 50,
		FeatureCount:    128,
		Trees: []Tree{
			{
				Nodes: []Node{
					{LeftChild: 1, RightChild: 2, FeatureIndex: 3, Threshold: 0.5},
					{LeftChild: LeafSentinel, RightChild: LeafSentinel, FeatureIndex: 0, Threshold: 0},
					{LeftChild: LeafSentinel, RightChild: LeafSentinel, FeatureIndex: 0, Threshold: 0},
				},
				Leaves: []Leaf{
					{Modes: []Mode{sampleMode(1, 10)}},
					{Modes: []Mode{sampleMode(2, 5), sampleMode(3, 1)}},
				},
			},
			{
				Nodes: []Node{
					{LeftChild: LeafSentinel, RightChild: LeafSentinel},
				},
				Leaves: []Leaf{
					{Modes: []Mode{}},
				},
			},
		},
	}
}

func sampleMode(seed float64, n uint32) Mode {
	return Mode{
		Mean:      r3.Vector{X: seed, Y: seed * 2, Z: seed * 3},
		InvCov:    [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
		LogDetCov: 0.25 * seed,
		N:         n,
		ColorRGB:  [3]uint8{uint8(seed), uint8(seed + 1), uint8(seed + 2)},
	}
}

func TestForestRoundTrip(t *testing.T) {
	want := sampleForest()

	var buf bytes.Buffer
	test.That(t, Save(&buf, want), test.ShouldBeNil)

	got, err := Load(&buf)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, got.TreeCount, test.ShouldEqual, want.TreeCount)
	test.That(t, got.MaxModesPerLeaf, test.ShouldEqual, want.MaxModesPerLeaf)
	test.That(t, got.FeatureCount, test.ShouldEqual, want.FeatureCount)
	test.That(t, len(got.Trees), test.ShouldEqual, len(want.Trees))

	for i := range want.Trees {
		test.That(t, got.Trees[i].Nodes, test.ShouldResemble, want.Trees[i].Nodes)
		test.That(t, got.Trees[i].Leaves, test.ShouldResemble, want.Trees[i].Leaves)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("XXXX")
	_, err := Load(buf)
	test.That(t, err, test.ShouldNotBeNil)
	le, ok := err.(*LoadError)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, le.Kind, test.ShouldEqual, "format")
}

func TestLoadRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(magic)
	test.That(t, writeU32(&buf, 99), test.ShouldBeNil)
	_, err := Load(&buf)
	test.That(t, err, test.ShouldNotBeNil)
	le, ok := err.(*LoadError)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, le.Kind, test.ShouldEqual, "version")
}

func TestTreeWalk(t *testing.T) {
	f := sampleForest()
	tr := &f.Trees[0]
	tr.buildLeafIndex()

	leafIdx := tr.Walk([]float32{0, 0, 0, 0.1}) // feature 3 < 0.5 -> left -> leaf 0
	test.That(t, leafIdx, test.ShouldEqual, int32(0))

	leafIdx = tr.Walk([]float32{0, 0, 0, 0.9}) // feature 3 >= 0.5 -> right -> leaf 1
	test.That(t, leafIdx, test.ShouldEqual, int32(1))
}
