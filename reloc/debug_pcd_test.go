package reloc

import (
	"bytes"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/spatialmath"
)

func TestWritePCDHeaderAndPoints(t *testing.T) {
	var buf bytes.Buffer
	points := []r3.Vector{{X: -1, Y: -2, Z: 5}, {X: 0.582, Y: 0.012, Z: 0}}

	err := WritePCD(&buf, points)
	test.That(t, err, test.ShouldBeNil)

	got := buf.String()
	test.That(t, got, test.ShouldContainSubstring, "VERSION .7\n")
	test.That(t, got, test.ShouldContainSubstring, "FIELDS x y z\n")
	test.That(t, got, test.ShouldContainSubstring, "WIDTH 2\n")
	test.That(t, got, test.ShouldContainSubstring, "HEIGHT 1\n")
	test.That(t, got, test.ShouldContainSubstring, "POINTS 2\n")
	test.That(t, got, test.ShouldContainSubstring, "DATA ascii\n")
	test.That(t, got, test.ShouldContainSubstring, "-1.000000 -2.000000 5.000000\n")
	test.That(t, got, test.ShouldContainSubstring, "0.582000 0.012000 0.000000\n")
}

func TestInlierPointsProjectsThroughPose(t *testing.T) {
	kps, _ := buildFrame([]r3.Vector{{X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}}, []r3.Vector{{X: 0}, {X: 0}})
	set := NewInlierSet(kps.W, kps.H)
	set.Indices = []int{0, 1}

	pose := spatialmath.NewPose(spatialmath.Identity(), r3.Vector{X: 5, Y: 5, Z: 5})
	pts := InlierPoints(pose, set, kps)

	test.That(t, len(pts), test.ShouldEqual, 2)
	test.That(t, pts[0].Sub(r3.Vector{X: 6, Y: 5, Z: 5}).Norm(), test.ShouldBeLessThan, 1e-9)
	test.That(t, pts[1].Sub(r3.Vector{X: 5, Y: 6, Z: 5}).Norm(), test.ShouldBeLessThan, 1e-9)
}
