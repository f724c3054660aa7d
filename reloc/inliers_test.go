package reloc

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/dispatch"
)

func TestSampleInliersMonotoneUnderMasking(t *testing.T) {
	eye := make([]r3.Vector, 200)
	scene := make([]r3.Vector, 200)
	for i := range eye {
		eye[i] = r3.Vector{X: float64(i)}
		scene[i] = r3.Vector{X: float64(i)}
	}
	kps, preds := buildFrame(eye, scene)

	cfg := DefaultConfig()
	cfg.B = 20

	set := NewInlierSet(kps.W, kps.H)
	err := SampleInliers(context.Background(), dispatch.SerialDispatcher{}, set, kps, preds, cfg, false, 7)
	test.That(t, err, test.ShouldBeNil)
	firstPassCount := len(set.Indices)
	test.That(t, firstPassCount, test.ShouldBeGreaterThan, 0)

	seen := map[int]bool{}
	for _, idx := range set.Indices {
		test.That(t, seen[idx], test.ShouldBeFalse)
		seen[idx] = true
		test.That(t, set.Mask.bits[idx], test.ShouldBeTrue)
	}

	err = SampleInliers(context.Background(), dispatch.SerialDispatcher{}, set, kps, preds, cfg, true, 11)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(set.Indices), test.ShouldBeGreaterThanOrEqualTo, firstPassCount)

	seen = map[int]bool{}
	for _, idx := range set.Indices {
		test.That(t, seen[idx], test.ShouldBeFalse)
		seen[idx] = true
	}
}

func TestSampleInliersSkipsInvalidAndUnusable(t *testing.T) {
	kps, preds := buildUnusableFrame(50)
	for i := 0; i < 25; i++ {
		kps.Keypoints[i].Valid = false
		preds.Predictions[i] = singleModePrediction(r3.Vector{X: float64(i)})
	}
	cfg := DefaultConfig()
	cfg.B = 30

	set := NewInlierSet(kps.W, kps.H)
	err := SampleInliers(context.Background(), dispatch.SerialDispatcher{}, set, kps, preds, cfg, false, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(set.Indices), test.ShouldEqual, 0)
}

func TestAcceptRejectsAlreadyMaskedIndexOnlyWhenMasked(t *testing.T) {
	kps, preds := buildFrame([]r3.Vector{{X: 0}}, []r3.Vector{{X: 0}})
	set := NewInlierSet(kps.W, kps.H)
	set.Mask.bits[0] = true

	test.That(t, accept(set, kps, preds, 0, false), test.ShouldBeTrue)
	test.That(t, accept(set, kps, preds, 0, true), test.ShouldBeFalse)
}
