package reloc

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/spatialmath"
)

func TestRefineCandidateConvergesFromExactPose(t *testing.T) {
	eye := []r3.Vector{
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 2},
	}
	offset := r3.Vector{X: 3, Y: -2, Z: 1}
	scene := make([]r3.Vector, len(eye))
	for i, p := range eye {
		scene[i] = p.Add(offset)
	}
	kps, preds := buildFrame(eye, scene)

	inliers := NewInlierSet(kps.W, kps.H)
	inliers.Indices = []int{0, 1, 2, 3}

	cfg := DefaultConfig()
	c := Candidate{Pose: spatialmath.NewPose(spatialmath.Identity(), offset)}

	RefineCandidate(&c, inliers, kps, preds, cfg)
	test.That(t, c.Energy, test.ShouldNotEqual, demotedEnergy)
	for i, p := range eye {
		got := c.Pose.Transform(p)
		test.That(t, got.Sub(scene[i]).Norm(), test.ShouldBeLessThan, 1e-3)
	}
}

func TestRefineCandidateImprovesPerturbedPose(t *testing.T) {
	eye := []r3.Vector{
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 2},
	}
	offset := r3.Vector{X: 3, Y: -2, Z: 1}
	scene := make([]r3.Vector, len(eye))
	for i, p := range eye {
		scene[i] = p.Add(offset)
	}
	kps, preds := buildFrame(eye, scene)

	inliers := NewInlierSet(kps.W, kps.H)
	inliers.Indices = []int{0, 1, 2, 3}

	cfg := DefaultConfig()
	perturbed := offset.Add(r3.Vector{X: 0.2, Y: -0.15, Z: 0.1})
	c := Candidate{Pose: spatialmath.NewPose(spatialmath.Identity(), perturbed)}

	before := weightedResidualCost(c.Pose, eye, scene, []float64{1, 1, 1, 1})
	RefineCandidate(&c, inliers, kps, preds, cfg)
	after := weightedResidualCost(c.Pose, eye, scene, []float64{1, 1, 1, 1})
	test.That(t, after, test.ShouldBeLessThan, before)
}

func TestRefineCandidateTooFewInliersIsDemoted(t *testing.T) {
	eye := []r3.Vector{{X: 0, Y: 0, Z: 1}}
	scene := []r3.Vector{{X: 3, Y: -2, Z: 2}}
	kps, preds := buildFrame(eye, scene)

	inliers := NewInlierSet(kps.W, kps.H)
	inliers.Indices = []int{0}

	cfg := DefaultConfig()
	c := Candidate{Pose: spatialmath.NewPose(spatialmath.Identity(), r3.Vector{})}
	RefineCandidate(&c, inliers, kps, preds, cfg)
	test.That(t, c.Energy, test.ShouldEqual, demotedEnergy)
}
