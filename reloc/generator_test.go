package reloc

import (
	"context"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/dispatch"
)

func TestGenerateCandidatesProducesRigidTransforms(t *testing.T) {
	eye := []r3.Vector{
		{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1},
		{X: 1, Y: 1, Z: 1}, {X: 0.5, Y: 0.5, Z: 2},
	}
	offset := r3.Vector{X: 5, Y: -1, Z: 0.5}
	scene := make([]r3.Vector, len(eye))
	for i, p := range eye {
		scene[i] = p.Add(offset)
	}
	kps, preds := buildFrame(eye, scene)

	cfg := DefaultConfig()
	cfg.MMax = 32

	candidates, err := GenerateCandidates(context.Background(), dispatch.SerialDispatcher{}, kps, preds, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(candidates), test.ShouldBeGreaterThan, 0)
	test.That(t, len(candidates), test.ShouldBeLessThanOrEqualTo, cfg.MMax)

	for _, c := range candidates {
		for _, corr := range c.Correspondences {
			got := c.Pose.Transform(corr.EyePos)
			test.That(t, got.Sub(corr.ScenePos).Norm(), test.ShouldBeLessThan, 1e-6)
		}
	}
}

func TestGenerateCandidatesExhaustsRetryBudgetWithTooFewPoints(t *testing.T) {
	eye := []r3.Vector{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}}
	scene := []r3.Vector{{X: 5, Y: -1, Z: 1.5}, {X: 6, Y: -1, Z: 1.5}}
	kps, preds := buildFrame(eye, scene)

	cfg := DefaultConfig()
	cfg.MMax = 16
	cfg.RetryBudget = 50

	candidates, err := GenerateCandidates(context.Background(), dispatch.SerialDispatcher{}, kps, preds, cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(candidates), test.ShouldEqual, 0)
}

func TestPassesGeometricFiltersRejectsClosePoints(t *testing.T) {
	cfg := DefaultConfig()
	corr := [3]Correspondence{
		{EyePos: r3.Vector{X: 0}, ScenePos: r3.Vector{X: 0}},
		{EyePos: r3.Vector{X: 1}, ScenePos: r3.Vector{X: 0.001}},
		{EyePos: r3.Vector{X: 2}, ScenePos: r3.Vector{X: 2}},
	}
	test.That(t, passesGeometricFilters(corr, cfg), test.ShouldBeFalse)
}

func TestPassesGeometricFiltersRejectsNonRigidTriple(t *testing.T) {
	cfg := DefaultConfig()
	corr := [3]Correspondence{
		{EyePos: r3.Vector{X: 0}, ScenePos: r3.Vector{X: 0}},
		{EyePos: r3.Vector{X: 1}, ScenePos: r3.Vector{X: 5}},
		{EyePos: r3.Vector{X: 2}, ScenePos: r3.Vector{X: 10}},
	}
	test.That(t, passesGeometricFilters(corr, cfg), test.ShouldBeFalse)
}

func TestPassesGeometricFiltersAcceptsConsistentTriple(t *testing.T) {
	cfg := DefaultConfig()
	corr := [3]Correspondence{
		{EyePos: r3.Vector{X: 0, Y: 0, Z: 1}, ScenePos: r3.Vector{X: 3, Y: 0, Z: 1}},
		{EyePos: r3.Vector{X: 1, Y: 0, Z: 1}, ScenePos: r3.Vector{X: 4, Y: 0, Z: 1}},
		{EyePos: r3.Vector{X: 0, Y: 1, Z: 1}, ScenePos: r3.Vector{X: 3, Y: 1, Z: 1}},
	}
	test.That(t, passesGeometricFilters(corr, cfg), test.ShouldBeTrue)
}
