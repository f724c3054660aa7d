package reloc

import (
	"context"
	"math"
	"math/rand"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/scorereloc/dispatch"
	"github.com/viam-labs/scorereloc/spatialmath"
)

// GenerateCandidates produces up to cfg.MMax candidates (component 4.C).
// Each of the MMax slots independently samples a correspondence triple,
// retrying up to cfg.RetryBudget times before the slot is dropped. The
// generator emits a dense prefix of valid candidates via d's atomic
// counter; slot order has no bearing on the output order (spec's
// unspecified-ordering guarantee), so the returned slice's length, not its
// per-index origin, is the contract callers can rely on.
func GenerateCandidates(ctx context.Context, d dispatch.Dispatcher, kps KeypointImage, preds PredictionImage, cfg Config) ([]Candidate, error) {
	slots := make([]*Candidate, cfg.MMax)
	counter := d.NewCounter()

	err := d.ParallelFor(ctx, cfg.MMax, func(ctx context.Context, slot int) error {
		rng := dispatch.SlotRand(cfg.RngSeed, slot)
		cand, ok := generateOneCandidate(rng, kps, preds, cfg)
		if !ok {
			return nil
		}
		idx := counter.Add(1) - 1
		cand.originalIndex = int(idx)
		slots[idx] = cand
		return nil
	})
	if err != nil {
		return nil, err
	}

	n := int(counter.Load())
	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		if slots[i] != nil {
			out = append(out, *slots[i])
		}
	}
	return out, nil
}

func generateOneCandidate(rng *rand.Rand, kps KeypointImage, preds PredictionImage, cfg Config) (*Candidate, bool) {
	for attempt := 0; attempt < cfg.RetryBudget; attempt++ {
		var corr [3]Correspondence
		ok := true
		for i := 0; i < 3; i++ {
			c, sampled := sampleCorrespondence(rng, kps, preds, cfg.UseAllModes)
			if !sampled {
				ok = false
				break
			}
			corr[i] = c
		}
		if !ok {
			continue
		}

		if !passesGeometricFilters(corr, cfg) {
			continue
		}

		src := []r3.Vector{corr[0].EyePos, corr[1].EyePos, corr[2].EyePos}
		dst := []r3.Vector{corr[0].ScenePos, corr[1].ScenePos, corr[2].ScenePos}
		pose, err := spatialmath.Kabsch(src, dst)
		if err != nil {
			continue
		}

		return &Candidate{Pose: pose, Correspondences: corr, InUse: true}, true
	}
	return nil, false
}

func sampleCorrespondence(rng *rand.Rand, kps KeypointImage, preds PredictionImage, useAllModes bool) (Correspondence, bool) {
	idx := rng.Intn(kps.Len())
	kp := kps.At(idx)
	if !kp.Valid {
		return Correspondence{}, false
	}
	pred := preds.At(idx)
	if !pred.Usable() {
		return Correspondence{}, false
	}

	modeIdx := 0
	if useAllModes {
		modeIdx = rng.Intn(len(pred.Modes))
	}

	return Correspondence{
		KeypointIdx: idx,
		EyePos:      kp.Pos,
		ScenePos:    pred.Modes[modeIdx].Mean,
		ModeIdx:     modeIdx,
	}, true
}

// passesGeometricFilters applies the minimum-separation and
// rigid-transform-consistency tests to a sampled correspondence triple.
func passesGeometricFilters(corr [3]Correspondence, cfg Config) bool {
	if cfg.CheckMinDistance {
		dMinSq := cfg.DMin * cfg.DMin
		for i := 0; i < 3; i++ {
			for j := i + 1; j < 3; j++ {
				d2 := corr[i].ScenePos.Sub(corr[j].ScenePos).Norm2()
				if d2 < dMinSq {
					return false
				}
			}
		}
	}
	if cfg.CheckRigidTransform {
		for i := 0; i < 3; i++ {
			for j := i + 1; j < 3; j++ {
				sceneDist := corr[i].ScenePos.Sub(corr[j].ScenePos).Norm()
				eyeDist := corr[i].EyePos.Sub(corr[j].EyePos).Norm()
				if math.Abs(sceneDist-eyeDist) > cfg.TauT {
					return false
				}
			}
		}
	}
	return true
}
