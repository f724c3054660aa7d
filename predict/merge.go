// Package predict implements the Prediction Merger (component 4.B): it
// takes the per-tree leaf-attached modal clusters the forest evaluator
// found for a keypoint and reduces them, via greedy radius-based
// clustering, to at most K modes describing that keypoint's scene-space
// position.
package predict

import (
	"context"
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/viam-labs/scorereloc/dispatch"
	"github.com/viam-labs/scorereloc/forest"
)

// Config holds the merger's tunables, named to match the configuration
// table: K (output cap), KIn (per-tree input cap), RMerge (merge radius,
// metres).
type Config struct {
	K      int
	KIn    int
	RMerge float64
}

// Prediction is a keypoint's merged, at-most-K-mode Gaussian mixture,
// sorted by sample count descending. A zero-length Prediction marks the
// keypoint unusable.
type Prediction struct {
	Modes []forest.Mode
}

// Usable reports whether p has at least one mode.
func (p Prediction) Usable() bool {
	return len(p.Modes) > 0
}

// MergeLeafModes runs the greedy radius-based clustering algorithm on the
// modes attached to one keypoint's T leaves (one slice per tree), per the
// merger's four-step description: concatenate up to a T*KIn cap, sort by
// sample count descending, then greedily merge-or-append-or-discard each
// candidate against the current output list.
func MergeLeafModes(leafModes [][]forest.Mode, cfg Config) Prediction {
	maxConcat := len(leafModes) * cfg.KIn
	concatenated := make([]forest.Mode, 0, maxConcat)
	for _, modes := range leafModes {
		for _, m := range modes {
			if len(concatenated) >= maxConcat {
				break
			}
			concatenated = append(concatenated, m)
		}
		if len(concatenated) >= maxConcat {
			break
		}
	}

	sort.SliceStable(concatenated, func(i, j int) bool {
		return concatenated[i].N > concatenated[j].N
	})

	var out []forest.Mode
	for _, m := range concatenated {
		nearest := -1
		nearestDist := math.Inf(1)
		for i, existing := range out {
			d := m.Mean.Sub(existing.Mean).Norm()
			if d < nearestDist {
				nearestDist = d
				nearest = i
			}
		}
		switch {
		case nearest >= 0 && nearestDist <= cfg.RMerge:
			out[nearest] = mergeModes(out[nearest], m)
		case len(out) < cfg.K:
			out = append(out, m)
		default:
			// discard: output already has K modes and m is not close
			// enough to any of them to merge
		}
	}

	// a merge can lift a later mode's count above an earlier one's
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].N > out[j].N
	})
	return Prediction{Modes: out}
}

// mergeModes combines a and b into one Gaussian, weighting the mean by
// sample count (via gonum/stat's weighted mean, one axis at a time) and
// combining covariances with the parallel-axis term so the merged
// Gaussian's spread accounts for the distance between the two input means,
// not just their individual spreads.
func mergeModes(a, b forest.Mode) forest.Mode {
	na, nb := float64(a.N), float64(b.N)
	total := na + nb
	weights := []float64{na, nb}

	mean := r3.Vector{
		X: stat.Mean([]float64{a.Mean.X, b.Mean.X}, weights),
		Y: stat.Mean([]float64{a.Mean.Y, b.Mean.Y}, weights),
		Z: stat.Mean([]float64{a.Mean.Z, b.Mean.Z}, weights),
	}

	sigmaA := invert3(a.InvCov)
	sigmaB := invert3(b.InvCov)
	delta := a.Mean.Sub(b.Mean)
	deltaOuter := outer3(delta, delta)

	var combined mat.Dense
	combined.Scale(na/total, sigmaA)
	var scaledB mat.Dense
	scaledB.Scale(nb/total, sigmaB)
	combined.Add(&combined, &scaledB)
	var betweenTerm mat.Dense
	betweenTerm.Scale((na*nb)/(total*total), deltaOuter)
	combined.Add(&combined, &betweenTerm)

	invCov, logDet := invertAndLogDet3(&combined)

	return forest.Mode{
		Mean:      mean,
		InvCov:    invCov,
		LogDetCov: logDet,
		N:         a.N + b.N,
	}
}

// Evaluator runs MergeLeafModes in parallel over every keypoint in a
// frame's leaf-index image.
func Evaluator(ctx context.Context, d dispatch.Dispatcher, cfg Config, leafIndices forest.LeafIndices, f *forest.Forest) ([]Prediction, error) {
	preds := make([]Prediction, len(leafIndices))
	err := d.ParallelFor(ctx, len(leafIndices), func(ctx context.Context, i int) error {
		leaves := leafIndices[i]
		leafModes := make([][]forest.Mode, len(leaves))
		for ti, leafIdx := range leaves {
			if int(leafIdx) < 0 || int(leafIdx) >= len(f.Trees[ti].Leaves) {
				continue
			}
			leafModes[ti] = f.Trees[ti].Leaves[leafIdx].Modes
		}
		preds[i] = MergeLeafModes(leafModes, cfg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preds, nil
}
