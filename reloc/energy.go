package reloc

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"github.com/viam-labs/scorereloc/dispatch"
	"github.com/viam-labs/scorereloc/predict"
)

// ScoreCandidates computes the energy of every surviving candidate over
// the current inlier set (component 4.E), in parallel over candidates;
// each candidate's own reduction over inliers runs through the
// dispatcher's explicit Reset/Add/Finalize accumulator phases so no
// reset can race an in-flight accumulation from a prior round.
func ScoreCandidates(ctx context.Context, d dispatch.Dispatcher, candidates []Candidate, inliers *InlierSet, kps KeypointImage, preds PredictionImage) error {
	return d.ParallelFor(ctx, len(candidates), func(ctx context.Context, i int) error {
		candidates[i].Energy = scoreOne(d, &candidates[i], inliers, kps, preds)
		return nil
	})
}

func scoreOne(d dispatch.Dispatcher, c *Candidate, inliers *InlierSet, kps KeypointImage, preds PredictionImage) float64 {
	costs := make([]float64, 0, len(inliers.Indices))
	for _, idx := range inliers.Indices {
		pred := preds.At(idx)
		if !pred.Usable() {
			continue
		}
		y := c.Pose.Transform(kps.At(idx).Pos)
		costs = append(costs, -predict.MixtureLogLikelihood(y, pred.Modes))
	}

	acc := d.NewAccumulator()
	acc.Reset()
	acc.Add(floats.Sum(costs))
	return acc.Finalize(len(inliers.Indices))
}
