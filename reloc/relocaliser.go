package reloc

import (
	"context"
	"sort"

	"github.com/viam-labs/scorereloc/dispatch"
	"github.com/viam-labs/scorereloc/forest"
	"github.com/viam-labs/scorereloc/logging"
	"github.com/viam-labs/scorereloc/predict"
	"github.com/viam-labs/scorereloc/spatialmath"
)

// Relocaliser ties the forest evaluator, prediction merger, candidate
// generator, and preemptive loop together behind the two external
// operations: Predict and Relocalise.
type Relocaliser struct {
	Forest      *forest.Forest
	MergeConfig predict.Config
	Dispatcher  dispatch.Dispatcher
	Logger      logging.Logger
}

// NewRelocaliser builds a Relocaliser around a frozen forest, using a
// HostDispatcher, and an INFO-level logging.New logger if logger is nil.
func NewRelocaliser(f *forest.Forest, mergeCfg predict.Config, logger logging.Logger) *Relocaliser {
	if logger == nil {
		logger = logging.New(logging.INFO)
	}
	return &Relocaliser{
		Forest:      f,
		MergeConfig: mergeCfg,
		Dispatcher:  &dispatch.HostDispatcher{},
		Logger:      logger,
	}
}

// Predict runs the forest evaluator and prediction merger over a frame
// (components 4.A-4.B), producing one merged Prediction per keypoint.
func (r *Relocaliser) Predict(ctx context.Context, kps KeypointImage, desc forest.DescriptorImage) (PredictionImage, error) {
	if kps.W != desc.Width() || kps.H != desc.Height() {
		return PredictionImage{}, shapeMismatch("keypoint and descriptor image dimensions differ")
	}

	leaves, err := forest.Evaluate(ctx, r.Dispatcher, r.Forest, desc)
	if err != nil {
		return PredictionImage{}, err
	}

	preds, err := predict.Evaluator(ctx, r.Dispatcher, r.MergeConfig, leaves, r.Forest)
	if err != nil {
		return PredictionImage{}, err
	}

	return PredictionImage{W: kps.W, H: kps.H, Predictions: preds}, nil
}

// FrameStats carries supplemental round-count and candidate-pool
// information; it is returned alongside a successful pose and with any
// failure that happens after candidate generation. It records no timings,
// does not affect the pose itself and is purely a debugging convenience.
type FrameStats struct {
	Rounds         int
	InitialPool    int
	FinalPoolEmpty bool
}

// Relocalise drives the preemptive RANSAC loop (components 4.C-4.H) to
// produce a single rigid pose from a frame's keypoints and merged
// predictions. The state machine proceeds strictly GENERATE -> (SCORE ->
// REFINE -> HALVE)* -> EMIT; cancel is polled before GENERATE and at the
// start of each round, never mid-round.
func (r *Relocaliser) Relocalise(ctx context.Context, kps KeypointImage, preds PredictionImage, cfg Config, cancel *CancelFlag) (spatialmath.Pose, *FrameStats, error) {
	cfg = cfg.WithDefaults()
	if kps.W != preds.W || kps.H != preds.H {
		return spatialmath.Pose{}, nil, shapeMismatch("keypoint and prediction image dimensions differ")
	}
	if cancel != nil && cancel.Requested() {
		return spatialmath.Pose{}, nil, failf(Cancelled, "cancelled before GENERATE")
	}

	r.Logger.Debugw("state transition", "state", StateGenerate)
	candidates, err := GenerateCandidates(ctx, r.Dispatcher, kps, preds, cfg)
	if err != nil {
		return spatialmath.Pose{}, nil, err
	}
	stats := &FrameStats{InitialPool: len(candidates)}
	if len(candidates) == 0 {
		return spatialmath.Pose{}, stats, failf(EmptyCandidatePool, "no candidate survived generation")
	}

	inliers := NewInlierSet(kps.W, kps.H)
	if err := SampleInliers(ctx, r.Dispatcher, inliers, kps, preds, cfg, false, cfg.RngSeed); err != nil {
		return spatialmath.Pose{}, stats, err
	}

	round := 0
	for len(candidates) > 1 {
		if round >= *cfg.MaxRounds {
			return spatialmath.Pose{}, stats, failf(Timeout, "exceeded max halving rounds")
		}
		if cancel != nil && cancel.Requested() {
			return spatialmath.Pose{}, stats, failf(Cancelled, "cancelled mid-loop")
		}
		round++
		stats.Rounds = round

		roundSeed := cfg.RngSeed + int64(round)
		r.Logger.Debugw("state transition", "state", StateScore, "round", round, "pool", len(candidates))
		if err := SampleInliers(ctx, r.Dispatcher, inliers, kps, preds, cfg, true, roundSeed); err != nil {
			return spatialmath.Pose{}, stats, err
		}

		if err := ScoreCandidates(ctx, r.Dispatcher, candidates, inliers, kps, preds); err != nil {
			return spatialmath.Pose{}, stats, err
		}

		r.Logger.Debugw("state transition", "state", StateRefine, "round", round)
		if err := r.Dispatcher.ParallelFor(ctx, len(candidates), func(ctx context.Context, i int) error {
			RefineCandidate(&candidates[i], inliers, kps, preds, cfg)
			return nil
		}); err != nil {
			return spatialmath.Pose{}, stats, err
		}

		r.Logger.Debugw("state transition", "state", StateHalve, "round", round)
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Energy != candidates[j].Energy {
				return candidates[i].Energy < candidates[j].Energy
			}
			return candidates[i].originalIndex < candidates[j].originalIndex
		})
		keep := (len(candidates) + 1) / 2
		candidates = candidates[:keep]
		if len(candidates) == 0 {
			stats.FinalPoolEmpty = true
			return spatialmath.Pose{}, stats, failf(EmptyCandidatePool, "pool emptied during halving")
		}
	}

	r.Logger.Infow("state transition", "state", StateEmit, "rounds", round)
	return candidates[0].Pose, stats, nil
}
