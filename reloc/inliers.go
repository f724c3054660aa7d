package reloc

import (
	"context"

	"github.com/viam-labs/scorereloc/dispatch"
)

// InlierMask is the W*H 0/1 mask preventing resampling of a keypoint
// raster index once it has been drawn into the inlier set.
type InlierMask struct {
	W, H int
	bits []bool
}

// NewInlierMask allocates a mask of the given dimensions, all bits clear.
func NewInlierMask(w, h int) *InlierMask {
	return &InlierMask{W: w, H: h, bits: make([]bool, w*h)}
}

// InlierSet is the ordered list of keypoint raster indices currently being
// scored. Ordering within the accepted set is unspecified across runs; it
// only matters that the set itself is correct.
type InlierSet struct {
	Indices []int
	Mask    *InlierMask
}

// NewInlierSet allocates an empty inlier set with a fresh mask sized to
// the keypoint image.
func NewInlierSet(w, h int) *InlierSet {
	return &InlierSet{Mask: NewInlierMask(w, h)}
}

// SampleInliers draws up to cfg.B new inlier indices (component 4.D). The
// first call for a frame should pass masked=false (the un-masked first
// pass); every subsequent call should pass masked=true. Accepted indices
// are appended to set.Indices and their mask bit is set before
// SampleInliers returns, so a later masked call never returns an index
// already accepted in an earlier call — the mask-monotonicity property.
func SampleInliers(ctx context.Context, d dispatch.Dispatcher, set *InlierSet, kps KeypointImage, preds PredictionImage, cfg Config, masked bool, roundSeed int64) error {
	counter := d.NewCounter()
	accepted := make([]int, cfg.B)

	err := d.ParallelFor(ctx, cfg.B, func(ctx context.Context, attempt int) error {
		rng := dispatch.SlotRand(roundSeed, attempt)
		idx := rng.Intn(kps.Len())
		if !accept(set, kps, preds, idx, masked) {
			return nil
		}
		slot := counter.Add(1) - 1
		accepted[slot] = idx
		return nil
	})
	if err != nil {
		return err
	}

	n := int(counter.Load())
	for i := 0; i < n; i++ {
		idx := accepted[i]
		if set.Mask.bits[idx] {
			// another attempt in this same round already claimed idx;
			// avoid double-appending it to Indices.
			continue
		}
		set.Mask.bits[idx] = true
		set.Indices = append(set.Indices, idx)
	}
	return nil
}

func accept(set *InlierSet, kps KeypointImage, preds PredictionImage, idx int, masked bool) bool {
	kp := kps.At(idx)
	if !kp.Valid {
		return false
	}
	if !preds.At(idx).Usable() {
		return false
	}
	if masked && set.Mask.bits[idx] {
		return false
	}
	return true
}
