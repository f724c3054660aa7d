package forest

import (
	"context"

	"github.com/viam-labs/scorereloc/dispatch"
)

// DescriptorImage is the opaque per-pixel feature vector image the forest
// was trained on; the relocaliser's capture/feature-extraction stage is an
// external collaborator and is not implemented here.
type DescriptorImage interface {
	Width() int
	Height() int
	// At returns the feature vector for pixel (x, y), raster index y*W+x.
	At(x, y int) []float32
}

// LeafIndices is the per-pixel array of T leaf identifiers the evaluator
// produces: LeafIndices[y*W+x][treeIdx] is the leaf Tree[treeIdx] assigned
// to pixel (x, y).
type LeafIndices [][]int32

// Evaluate walks every tree in f for every pixel of desc, in parallel over
// pixels via d. A malformed tree is a programmer error and panics (per
// Tree.Walk), not a runtime condition this function guards against.
func Evaluate(ctx context.Context, d dispatch.Dispatcher, f *Forest, desc DescriptorImage) (LeafIndices, error) {
	w, h := desc.Width(), desc.Height()
	n := w * h
	out := make(LeafIndices, n)

	err := d.ParallelFor(ctx, n, func(ctx context.Context, idx int) error {
		x, y := idx%w, idx/w
		features := desc.At(x, y)
		leaves := make([]int32, len(f.Trees))
		for ti := range f.Trees {
			leaves[ti] = f.Trees[ti].Walk(features)
		}
		out[idx] = leaves
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
