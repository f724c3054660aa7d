package forest

import (
	"context"
	"testing"

	"go.viam.com/test"

	"github.com/viam-labs/scorereloc/dispatch"
)

type fakeDescriptorImage struct {
	w, h int
	vals [][]float32
}

func (f *fakeDescriptorImage) Width() int  { return f.w }
func (f *fakeDescriptorImage) Height() int { return f.h }
func (f *fakeDescriptorImage) At(x, y int) []float32 {
	return f.vals[y*f.w+x]
}

func TestEvaluateProducesOneLeafPerTreePerPixel(t *testing.T) {
	f := sampleForest()
	for i := range f.Trees {
		f.Trees[i].buildLeafIndex()
	}

	img := &fakeDescriptorImage{
		w: 2, h: 1,
		vals: [][]float32{
			{0, 0, 0, 0.1}, // -> tree0 leaf 0, tree1 leaf 0
			{0, 0, 0, 0.9}, // -> tree0 leaf 1, tree1 leaf 0
		},
	}

	leaves, err := Evaluate(context.Background(), dispatch.SerialDispatcher{}, f, img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(leaves), test.ShouldEqual, 2)
	test.That(t, leaves[0], test.ShouldResemble, []int32{0, 0})
	test.That(t, leaves[1], test.ShouldResemble, []int32{1, 0})
}
