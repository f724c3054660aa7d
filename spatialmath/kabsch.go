package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateCorrespondence is returned by KabschWeighted when the inputs
// are empty or of mismatched lengths, the total weight is not positive, or
// the SVD fails, so that such a candidate is demoted rather than crashing.
// Repeated or collinear source points are not detected.
var ErrDegenerateCorrespondence = errors.New("spatialmath: degenerate point correspondence")

// KabschWeighted solves for the rigid transform (R, t) minimizing
// Σ w_i ‖R*src_i + t - dst_i‖² via the closed-form SVD solution. Equal
// unit weights reproduce the classic Kabsch algorithm used by the
// candidate generator (4.C); per-inlier confidence weights are used by the
// pose refiner's reinitialisation step (4.G.2).
func KabschWeighted(src, dst []r3.Vector, weights []float64) (Pose, error) {
	n := len(src)
	if n != len(dst) || n != len(weights) || n == 0 {
		return Pose{}, errors.Wrap(ErrDegenerateCorrespondence, "mismatched input lengths")
	}

	var wSum float64
	var srcCentroid, dstCentroid r3.Vector
	for i := 0; i < n; i++ {
		w := weights[i]
		wSum += w
		srcCentroid = srcCentroid.Add(src[i].Mul(w))
		dstCentroid = dstCentroid.Add(dst[i].Mul(w))
	}
	if wSum <= 0 {
		return Pose{}, errors.Wrap(ErrDegenerateCorrespondence, "non-positive total weight")
	}
	srcCentroid = srcCentroid.Mul(1 / wSum)
	dstCentroid = dstCentroid.Mul(1 / wSum)

	h := mat.NewDense(3, 3, nil)
	for i := 0; i < n; i++ {
		a := src[i].Sub(srcCentroid)
		b := dst[i].Sub(dstCentroid)
		w := weights[i]
		outer := mat.NewDense(3, 3, []float64{
			w * a.X * b.X, w * a.X * b.Y, w * a.X * b.Z,
			w * a.Y * b.X, w * a.Y * b.Y, w * a.Y * b.Z,
			w * a.Z * b.X, w * a.Z * b.Y, w * a.Z * b.Z,
		})
		h.Add(h, outer)
	}

	var svd mat.SVD
	if ok := svd.Factorize(h, mat.SVDFull); !ok {
		return Pose{}, errors.Wrap(ErrDegenerateCorrespondence, "SVD factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vut mat.Dense
	vut.Mul(&v, u.T())

	d := mat.Det(&vut)
	if d < 0 {
		// flip the sign of v's last column to keep det(R) == 1
		for r := 0; r < 3; r++ {
			v.Set(r, 2, -v.At(r, 2))
		}
		vut.Mul(&v, u.T())
	}

	rot := FromDense(&vut)
	t := dstCentroid.Sub(rot.MulVec(srcCentroid))
	return Pose{Rotation: rot, Translation: t}, nil
}

// Kabsch solves the unweighted rigid registration; equivalent to
// KabschWeighted with all weights equal to 1.
func Kabsch(src, dst []r3.Vector) (Pose, error) {
	weights := make([]float64, len(src))
	for i := range weights {
		weights[i] = 1
	}
	return KabschWeighted(src, dst, weights)
}
