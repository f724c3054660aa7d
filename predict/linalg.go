package predict

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// invert3 inverts a row-major 3x3 matrix stored as [9]float64.
func invert3(m [9]float64) *mat.Dense {
	d := mat.NewDense(3, 3, append([]float64(nil), m[:]...))
	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		// degenerate input (singular InvCov); fall back to identity so
		// the merge still produces a usable, if uninformative, mode
		// rather than propagating a NaN-filled covariance.
		return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	}
	return &inv
}

// outer3 returns the outer product a*b^T as a 3x3 matrix.
func outer3(a, b r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.X * b.X, a.X * b.Y, a.X * b.Z,
		a.Y * b.X, a.Y * b.Y, a.Y * b.Z,
		a.Z * b.X, a.Z * b.Y, a.Z * b.Z,
	})
}

// invertAndLogDet3 inverts a 3x3 covariance and returns both the inverse
// (flattened row-major) and log(det(cov)).
func invertAndLogDet3(cov *mat.Dense) ([9]float64, float64) {
	det := mat.Det(cov)
	if det <= 0 {
		det = 1e-12
	}
	logDet := math.Log(det)

	var inv mat.Dense
	var out [9]float64
	if err := inv.Inverse(cov); err != nil {
		out = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
		return out, logDet
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = inv.At(i, j)
		}
	}
	return out, logDet
}
