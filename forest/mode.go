package forest

import "github.com/golang/geo/r3"

// Mode is one Gaussian component of a leaf's modal cluster: a mean in
// scene space, inverse covariance, its log-determinant (stored rather than
// the determinant itself, since every consumer needs log|Σ| for the
// Gaussian log-likelihood and precomputing it avoids a log() on the
// per-inlier hot path of the energy scorer), a sample count, and an
// optional colour mean unused for scoring.
type Mode struct {
	Mean      r3.Vector
	InvCov    [9]float64 // row-major 3x3, symmetric positive-definite
	LogDetCov float64
	N         uint32
	ColorRGB  [3]uint8
}

// Forest is the full, immutable, frozen ensemble: T trees sharing no
// mutable state, loaded once at process start and reused across frames.
type Forest struct {
	TreeCount       uint32
	MaxModesPerLeaf uint32 // K_in from the file header
	FeatureCount    uint32
	Trees           []Tree
}
