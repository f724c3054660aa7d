package predict

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/scorereloc/forest"
)

const log2Pi3 = 3 * 1.8378770664093453 // 3 * ln(2*pi), the 3-D Gaussian normalizer

// LogLikelihood returns log N(x; m.Mean, Σ) using the mode's precomputed
// inverse covariance and log-determinant, avoiding a matrix inversion on
// the per-inlier hot path.
func LogLikelihood(x r3.Vector, m forest.Mode) float64 {
	d := x.Sub(m.Mean)
	maha := d.X*(m.InvCov[0]*d.X+m.InvCov[1]*d.Y+m.InvCov[2]*d.Z) +
		d.Y*(m.InvCov[3]*d.X+m.InvCov[4]*d.Y+m.InvCov[5]*d.Z) +
		d.Z*(m.InvCov[6]*d.X+m.InvCov[7]*d.Y+m.InvCov[8]*d.Z)
	return -0.5 * (log2Pi3 + m.LogDetCov + maha)
}

// MixtureLogLikelihood returns log( Σ_k (n_k/N) * N(x; μ_k, Σ_k) ) for a
// prediction's full mode mixture, computed with the standard log-sum-exp
// trick for numerical stability.
func MixtureLogLikelihood(x r3.Vector, modes []forest.Mode) float64 {
	if len(modes) == 0 {
		return math.Inf(-1)
	}
	var total float64
	for _, m := range modes {
		total += float64(m.N)
	}
	if total <= 0 {
		return math.Inf(-1)
	}

	logTerms := make([]float64, len(modes))
	maxTerm := math.Inf(-1)
	for i, m := range modes {
		weight := float64(m.N) / total
		logTerms[i] = math.Log(weight) + LogLikelihood(x, m)
		if logTerms[i] > maxTerm {
			maxTerm = logTerms[i]
		}
	}
	if math.IsInf(maxTerm, -1) {
		return math.Inf(-1)
	}

	var sumExp float64
	for _, lt := range logTerms {
		sumExp += math.Exp(lt - maxTerm)
	}
	return maxTerm + math.Log(sumExp)
}

// BestMode returns the index of the mode in modes maximizing
// (n_k/N)*N(x; μ_k, Σ_k) — the MAP assignment used by the pose refiner's
// inlier-to-mode assignment step.
func BestMode(x r3.Vector, modes []forest.Mode) (idx int, weight float64) {
	idx = -1
	best := math.Inf(-1)
	var total float64
	for _, m := range modes {
		total += float64(m.N)
	}
	for i, m := range modes {
		w := float64(m.N) / total
		score := math.Log(w) + LogLikelihood(x, m)
		if score > best {
			best = score
			idx = i
			weight = w
		}
	}
	return idx, weight
}
