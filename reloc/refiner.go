package reloc

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/viam-labs/scorereloc/predict"
	"github.com/viam-labs/scorereloc/spatialmath"
)

// demotedEnergy is the inflated energy assigned to a candidate whose
// refinement failed, so the next halving round's sort demotes it without
// the rest of the loop needing a separate "refinement failed" flag.
const demotedEnergy = math.MaxFloat64 / 2

// RefineCandidate runs the pose refiner (component 4.G): inlier-to-mode
// assignment, weighted Kabsch reinitialisation, then Levenberg-Marquardt
// over the inlier set. On any numerical failure (singular Kabsch,
// non-finite residual) the candidate keeps its prior pose and is given an
// inflated energy so the next halving demotes it, matching the "local
// failure" contract — refinement never propagates an error to the caller.
func RefineCandidate(c *Candidate, inliers *InlierSet, kps KeypointImage, preds PredictionImage, cfg Config) {
	assignedEye, assignedScene, weights, ok := assignInliersToModes(c.Pose, inliers, kps, preds)
	if !ok || len(assignedEye) < 3 {
		c.Energy = demotedEnergy
		return
	}

	init, err := spatialmath.KabschWeighted(assignedEye, assignedScene, weights)
	if err != nil {
		c.Energy = demotedEnergy
		return
	}

	refined, ok := levenbergMarquardt(init, assignedEye, assignedScene, weights, cfg)
	if !ok {
		c.Energy = demotedEnergy
		return
	}

	c.Pose = refined
}

// assignInliersToModes implements 4.G step 1: for each inlier, select the
// mode maximizing (n_k/N)*N(R*x_cam_i+t; μ_k, Σ_k) under the candidate's
// current pose, and return the resulting correspondences and weights.
func assignInliersToModes(pose spatialmath.Pose, inliers *InlierSet, kps KeypointImage, preds PredictionImage) (eye, scene []r3.Vector, weights []float64, ok bool) {
	for _, idx := range inliers.Indices {
		pred := preds.At(idx)
		if !pred.Usable() {
			continue
		}
		kp := kps.At(idx)
		y := pose.Transform(kp.Pos)
		bestIdx, w := predict.BestMode(y, pred.Modes)
		if bestIdx < 0 {
			continue
		}
		eye = append(eye, kp.Pos)
		scene = append(scene, pred.Modes[bestIdx].Mean)
		weights = append(weights, w)
	}
	if len(eye) == 0 {
		return nil, nil, nil, false
	}
	return eye, scene, weights, true
}

// levenbergMarquardt minimizes Σ w_i‖R*x_i + t - μ_i‖² over the 6 DoF
// manifold of SE(3), using the exponential-map tangent update (4.G step
// 3). Damping starts at DefaultLMLambda0, grows ×10 on a rejected step,
// shrinks ÷10 on an accepted one; it stops on relative cost drop below
// cfg.LMTolRel, after cfg.LMMaxIters iterations, or once a rejected step
// pushes the damping above 1e12, whichever first.
func levenbergMarquardt(init spatialmath.Pose, eye, scene []r3.Vector, weights []float64, cfg Config) (spatialmath.Pose, bool) {
	pose := init
	lambda := DefaultLMLambda0
	cost := weightedResidualCost(pose, eye, scene, weights)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		return init, false
	}

	for iter := 0; iter < cfg.LMMaxIters; iter++ {
		jac, res := buildJacobianAndResiduals(pose, eye, scene)
		if jac == nil {
			return init, false
		}

		delta, ok := solveDampedNormalEquations(jac, res, weights, lambda)
		if !ok {
			lambda *= 10
			continue
		}

		var xi [6]float64
		for i := 0; i < 6; i++ {
			xi[i] = delta.AtVec(i)
		}
		candidate := pose.Retract(xi)
		newCost := weightedResidualCost(candidate, eye, scene, weights)
		if math.IsNaN(newCost) || math.IsInf(newCost, 0) {
			lambda *= 10
			if lambda > 1e12 {
				return init, false
			}
			continue
		}

		if newCost < cost {
			relDrop := (cost - newCost) / math.Max(cost, 1e-12)
			pose = candidate
			cost = newCost
			lambda /= 10
			if relDrop < cfg.LMTolRel {
				break
			}
		} else {
			lambda *= 10
			if lambda > 1e12 {
				break
			}
		}
	}

	return pose, true
}

// weightedResidualCost returns Σ w_i‖R*x_i + t - μ_i‖².
func weightedResidualCost(pose spatialmath.Pose, eye, scene []r3.Vector, weights []float64) float64 {
	var total float64
	for i := range eye {
		d := pose.Transform(eye[i]).Sub(scene[i])
		total += weights[i] * d.Dot(d)
	}
	return total
}

// buildJacobianAndResiduals linearizes the residual r_i = R*x_i + t - μ_i
// with respect to the se(3) tangent (omega, v) of the body-frame update
// pose.Retract applies, at zero: d(r_i)/d(omega) = -R*[x_i]_x,
// d(r_i)/d(v) = R. Returns a stacked 3n x 6 Jacobian and 3n residual
// vector.
func buildJacobianAndResiduals(pose spatialmath.Pose, eye, scene []r3.Vector) (*mat.Dense, *mat.VecDense) {
	n := len(eye)
	if n == 0 {
		return nil, nil
	}
	jac := mat.NewDense(3*n, 6, nil)
	res := mat.NewVecDense(3*n, nil)

	for i := 0; i < n; i++ {
		rx := pose.Rotation.MulVec(eye[i])
		r := rx.Add(pose.Translation).Sub(scene[i])

		res.SetVec(3*i+0, r.X)
		res.SetVec(3*i+1, r.Y)
		res.SetVec(3*i+2, r.Z)

		// columns of -[x_i]_x, then of I, each rotated by R
		x := eye[i]
		cols := [6]r3.Vector{
			{Y: -x.Z, Z: x.Y}, {X: x.Z, Z: -x.X}, {X: -x.Y, Y: x.X},
			{X: 1}, {Y: 1}, {Z: 1},
		}
		for k, col := range cols {
			rc := pose.Rotation.MulVec(col)
			jac.Set(3*i+0, k, rc.X)
			jac.Set(3*i+1, k, rc.Y)
			jac.Set(3*i+2, k, rc.Z)
		}
	}
	return jac, res
}

// solveDampedNormalEquations solves (JᵀWJ + λI)δ = -JᵀWr for δ, returning
// false if the damped normal matrix is singular.
func solveDampedNormalEquations(jac *mat.Dense, res *mat.VecDense, weights []float64, lambda float64) (*mat.VecDense, bool) {
	n, _ := jac.Dims()
	npts := n / 3

	w := mat.NewDiagDense(n, nil)
	for i := 0; i < npts; i++ {
		for k := 0; k < 3; k++ {
			w.SetDiag(3*i+k, weights[i])
		}
	}

	var jtw mat.Dense
	jtw.Mul(jac.T(), w)

	var jtwj mat.Dense
	jtwj.Mul(&jtw, jac)

	for i := 0; i < 6; i++ {
		jtwj.Set(i, i, jtwj.At(i, i)+lambda)
	}

	var jtwr mat.VecDense
	jtwr.MulVec(&jtw, res)
	jtwr.ScaleVec(-1, &jtwr)

	var delta mat.VecDense
	if err := delta.SolveVec(&jtwj, &jtwr); err != nil {
		return nil, false
	}
	for i := 0; i < 6; i++ {
		if math.IsNaN(delta.AtVec(i)) || math.IsInf(delta.AtVec(i), 0) {
			return nil, false
		}
	}
	return &delta, true
}
