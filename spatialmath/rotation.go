// Package spatialmath provides the rigid-transform primitives shared by the
// forest evaluator, candidate generator, and pose refiner: rotations in
// SO(3), poses in SE(3), and the Kabsch/exponential-map operations used to
// move between point correspondences and pose updates.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a rotation in SO(3), stored row-major.
type RotationMatrix struct {
	m [9]float64 // row-major 3x3: m[3*r+c]
}

// NewRotationMatrix builds a RotationMatrix from nine row-major entries. It
// does not verify orthonormality; callers that need the invariant checked
// should use Validate.
func NewRotationMatrix(m [9]float64) *RotationMatrix {
	return &RotationMatrix{m: m}
}

// Identity returns the identity rotation.
func Identity() *RotationMatrix {
	return &RotationMatrix{m: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the entry at row r, column c (0-indexed).
func (rm *RotationMatrix) At(r, c int) float64 {
	return rm.m[3*r+c]
}

// Dense returns the rotation as a 3x3 gonum matrix.
func (rm *RotationMatrix) Dense() *mat.Dense {
	return mat.NewDense(3, 3, rm.m[:])
}

// FromDense builds a RotationMatrix from a 3x3 gonum matrix.
func FromDense(d *mat.Dense) *RotationMatrix {
	r, c := d.Dims()
	if r != 3 || c != 3 {
		panic("spatialmath: FromDense requires a 3x3 matrix")
	}
	var rm RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rm.m[3*i+j] = d.At(i, j)
		}
	}
	return &rm
}

// MulVec rotates v by rm.
func (rm *RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.m[0]*v.X + rm.m[1]*v.Y + rm.m[2]*v.Z,
		Y: rm.m[3]*v.X + rm.m[4]*v.Y + rm.m[5]*v.Z,
		Z: rm.m[6]*v.X + rm.m[7]*v.Y + rm.m[8]*v.Z,
	}
}

// Mul composes rm then other: result = rm * other.
func (rm *RotationMatrix) Mul(other *RotationMatrix) *RotationMatrix {
	return FromDense(matMul3(rm.Dense(), other.Dense()))
}

// Transpose returns rm^T, which equals rm^-1 for a proper rotation.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.m[3*i+j] = rm.m[3*j+i]
		}
	}
	return &out
}

// Det returns the determinant of rm.
func (rm *RotationMatrix) Det() float64 {
	m := rm.m
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Validate reports whether rm is, within eps, a proper rotation: det ≈ 1
// and R^T R ≈ I.
func (rm *RotationMatrix) Validate(eps float64) bool {
	if math.Abs(rm.Det()-1) > eps {
		return false
	}
	prod := rm.Mul(rm.Transpose())
	id := Identity()
	for i := 0; i < 9; i++ {
		if math.Abs(prod.m[i]-id.m[i]) > eps {
			return false
		}
	}
	return true
}

func matMul3(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// skew returns the 3x3 skew-symmetric ("hat") matrix of v, satisfying
// skew(v) * x == v.Cross(x) for any x.
func skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// ExpSO3 maps an angular-velocity vector omega (axis * angle, in the
// Lie algebra so(3)) to its rotation via the Rodrigues formula.
func ExpSO3(omega r3.Vector) *RotationMatrix {
	theta := omega.Norm()
	if theta < 1e-12 {
		// first-order approximation: R ≈ I + [omega]_x
		k := skew(omega)
		var out mat.Dense
		out.Add(identityDense(), k)
		return FromDense(&out)
	}
	k := skew(omega.Mul(1 / theta))
	var k2 mat.Dense
	k2.Mul(k, k)

	var term1, term2, out mat.Dense
	term1.Scale(math.Sin(theta), k)
	term2.Scale(1-math.Cos(theta), &k2)
	out.Add(identityDense(), &term1)
	out.Add(&out, &term2)
	return FromDense(&out)
}

// LogSO3 is the inverse of ExpSO3: it returns the angular-velocity vector
// whose rotation is rm.
func LogSO3(rm *RotationMatrix) r3.Vector {
	cosTheta := (rm.m[0] + rm.m[4] + rm.m[8] - 1) / 2
	cosTheta = math.Max(-1, math.Min(1, cosTheta))
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	scale := theta / (2 * math.Sin(theta))
	return r3.Vector{
		X: scale * (rm.m[7] - rm.m[5]),
		Y: scale * (rm.m[2] - rm.m[6]),
		Z: scale * (rm.m[3] - rm.m[1]),
	}
}

func identityDense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
