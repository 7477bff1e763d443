// Package spatial holds the small amount of 3D algebra shared by frames,
// bodies and links: mgl64 vectors and rotations for poses, gonum dense
// matrices for Jacobians whose width is the number of generalized velocities.
package spatial

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

type (
	Vec3 = mgl64.Vec3
	Mat3 = mgl64.Mat3
)

var (
	Zero     = Vec3{}
	Identity = mgl64.Ident3()
	EX       = Vec3{1, 0, 0}
	EY       = Vec3{0, 1, 0}
	EZ       = Vec3{0, 0, 1}
)

// Tilde returns the skew matrix with Tilde(a)*b == a x b.
func Tilde(a Vec3) Mat3 {
	return mgl64.Mat3FromRows(
		Vec3{0, -a[2], a[1]},
		Vec3{a[2], 0, -a[0]},
		Vec3{-a[1], a[0], 0},
	)
}

// CardanXYZ returns Rx(a)*Ry(b)*Rz(c).
func CardanXYZ(a, b, c float64) Mat3 {
	return mgl64.Rotate3DX(a).Mul3(mgl64.Rotate3DY(b)).Mul3(mgl64.Rotate3DZ(c))
}

// AxisAngle returns the rotation by angle about the unit axis n.
func AxisAngle(n Vec3, angle float64) Mat3 {
	s, c := math.Sincos(angle)
	t := Tilde(n)
	return Identity.Add(t.Mul(s)).Add(t.Mul3(t).Mul(1 - c))
}

// Orthonormalize returns n normalized together with two tangents completing a
// right-handed basis.
func Orthonormalize(n Vec3) (Vec3, Vec3, Vec3) {
	n = n.Normalize()
	ref := EX
	if math.Abs(n[0]) > 0.9 {
		ref = EY
	}
	t1 := n.Cross(ref).Normalize()
	t2 := n.Cross(t1)
	return n, t1, t2
}

// Dense converts a Mat3 into a row-major gonum matrix.
func Dense(a Mat3) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a.At(0, 0), a.At(0, 1), a.At(0, 2),
		a.At(1, 0), a.At(1, 1), a.At(1, 2),
		a.At(2, 0), a.At(2, 1), a.At(2, 2),
	})
}

// NewJacobian allocates a zero 3 x n Jacobian. n may be zero.
func NewJacobian(n int) *mat.Dense {
	if n == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(3, n, nil)
}

// Cols returns the column count of a Jacobian, zero for the empty matrix.
func Cols(j *mat.Dense) int {
	if j.IsEmpty() {
		return 0
	}
	_, c := j.Dims()
	return c
}

// Transform sets dst = base - Tilde(r)*rot + a*add.
// rot and base are 3 x n, add is 3 x n or nil.
func Transform(dst, base, rot *mat.Dense, r Vec3, a Mat3, add *mat.Dense) {
	if base.IsEmpty() {
		return
	}
	dst.Copy(base)
	if !rot.IsEmpty() && r != Zero {
		var tmp mat.Dense
		tmp.Mul(Dense(Tilde(r)), rot)
		dst.Sub(dst, &tmp)
	}
	if add != nil && !add.IsEmpty() {
		var tmp mat.Dense
		tmp.Mul(Dense(a), add)
		dst.Add(dst, &tmp)
	}
}

// MulVec returns J*u as a Vec3.
func MulVec(j *mat.Dense, u []float64) Vec3 {
	if j.IsEmpty() || len(u) == 0 {
		return Zero
	}
	var out Vec3
	for r := 0; r < 3; r++ {
		row := j.RawRowView(r)
		s := 0.0
		for c, v := range row {
			s += v * u[c]
		}
		out[r] = s
	}
	return out
}

// AddTransposed accumulates dst += J^T * f.
func AddTransposed(dst []float64, j *mat.Dense, f Vec3) {
	if j.IsEmpty() {
		return
	}
	for r := 0; r < 3; r++ {
		if f[r] == 0 {
			continue
		}
		for c, v := range j.RawRowView(r) {
			dst[c] += v * f[r]
		}
	}
}

// TransposedTimes returns J^T * f as a fresh slice of length n.
func TransposedTimes(j *mat.Dense, f Vec3, n int) []float64 {
	out := make([]float64, n)
	AddTransposed(out, j, f)
	return out
}
