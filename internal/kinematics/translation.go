package kinematics

import (
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

type TranslationKind uint8

const (
	NoTranslation TranslationKind = iota
	TranslationAlongAxis
	TranslationXYZ
	LinearTranslation
	TimeDependentTranslation
)

func (k TranslationKind) String() string {
	switch k {
	case NoTranslation:
		return "none"
	case TranslationAlongAxis:
		return "along-axis"
	case TranslationXYZ:
		return "xyz"
	case LinearTranslation:
		return "linear"
	case TimeDependentTranslation:
		return "time-dependent"
	}
	return fmt.Sprintf("translation(%d)", uint8(k))
}

// VectorFunc is a time function with values in R^3.
type VectorFunc func(t float64) spatial.Vec3

// Translation maps the translational coordinates (and time) to the position of
// the kinematics frame relative to the frame of reference, expressed in the
// frame of reference.
type Translation struct {
	kind   TranslationKind
	axis   spatial.Vec3
	matrix *mat.Dense
	r      VectorFunc
	rd     VectorFunc
	rdd    VectorFunc
}

func NewNoTranslation() Translation { return Translation{kind: NoTranslation} }

// NewTranslationAlongAxis translates along a unit axis fixed in the frame of reference.
func NewTranslationAlongAxis(axis spatial.Vec3) Translation {
	return Translation{kind: TranslationAlongAxis, axis: axis.Normalize()}
}

func NewTranslationXYZ() Translation { return Translation{kind: TranslationXYZ} }

// NewLinearTranslation uses r = P*q with a constant 3 x n matrix P.
func NewLinearTranslation(p *mat.Dense) Translation {
	return Translation{kind: LinearTranslation, matrix: p}
}

// NewTimeDependentTranslation prescribes r(t) with its first two derivatives.
// It has no degrees of freedom.
func NewTimeDependentTranslation(r, rd, rdd VectorFunc) Translation {
	return Translation{kind: TimeDependentTranslation, r: r, rd: rd, rdd: rdd}
}

func (tr Translation) Kind() TranslationKind { return tr.kind }

func (tr Translation) Size() int {
	switch tr.kind {
	case TranslationAlongAxis:
		return 1
	case TranslationXYZ:
		return 3
	case LinearTranslation:
		if tr.matrix == nil {
			return 0
		}
		_, c := tr.matrix.Dims()
		return c
	}
	return 0
}

// Validate checks that the Jacobian shape matches Size.
func (tr Translation) Validate() error {
	switch tr.kind {
	case TranslationAlongAxis:
		if !(tr.axis.Len() > 0) {
			return fmt.Errorf("translation axis is zero")
		}
	case LinearTranslation:
		if tr.matrix == nil {
			return fmt.Errorf("linear translation without matrix")
		}
		if r, _ := tr.matrix.Dims(); r != 3 {
			return fmt.Errorf("linear translation matrix has %d rows, want 3", r)
		}
	case TimeDependentTranslation:
		if tr.r == nil || tr.rd == nil || tr.rdd == nil {
			return fmt.Errorf("time dependent translation needs r, r' and r''")
		}
	}
	return nil
}

func (tr Translation) Position(q []float64, t float64) spatial.Vec3 {
	switch tr.kind {
	case TranslationAlongAxis:
		return tr.axis.Mul(q[0])
	case TranslationXYZ:
		return spatial.Vec3{q[0], q[1], q[2]}
	case LinearTranslation:
		return spatial.MulVec(tr.matrix, q)
	case TimeDependentTranslation:
		return tr.r(t)
	}
	return spatial.Zero
}

// Jacobian writes dr/dq into dst (3 x Size).
func (tr Translation) Jacobian(dst *mat.Dense, q []float64, t float64) {
	switch tr.kind {
	case TranslationAlongAxis:
		dst.Set(0, 0, tr.axis[0])
		dst.Set(1, 0, tr.axis[1])
		dst.Set(2, 0, tr.axis[2])
	case TranslationXYZ:
		dst.Zero()
		dst.Set(0, 0, 1)
		dst.Set(1, 1, 1)
		dst.Set(2, 2, 1)
	case LinearTranslation:
		dst.Copy(tr.matrix)
	}
}

// TimeDerivative is the explicit partial derivative dr/dt.
func (tr Translation) TimeDerivative(q []float64, t float64) spatial.Vec3 {
	if tr.kind == TimeDependentTranslation {
		return tr.rd(t)
	}
	return spatial.Zero
}

// Bias collects the second order terms J'*u + d2r/dt2.
func (tr Translation) Bias(q, u []float64, t float64) spatial.Vec3 {
	if tr.kind == TimeDependentTranslation {
		return tr.rdd(t)
	}
	return spatial.Zero
}
