package kinematics

import (
	"fmt"
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

type RotationKind uint8

const (
	NoRotation RotationKind = iota
	RotationAboutFixedAxis
	RotationCardanXYZ
)

func (k RotationKind) String() string {
	switch k {
	case NoRotation:
		return "none"
	case RotationAboutFixedAxis:
		return "fixed-axis"
	case RotationCardanXYZ:
		return "cardan-xyz"
	}
	return fmt.Sprintf("rotation(%d)", uint8(k))
}

// Rotation maps the rotational coordinates to the orientation of the
// kinematics frame relative to the frame of reference. Its Jacobian maps the
// coordinate rates to the relative angular velocity in reference coordinates.
type Rotation struct {
	kind RotationKind
	axis spatial.Vec3
}

func NewNoRotation() Rotation { return Rotation{kind: NoRotation} }

func NewRotationAboutFixedAxis(axis spatial.Vec3) Rotation {
	return Rotation{kind: RotationAboutFixedAxis, axis: axis.Normalize()}
}

// NewRotationCardanXYZ uses A = Rx(alpha)*Ry(beta)*Rz(gamma).
func NewRotationCardanXYZ() Rotation { return Rotation{kind: RotationCardanXYZ} }

func (r Rotation) Kind() RotationKind { return r.kind }

func (r Rotation) Axis() spatial.Vec3 { return r.axis }

func (r Rotation) Size() int {
	switch r.kind {
	case RotationAboutFixedAxis:
		return 1
	case RotationCardanXYZ:
		return 3
	}
	return 0
}

func (r Rotation) Validate() error {
	if r.kind == RotationAboutFixedAxis && !(r.axis.Len() > 0) {
		return fmt.Errorf("rotation axis is zero")
	}
	return nil
}

func (r Rotation) Orientation(q []float64, t float64) spatial.Mat3 {
	switch r.kind {
	case RotationAboutFixedAxis:
		return spatial.AxisAngle(r.axis, q[0])
	case RotationCardanXYZ:
		return spatial.CardanXYZ(q[0], q[1], q[2])
	}
	return spatial.Identity
}

func (r Rotation) Jacobian(dst *mat.Dense, q []float64, t float64) {
	switch r.kind {
	case RotationAboutFixedAxis:
		dst.Set(0, 0, r.axis[0])
		dst.Set(1, 0, r.axis[1])
		dst.Set(2, 0, r.axis[2])
	case RotationCardanXYZ:
		sa, ca := math.Sincos(q[0])
		sb, cb := math.Sincos(q[1])
		dst.Set(0, 0, 1)
		dst.Set(0, 1, 0)
		dst.Set(0, 2, sb)
		dst.Set(1, 0, 0)
		dst.Set(1, 1, ca)
		dst.Set(1, 2, -sa*cb)
		dst.Set(2, 0, 0)
		dst.Set(2, 1, sa)
		dst.Set(2, 2, ca*cb)
	}
}

// Bias returns J'*u for the current coordinates and rates.
func (r Rotation) Bias(q, u []float64, t float64) spatial.Vec3 {
	if r.kind != RotationCardanXYZ {
		return spatial.Zero
	}
	sa, ca := math.Sincos(q[0])
	sb, cb := math.Sincos(q[1])
	ad, bd, gd := u[0], u[1], u[2]
	return spatial.Vec3{
		cb * bd * gd,
		-sa*ad*bd + (-ca*cb*ad+sa*sb*bd)*gd,
		ca*ad*bd + (-sa*cb*ad-ca*sb*bd)*gd,
	}
}
