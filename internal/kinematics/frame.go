package kinematics

import (
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

// FrameID indexes a frame in its Tree.
type FrameID int

const noFrame FrameID = -1

type frameKind uint8

const (
	inertialFrame frameKind = iota
	kinematicsFrame
	fixedFrame
)

// quantity is a per-frame dirty bit.
type quantity uint8

const (
	qPosition quantity = 1 << iota
	qVelocity
	qGyroscopic
	qAcceleration
	qJacobian0
	qJacobian1

	qAll = qPosition | qVelocity | qGyroscopic | qAcceleration | qJacobian0 | qJacobian1
)

func jacobianBit(j int) quantity {
	if j == 0 {
		return qJacobian0
	}
	return qJacobian1
}

// Frame is a coordinate system whose absolute kinematics are computed on
// demand and cached until the owning tree is invalidated.
//
// Jacobian index 0 maps the generalized velocities of the whole system to the
// frame velocity; index 1 maps the six absolute velocities (v, omega) of the
// kinematics frame of the owning body.
type Frame struct {
	name  string
	path  string
	kind  frameKind
	tree  *Tree
	id    FrameID
	owner *RigidBody
	fixed *fixedRelation
	dirty quantity

	pos    spatial.Vec3
	ori    spatial.Mat3
	vel    spatial.Vec3
	angVel spatial.Vec3
	gyroT  spatial.Vec3
	gyroR  spatial.Vec3
	acc    spatial.Vec3
	angAcc spatial.Vec3
	jt     [2]*mat.Dense
	jr     [2]*mat.Dense
}

type fixedRelation struct {
	refName string
	ref     *Frame
	r       spatial.Vec3
	a       spatial.Mat3
	wr      spatial.Vec3
}

func (f *Frame) Name() string { return f.name }

// Path is the absolute path assigned when the frame is registered.
func (f *Frame) Path() string {
	if f.path == "" {
		return f.name
	}
	return f.path
}

func (f *Frame) ID() FrameID { return f.id }

// Owner returns the body owning the frame, nil for inertial and group frames.
func (f *Frame) Owner() *RigidBody { return f.owner }

func (f *Frame) Position() spatial.Vec3 {
	f.ensure(qPosition)
	return f.pos
}

func (f *Frame) Orientation() spatial.Mat3 {
	f.ensure(qPosition)
	return f.ori
}

func (f *Frame) Velocity() spatial.Vec3 {
	f.ensure(qVelocity)
	return f.vel
}

func (f *Frame) AngularVelocity() spatial.Vec3 {
	f.ensure(qVelocity)
	return f.angVel
}

// GyroscopicAcceleration is the part of the acceleration not proportional to
// the generalized accelerations: a = JT*u' + GyroscopicAcceleration.
func (f *Frame) GyroscopicAcceleration() spatial.Vec3 {
	f.ensure(qGyroscopic)
	return f.gyroT
}

func (f *Frame) GyroscopicAngularAcceleration() spatial.Vec3 {
	f.ensure(qGyroscopic)
	return f.gyroR
}

// Acceleration is only available once the solver has published u'.
func (f *Frame) Acceleration() spatial.Vec3 {
	f.ensure(qAcceleration)
	return f.acc
}

func (f *Frame) AngularAcceleration() spatial.Vec3 {
	f.ensure(qAcceleration)
	return f.angAcc
}

// JacobianOfTranslation returns the cached 3 x n Jacobian. The matrix is
// owned by the frame and must not be modified.
func (f *Frame) JacobianOfTranslation(j int) *mat.Dense {
	f.ensure(jacobianBit(j))
	return f.jt[j]
}

func (f *Frame) JacobianOfRotation(j int) *mat.Dense {
	f.ensure(jacobianBit(j))
	return f.jr[j]
}

func (f *Frame) ensure(q quantity) {
	if f.dirty&q == 0 {
		return
	}
	if f.tree == nil || !f.tree.frozen {
		panic(&dynamo.ProgrammingError{Where: f.Path(), Reason: "frame used before initialization"})
	}
	if q == qAcceleration {
		if !f.tree.accReady {
			panic(&dynamo.ProgrammingError{Where: f.Path(), Reason: "acceleration requested before u' was published"})
		}
		ud := f.tree.state.UD
		f.acc = spatial.MulVec(f.JacobianOfTranslation(0), ud).Add(f.GyroscopicAcceleration())
		f.angAcc = spatial.MulVec(f.JacobianOfRotation(0), ud).Add(f.GyroscopicAngularAcceleration())
	} else {
		switch f.kind {
		case kinematicsFrame:
			f.owner.update(q)
		case fixedFrame:
			f.updateFixed(q)
		}
	}
	f.dirty &^= q
	f.tree.stats.record(q)
}

func (f *Frame) updateFixed(q quantity) {
	rel := f.fixed
	ref := rel.ref
	switch q {
	case qPosition:
		a := ref.Orientation()
		rel.wr = a.Mul3x1(rel.r)
		f.pos = ref.Position().Add(rel.wr)
		f.ori = a.Mul3(rel.a)
	case qVelocity:
		f.ensure(qPosition)
		w := ref.AngularVelocity()
		f.vel = ref.Velocity().Add(w.Cross(rel.wr))
		f.angVel = w
	case qGyroscopic:
		f.ensure(qPosition)
		w := ref.AngularVelocity()
		jr := ref.GyroscopicAngularAcceleration()
		f.gyroT = ref.GyroscopicAcceleration().Add(jr.Cross(rel.wr)).Add(w.Cross(w.Cross(rel.wr)))
		f.gyroR = jr
	case qJacobian0, qJacobian1:
		j := 0
		if q == qJacobian1 {
			j = 1
		}
		f.ensure(qPosition)
		jr := ref.JacobianOfRotation(j)
		spatial.Transform(f.jt[j], ref.JacobianOfTranslation(j), jr, rel.wr, spatial.Identity, nil)
		if !jr.IsEmpty() {
			f.jr[j].Copy(jr)
		}
	}
}

// FixedRelativeFrame is a frame at a constant offset and rotation from a
// reference frame.
type FixedRelativeFrame struct {
	*Frame
}

// NewFixedRelativeFrame creates an unregistered frame at offset r (in the
// reference frame's coordinates) and relative rotation a. reference is the
// name or path of the reference frame, resolved at initialization.
func NewFixedRelativeFrame(name, reference string, r spatial.Vec3, a spatial.Mat3) *FixedRelativeFrame {
	return &FixedRelativeFrame{Frame: &Frame{
		name:  name,
		kind:  fixedFrame,
		id:    noFrame,
		fixed: &fixedRelation{refName: reference, r: r, a: a},
		ori:   spatial.Identity,
	}}
}

func (f *FixedRelativeFrame) RelativePosition() spatial.Vec3    { return f.fixed.r }
func (f *FixedRelativeFrame) RelativeOrientation() spatial.Mat3 { return f.fixed.a }
func (f *FixedRelativeFrame) ReferenceName() string             { return f.fixed.refName }

// Reference returns the resolved reference frame, nil before resolution.
func (f *FixedRelativeFrame) Reference() *Frame { return f.fixed.ref }

// SetReference binds the reference frame. It fails once the tree is frozen.
func (f *FixedRelativeFrame) SetReference(ref *Frame) error {
	if f.tree != nil && f.tree.frozen {
		return fmt.Errorf("frame %s: reference changed after initialization", f.Path())
	}
	f.fixed.ref = ref
	return nil
}
