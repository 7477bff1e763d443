package mbs_test

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"github.com/go-logr/logr"
)

// groundOrientation turns the x-axis, the contact normal, into +y.
var groundOrientation = spatial.Mat3{0, 1, 0, -1, 0, 0, 0, 0, 1}

func diag(a, b, c float64) spatial.Mat3 {
	return spatial.Mat3{a, 0, 0, 0, b, 0, 0, 0, c}
}

func newSolver(opts mbs.SolverOptions) *mbs.Solver {
	return mbs.NewSolver("Model", opts, logr.Discard())
}

func pointMass(name string, m float64, q0, u0 []float64) *kinematics.RigidBody {
	b := kinematics.NewRigidBody(name)
	b.SetMass(m)
	b.SetInertiaTensor(diag(0.01, 0.01, 0.01))
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetInitialState(q0, u0)
	return b
}

// freeFall is one unconstrained rigid body with six degrees of freedom.
func freeFall(opts mbs.SolverOptions, m float64, inertia spatial.Mat3) *mbs.Solver {
	s := newSolver(opts)
	b := kinematics.NewRigidBody("Body")
	b.SetMass(m)
	b.SetInertiaTensor(inertia)
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationCardanXYZ())
	b.SetInitialState([]float64{0, 2, 0, 0.1, 0.2, 0.3}, []float64{1, 0, 0, 0.5, -0.2, 0.1})
	s.AddBody(b)
	return s
}

// springPair is two sliders on the x-axis coupled by a spring-damper.
func springPair(opts mbs.SolverOptions, m1, m2, c, d, l0, x2 float64) *mbs.Solver {
	s := newSolver(opts)
	for _, b := range []struct {
		name string
		m    float64
		x    float64
	}{{"A", m1, 0}, {"B", m2, x2}} {
		body := kinematics.NewRigidBody(b.name)
		body.SetMass(b.m)
		body.SetTranslation(kinematics.NewTranslationAlongAxis(spatial.EX))
		body.SetInitialState([]float64{b.x}, nil)
		s.AddBody(body)
	}
	s.AddLink(link.NewSpringDamper("Spring", "A/C", "B/C", c, d, l0))
	return s
}

// ball is a sphere of radius 0.1 above a ground plane y = 0 with a
// restitution coefficient e.
func ball(opts mbs.SolverOptions, m, gap, v0, e float64) (*mbs.Solver, *link.Contact) {
	s := newSolver(opts)
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	s.AddBody(pointMass("Ball", m, []float64{0, 0.1 + gap, 0}, []float64{0, v0, 0}))
	c := link.NewContact("Contact", "Ground", "Ball/C", link.SpherePlane, 0.1)
	c.NormalImpact = law.UnilateralNewtonImpact{E: e}
	s.AddLink(c)
	return s, c
}

// rollingSphere is a solid sphere at rest on a rough plane pushed
// horizontally at its centre.
func rollingSphere(opts mbs.SolverOptions, push, mu float64) (*mbs.Solver, *link.Contact) {
	s := newSolver(opts)
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	b := kinematics.NewRigidBody("Sphere")
	b.SetMass(1)
	b.SetInertiaTensor(diag(0.004, 0.004, 0.004))
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationCardanXYZ())
	b.SetInitialState([]float64{0, 0.1, 0}, nil)
	s.AddBody(b)
	c := link.NewContact("Contact", "Ground", "Sphere/C", link.SpherePlane, 0.1).WithFriction(law.SpatialCoulomb{MuC: mu})
	s.AddLink(c)
	s.AddLink(link.NewKineticExcitation("Push", "Sphere/C", func(float64) spatial.Vec3 {
		return spatial.Vec3{push, 0, 0}
	}, nil))
	return s, c
}

// tripod is a box standing on three frictionless feet, lifted at one foot.
func tripod(opts mbs.SolverOptions) (*mbs.Solver, []*link.Contact) {
	s := newSolver(opts)
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	b := kinematics.NewRigidBody("Box")
	b.SetMass(3)
	b.SetInertiaTensor(diag(0.05, 0.08, 0.06))
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationCardanXYZ())
	b.SetInitialState([]float64{0, 0.1, 0}, nil)
	feet := []spatial.Vec3{{0.3, -0.1, 0.2}, {-0.3, -0.1, 0.25}, {0.05, -0.1, -0.3}}
	var contacts []*link.Contact
	for i, p := range feet {
		name := string(rune('1' + i))
		b.AddFrame("P"+name, "C", p, spatial.Identity)
		c := link.NewContact("Foot"+name, "Ground", "Box/P"+name, link.PointPlane, 0)
		contacts = append(contacts, c)
	}
	s.AddBody(b)
	for _, c := range contacts {
		s.AddLink(c)
	}
	s.AddLink(link.NewKineticExcitation("Lift", "Box/P1", func(float64) spatial.Vec3 {
		return spatial.Vec3{0.5, 4, 0}
	}, nil))
	return s, contacts
}

// pendulum is a rod hinged at the origin by a joint that locks the
// translation of its end point.
func pendulum(opts mbs.SolverOptions, angle float64) (*mbs.Solver, *link.Joint) {
	s := newSolver(opts)
	b := kinematics.NewRigidBody("Rod")
	b.SetMass(2)
	b.SetInertiaTensor(diag(0.01, 0.01, 2*0.5*0.5/12))
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationAboutFixedAxis(spatial.EZ))
	// Rod of length 0.5 with its end at the origin.
	x, y := 0.25*math.Sin(angle), -0.25*math.Cos(angle)
	b.SetInitialState([]float64{x, y, 0, angle}, nil)
	b.AddFrame("End", "C", spatial.Vec3{0, 0.25, 0}, spatial.Identity)
	s.AddBody(b)
	j := link.NewJoint("Hinge", "I", "Rod/End", []spatial.Vec3{spatial.EX, spatial.EY, spatial.EZ}, nil)
	s.AddLink(j)
	return s, j
}
