package scenarios

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

// groundOrientation turns the x-axis of a plane frame, its normal, into +y.
var groundOrientation = spatial.Mat3{0, 1, 0, -1, 0, 0, 0, 0, 1}

const ballRadius = 0.1

func sphereInertia(m, r float64) spatial.Mat3 {
	j := 0.4 * m * r * r
	return spatial.Mat3{j, 0, 0, 0, j, 0, 0, 0, j}
}

func boxInertia(m, a, b, c float64) spatial.Mat3 {
	return spatial.Mat3{
		m * (b*b + c*c) / 12, 0, 0,
		0, m * (a*a + c*c) / 12, 0,
		0, 0, m * (a*a + b*b) / 12,
	}
}

func freeBody(name string, m float64, inertia spatial.Mat3) *kinematics.RigidBody {
	b := kinematics.NewRigidBody(name)
	b.SetMass(m)
	b.SetInertiaTensor(inertia)
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationCardanXYZ())
	return b
}

func buildFreeFall(s *mbs.Solver, p Params) error {
	b := freeBody("Body", p.Mass, boxInertia(p.Mass, 0.2, 0.1, 0.3))
	b.SetInitialState([]float64{0, p.Height, 0, 0, 0, 0}, []float64{p.Velocity, 0, 0, 1, 0.5, 0})
	s.AddBody(b)
	return nil
}

func buildSpringPair(s *mbs.Solver, p Params) error {
	for _, b := range []struct {
		name string
		x    float64
	}{{"A", 0}, {"B", p.Length + p.Stretch}} {
		body := kinematics.NewRigidBody(b.name)
		body.SetMass(p.Mass)
		body.SetTranslation(kinematics.NewTranslationAlongAxis(spatial.EX))
		body.SetInitialState([]float64{b.x}, nil)
		s.AddBody(body)
	}
	s.AddLink(link.NewSpringDamper("Spring", "A/C", "B/C", p.Stiffness, p.Damping, p.Length))
	return nil
}

// ball places a sphere above the ground plane with its lowest point at height.
func ball(s *mbs.Solver, p Params, height float64) *link.Contact {
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	b := freeBody("Ball", p.Mass, sphereInertia(p.Mass, ballRadius))
	b.SetInitialState([]float64{0, ballRadius + height, 0}, []float64{p.Velocity, 0, 0})
	s.AddBody(b)
	c := link.NewContact("Contact", "Ground", "Ball/C", link.SpherePlane, ballRadius)
	c.NormalImpact = law.UnilateralNewtonImpact{E: p.Restitution}
	if p.Mu > 0 {
		c.WithFriction(law.SpatialCoulomb{MuC: p.Mu})
	}
	s.AddLink(c)
	return c
}

func buildResting(s *mbs.Solver, p Params) error {
	ball(s, p, 0)
	return nil
}

func buildBouncingBall(s *mbs.Solver, p Params) error {
	ball(s, p, p.Height)
	return nil
}

func buildSoftBall(s *mbs.Solver, p Params) error {
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	b := freeBody("Ball", p.Mass, sphereInertia(p.Mass, ballRadius))
	b.SetInitialState([]float64{0, ballRadius + p.Height, 0}, []float64{p.Velocity, 0, 0})
	s.AddBody(b)
	c := link.NewRegularizedContact("Contact", "Ground", "Ball/C", link.SpherePlane, ballRadius,
		law.RegularizedUnilateral{C: p.Stiffness, D: p.Damping})
	if p.Mu > 0 {
		c.RegularizedFriction = &law.RegularizedFriction{Law: law.SpatialCoulomb{MuC: p.Mu}, Eps: 1e-3}
	}
	s.AddLink(c)
	return nil
}

// buildPendulum hangs a rod of the given length from a hinge at the origin.
func buildPendulum(s *mbs.Solver, p Params) error {
	l := p.Length
	b := kinematics.NewRigidBody("Rod")
	b.SetMass(p.Mass)
	b.SetInertiaTensor(boxInertia(p.Mass, 0.02, l, 0.02))
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetRotation(kinematics.NewRotationAboutFixedAxis(spatial.EZ))
	b.SetInitialState([]float64{0.5 * l * math.Sin(p.Angle), -0.5 * l * math.Cos(p.Angle), 0, p.Angle}, []float64{0, 0, 0, p.Velocity})
	b.AddFrame("End", "C", spatial.Vec3{0, 0.5 * l, 0}, spatial.Identity)
	s.AddBody(b)
	dirs := []spatial.Vec3{spatial.EX, spatial.EY, spatial.EZ}
	if p.Stiffness > 0 {
		s.AddLink(link.NewElasticJoint("Hinge", "I", "Rod/End", dirs, nil,
			law.RegularizedBilateral{C: p.Stiffness, D: p.Damping}))
		return nil
	}
	s.AddLink(link.NewJoint("Hinge", "I", "Rod/End", dirs, nil))
	return nil
}

// buildSlidingBlock launches a point mass down a rough slope. The block's
// coordinates are measured in the slope frame, x along the slope.
func buildSlidingBlock(s *mbs.Solver, p Params) error {
	s.AddFrame("Slope", "I", spatial.Zero, spatial.AxisAngle(spatial.EZ, -p.Angle))
	s.AddFrame("Plane", "Slope", spatial.Zero, groundOrientation)
	b := kinematics.NewRigidBody("Block")
	b.SetMass(p.Mass)
	b.SetTranslation(kinematics.NewTranslationXYZ())
	b.SetFrameOfReferencePath("Slope")
	b.SetInitialState(nil, []float64{p.Velocity, 0, 0})
	s.AddBody(b)
	c := link.NewContact("Contact", "Plane", "Block/C", link.PointPlane, 0).WithFriction(law.SpatialCoulomb{MuC: p.Mu})
	c.NormalImpact = law.UnilateralNewtonImpact{E: p.Restitution}
	s.AddLink(c)
	return nil
}

// buildTripod drops a box standing on three feet onto the ground.
func buildTripod(s *mbs.Solver, p Params) error {
	s.AddFrame("Ground", "I", spatial.Zero, groundOrientation)
	b := freeBody("Box", p.Mass, boxInertia(p.Mass, 0.6, 0.2, 0.6))
	b.SetInitialState([]float64{0, 0.1 + p.Height, 0, 0.05, 0, 0.03}, []float64{p.Velocity, 0, 0})
	feet := []spatial.Vec3{{0.3, -0.1, 0.2}, {-0.3, -0.1, 0.25}, {0.05, -0.1, -0.3}}
	s.AddBody(b)
	for i, r := range feet {
		name := string(rune('1' + i))
		b.AddFrame("P"+name, "C", r, spatial.Identity)
		c := link.NewContact("Foot"+name, "Ground", "Box/P"+name, link.PointPlane, 0)
		c.NormalImpact = law.UnilateralNewtonImpact{E: p.Restitution}
		if p.Mu > 0 {
			c.WithFriction(law.SpatialCoulomb{MuC: p.Mu})
		}
		s.AddLink(c)
	}
	return nil
}

// buildGear couples two rotors about z: the driven rotor turns with Ratio
// times the angle of the driving one, which carries the torque.
func buildGear(s *mbs.Solver, p Params) error {
	drive := kinematics.NewRigidBody("Drive")
	drive.SetMass(p.Mass)
	drive.SetInertiaTensor(boxInertia(p.Mass, 0.2, 0.2, 0.05))
	drive.SetRotation(kinematics.NewRotationAboutFixedAxis(spatial.EZ))
	drive.SetInitialState(nil, []float64{p.Velocity})
	s.AddBody(drive)

	s.AddFrame("Axle", "I", spatial.Vec3{0.3, 0, 0}, spatial.Identity)
	driven := kinematics.NewRigidBody("Driven")
	driven.SetMass(2 * p.Mass)
	driven.SetInertiaTensor(boxInertia(2*p.Mass, 0.4, 0.4, 0.05))
	driven.SetRotation(kinematics.NewRotationAboutFixedAxis(spatial.EZ))
	driven.SetFrameOfReferencePath("Axle")
	driven.Constrain(kinematics.NewGearDependency(drive, p.Ratio))
	s.AddBody(driven)

	torque := p.Torque
	s.AddLink(link.NewKineticExcitation("Motor", "Drive/C", nil, func(float64) spatial.Vec3 {
		return spatial.Vec3{0, 0, torque}
	}))
	if p.Stiffness > 0 {
		driven.AddFrame("Rim", "C", spatial.Vec3{0.2, 0, 0}, spatial.Identity)
		s.AddFrame("Anchor", "Axle", spatial.Vec3{0.2, -0.3, 0}, spatial.Identity)
		s.AddLink(link.NewSpringDamper("Brake", "Anchor", "Driven/Rim", p.Stiffness, p.Damping, 0.3))
	}
	return nil
}
