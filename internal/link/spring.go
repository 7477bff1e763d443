package link

import (
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

const minLength = 1e-13

// SpringDamper is a point-to-point spring with viscous damping. The force
// f = -C*(l-L0) - D*l' acts along the connecting line, pulling the frames
// together when stretched.
type SpringDamper struct {
	base
	C, D, L0 float64

	f1, f2 *kinematics.Frame
	dir      spatial.Vec3
	hasDir   bool
	fallback bool
	l, ld    float64
	force    float64
}

func NewSpringDamper(name, frame1, frame2 string, c, d, l0 float64) *SpringDamper {
	return &SpringDamper{base: base{name: name, paths: []string{frame1, frame2}}, C: c, D: d, L0: l0}
}

func (s *SpringDamper) Connect(resolve Resolver, nu int, tol Tolerances) error {
	fs, err := s.resolve(resolve)
	if err != nil {
		return err
	}
	s.f1, s.f2 = fs[0], fs[1]
	s.nu, s.tol = nu, tol
	if s.f1 == s.f2 {
		return dynamo.Modelf(s.name, "spring connects frame %s to itself", s.f1.Path())
	}
	return nil
}

func (s *SpringDamper) Check() error {
	if s.f2.Position().Sub(s.f1.Position()).Len() < minLength {
		return dynamo.Modelf(s.name, "coincident connection points at %v", s.f1.Position())
	}
	return nil
}

func (s *SpringDamper) Update(t float64) error {
	d := s.f2.Position().Sub(s.f1.Position())
	s.l = d.Len()
	s.fallback = s.l < minLength
	if s.fallback {
		if !s.hasDir {
			return &dynamo.NumericError{Op: s.name, Reason: "spring length vanished without a previous direction"}
		}
	} else {
		s.dir = d.Mul(1 / s.l)
		s.hasDir = true
	}
	s.ld = s.dir.Dot(s.f2.Velocity().Sub(s.f1.Velocity()))
	s.force = -s.C*(s.l-s.L0) - s.D*s.ld
	return nil
}

// DirectionFallback reports that the last update found a vanishing length
// and kept the previous force direction.
func (s *SpringDamper) DirectionFallback() bool { return s.fallback }

// Length returns the current spring length and its rate.
func (s *SpringDamper) Length() (l, ld float64) { return s.l, s.ld }

func (s *SpringDamper) AddSmoothForces(h []float64) {
	f := s.dir.Mul(s.force)
	spatial.AddTransposed(h, s.f2.JacobianOfTranslation(0), f)
	spatial.AddTransposed(h, s.f1.JacobianOfTranslation(0), f.Mul(-1))
}

func (s *SpringDamper) Forces() []float64 { return []float64{s.force} }

func (s *SpringDamper) PotentialEnergy() float64 {
	e := s.l - s.L0
	return 0.5 * s.C * e * e
}

// DirectionalSpringDamper acts along a direction fixed in frame 1. The
// deflection is measured between frame 1 and frame 2 along that direction.
type DirectionalSpringDamper struct {
	base
	C, D, L0  float64
	Direction spatial.Vec3

	f1, f2 *kinematics.Frame
	dir    spatial.Vec3
	rho    spatial.Vec3
	g, gd  float64
	force  float64
}

func NewDirectionalSpringDamper(name, frame1, frame2 string, dir spatial.Vec3, c, d, l0 float64) *DirectionalSpringDamper {
	return &DirectionalSpringDamper{
		base:      base{name: name, paths: []string{frame1, frame2}},
		C:         c,
		D:         d,
		L0:        l0,
		Direction: dir,
	}
}

func (s *DirectionalSpringDamper) Connect(resolve Resolver, nu int, tol Tolerances) error {
	if !(s.Direction.Len() > 0) {
		return dynamo.Modelf(s.name, "direction is zero")
	}
	fs, err := s.resolve(resolve)
	if err != nil {
		return err
	}
	s.f1, s.f2 = fs[0], fs[1]
	s.nu, s.tol = nu, tol
	s.Direction = s.Direction.Normalize()
	return nil
}

func (s *DirectionalSpringDamper) Update(t float64) error {
	s.dir = s.f1.Orientation().Mul3x1(s.Direction)
	s.rho = s.f2.Position().Sub(s.f1.Position())
	s.g = s.dir.Dot(s.rho)
	w1 := s.f1.AngularVelocity()
	v1c := s.f1.Velocity().Add(w1.Cross(s.rho))
	s.gd = s.dir.Dot(s.f2.Velocity().Sub(v1c))
	s.force = -s.C*(s.g-s.L0) - s.D*s.gd
	return nil
}

func (s *DirectionalSpringDamper) AddSmoothForces(h []float64) {
	pointColumnScaled(h, s.f2, spatial.Zero, s.dir, s.force)
	pointColumnScaled(h, s.f1, s.rho, s.dir, -s.force)
}

func (s *DirectionalSpringDamper) Forces() []float64 { return []float64{s.force} }

func (s *DirectionalSpringDamper) PotentialEnergy() float64 {
	e := s.g - s.L0
	return 0.5 * s.C * e * e
}

func pointColumnScaled(h []float64, f *kinematics.Frame, rho, d spatial.Vec3, scale float64) {
	if scale == 0 {
		return
	}
	pointColumn(h, f, rho, d, scale)
}

// KineticExcitation applies a prescribed force and moment, given in world
// coordinates, at a frame.
type KineticExcitation struct {
	base
	F, M kinematics.VectorFunc

	f      *kinematics.Frame
	force  spatial.Vec3
	moment spatial.Vec3
}

func NewKineticExcitation(name, frame string, force, moment kinematics.VectorFunc) *KineticExcitation {
	return &KineticExcitation{base: base{name: name, paths: []string{frame}}, F: force, M: moment}
}

func (k *KineticExcitation) Connect(resolve Resolver, nu int, tol Tolerances) error {
	if k.F == nil && k.M == nil {
		return dynamo.Modelf(k.name, "excitation without force or moment")
	}
	fs, err := k.resolve(resolve)
	if err != nil {
		return err
	}
	k.f = fs[0]
	k.nu, k.tol = nu, tol
	return nil
}

func (k *KineticExcitation) Update(t float64) error {
	k.force, k.moment = spatial.Zero, spatial.Zero
	if k.F != nil {
		k.force = k.F(t)
	}
	if k.M != nil {
		k.moment = k.M(t)
	}
	return nil
}

func (k *KineticExcitation) AddSmoothForces(h []float64) {
	spatial.AddTransposed(h, k.f.JacobianOfTranslation(0), k.force)
	spatial.AddTransposed(h, k.f.JacobianOfRotation(0), k.moment)
}

func (k *KineticExcitation) Forces() []float64 {
	return []float64{k.force.Len(), k.moment.Len()}
}
