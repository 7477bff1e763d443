package kinematics

import (
	"fmt"
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

// RigidBody owns a kinematics frame K, a centre of mass frame C fixed
// relative to K, and any number of further frames. K is positioned relative
// to the frame of reference by a translation followed by a rotation.
type RigidBody struct {
	name    string
	path    string
	mass    float64
	inertia spatial.Mat3
	frames  []*Frame
	k, c    *Frame
	refName string
	ref     *Frame
	trans   Translation
	rot     Rotation
	q0, u0  []float64
	dep     *Dependency

	tree        *Tree
	qOff, uOff  int
	jRel        *mat.Dense
	assigned    bool
	paramsDirty bool

	qBuf, uBuf []float64
	prPK, wrPK spatial.Vec3
	apk        spatial.Mat3
	pjt, pjr   *mat.Dense
	addT, addR *mat.Dense
	vRel, wRel spatial.Vec3
}

// NewRigidBody creates a body with unit mass and inertia, attached to the
// inertial frame without degrees of freedom.
func NewRigidBody(name string) *RigidBody {
	b := &RigidBody{
		name:    name,
		mass:    1,
		inertia: spatial.Identity,
		refName: "/I",
		qOff:    -1,
		uOff:    -1,
	}
	b.k = &Frame{name: "K", kind: kinematicsFrame, id: noFrame, owner: b, ori: spatial.Identity}
	c := NewFixedRelativeFrame("C", "K", spatial.Zero, spatial.Identity)
	c.owner = b
	b.c = c.Frame
	b.frames = []*Frame{b.k, b.c}
	return b
}

func (b *RigidBody) Name() string { return b.name }

func (b *RigidBody) Path() string {
	if b.path == "" {
		return b.name
	}
	return b.path
}

func (b *RigidBody) Mass() float64 { return b.mass }

// InertiaTensor is taken about the centre of mass in C coordinates.
func (b *RigidBody) InertiaTensor() spatial.Mat3 { return b.inertia }

func (b *RigidBody) SetMass(m float64) { b.mass = m }

func (b *RigidBody) SetInertiaTensor(i spatial.Mat3) { b.inertia = i }

// SetCenterOfMass places C at r in K coordinates.
func (b *RigidBody) SetCenterOfMass(r spatial.Vec3) { b.c.fixed.r = r }

func (b *RigidBody) SetTranslation(t Translation) { b.trans = t }

func (b *RigidBody) SetRotation(r Rotation) { b.rot = r }

func (b *RigidBody) Translation() Translation { return b.trans }

func (b *RigidBody) Rotation() Rotation { return b.rot }

// SetFrameOfReferencePath names the frame of reference, resolved at initialization.
func (b *RigidBody) SetFrameOfReferencePath(path string) { b.refName = path }

func (b *RigidBody) FrameOfReferencePath() string { return b.refName }

func (b *RigidBody) SetFrameOfReference(f *Frame) error {
	if b.tree != nil && b.tree.frozen {
		return fmt.Errorf("body %s: frame of reference changed after initialization", b.Path())
	}
	b.ref = f
	return nil
}

func (b *RigidBody) FrameOfReference() *Frame { return b.ref }

// SetInitialState sets the relative coordinates and rates at t0.
func (b *RigidBody) SetInitialState(q0, u0 []float64) {
	b.q0 = append([]float64(nil), q0...)
	b.u0 = append([]float64(nil), u0...)
}

// InitialState returns q0 and u0 padded with zeros to the relative size.
func (b *RigidBody) InitialState() (q0, u0 []float64) {
	n := b.RelativeSize()
	q0 = make([]float64, n)
	u0 = make([]float64, n)
	copy(q0, b.q0)
	copy(u0, b.u0)
	return q0, u0
}

// Constrain makes the body's coordinates dependent on other bodies.
func (b *RigidBody) Constrain(d *Dependency) { b.dep = d }

func (b *RigidBody) Dependency() *Dependency { return b.dep }

// AddFrame adds a frame fixed relative to the body frame named relativeTo.
func (b *RigidBody) AddFrame(name, relativeTo string, r spatial.Vec3, a spatial.Mat3) *FixedRelativeFrame {
	f := NewFixedRelativeFrame(name, relativeTo, r, a)
	f.owner = b
	b.frames = append(b.frames, f.Frame)
	return f
}

// Frame returns the body frame with the given name or nil.
func (b *RigidBody) Frame(name string) *Frame {
	for _, f := range b.frames {
		if f.name == name {
			return f
		}
	}
	return nil
}

func (b *RigidBody) Frames() []*Frame { return b.frames }

func (b *RigidBody) KinematicsFrame() *Frame { return b.k }

func (b *RigidBody) CenterOfMassFrame() *Frame { return b.c }

// RelativeSize is the number of parameterization coordinates.
func (b *RigidBody) RelativeSize() int { return b.trans.Size() + b.rot.Size() }

// QSize is the number of free coordinates: zero when constrained externally.
func (b *RigidBody) QSize() int {
	if b.dep != nil {
		return 0
	}
	return b.RelativeSize()
}

func (b *RigidBody) USize() int { return b.QSize() }

// Bind assigns the body's offsets into the solver's coordinate arena.
func (b *RigidBody) Bind(qOff, uOff int) {
	b.qOff = qOff
	b.uOff = uOff
}

func (b *RigidBody) QOffset() int { return b.qOff }

func (b *RigidBody) UOffset() int { return b.uOff }

// Validate checks the body definition before any storage is allocated.
func (b *RigidBody) Validate() error {
	p := b.Path()
	if !(b.mass > 0) {
		return dynamo.Modelf(p, "mass must be positive, got %g", b.mass)
	}
	for i := 0; i < 3; i++ {
		if b.inertia.At(i, i) < 0 {
			return dynamo.Modelf(p, "inertia tensor has negative diagonal")
		}
		for j := 0; j < 3; j++ {
			if math.Abs(b.inertia.At(i, j)-b.inertia.At(j, i)) > 1e-12 {
				return dynamo.Modelf(p, "inertia tensor is not symmetric")
			}
		}
	}
	if err := b.trans.Validate(); err != nil {
		return dynamo.Modelf(p, "%v", err)
	}
	if err := b.rot.Validate(); err != nil {
		return dynamo.Modelf(p, "%v", err)
	}
	n := b.RelativeSize()
	if len(b.q0) > n || len(b.u0) > n {
		return dynamo.Modelf(p, "initial state has %d/%d entries, parameterization size is %d", len(b.q0), len(b.u0), n)
	}
	if b.dep != nil {
		if len(b.dep.Sources) == 0 || len(b.dep.Sources) != len(b.dep.Ratios) {
			return dynamo.Modelf(p, "dependency needs one ratio per source")
		}
		for _, src := range b.dep.Sources {
			if src == b {
				return dynamo.Modelf(p, "body depends on itself")
			}
			if src.dep != nil {
				return dynamo.Modelf(p, "dependency source %s is itself constrained", src.Path())
			}
			if src.RelativeSize() != n {
				return dynamo.Modelf(p, "dependency source %s has size %d, want %d", src.Path(), src.RelativeSize(), n)
			}
		}
	}
	return nil
}

func (b *RigidBody) freeze(nu int) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if b.ref == nil {
		return dynamo.Modelf(b.Path(), "unresolved frame of reference %q", b.refName)
	}
	nT, nR := b.trans.Size(), b.rot.Size()
	n := nT + nR
	b.qBuf = make([]float64, n)
	b.uBuf = make([]float64, n)
	b.pjt = spatial.NewJacobian(nT)
	b.pjr = spatial.NewJacobian(nR)
	b.addT = spatial.NewJacobian(nu)
	b.addR = spatial.NewJacobian(nu)
	if n == 0 || nu == 0 {
		b.jRel = &mat.Dense{}
		return nil
	}
	b.jRel = mat.NewDense(n, nu, nil)
	if b.dep == nil {
		if b.uOff < 0 || b.uOff+n > nu {
			return dynamo.Modelf(b.Path(), "coordinates not bound to the arena")
		}
		for i := 0; i < n; i++ {
			b.jRel.Set(i, b.uOff+i, 1)
		}
		return nil
	}
	for i, src := range b.dep.Sources {
		if src.uOff < 0 {
			return dynamo.Modelf(b.Path(), "dependency source %s is not part of the model", src.Path())
		}
		for r := 0; r < n; r++ {
			c := src.uOff + r
			b.jRel.Set(r, c, b.jRel.At(r, c)+b.dep.Ratios[i])
		}
	}
	return nil
}

func (b *RigidBody) relQ() []float64 {
	n := b.RelativeSize()
	if b.dep == nil {
		return b.tree.state.Q[b.qOff : b.qOff+n]
	}
	for i := range b.qBuf {
		b.qBuf[i] = 0
	}
	for i, src := range b.dep.Sources {
		for j, v := range src.relQ() {
			b.qBuf[j] += b.dep.Ratios[i] * v
		}
	}
	return b.qBuf
}

func (b *RigidBody) relU() []float64 {
	n := b.RelativeSize()
	if b.dep == nil {
		return b.tree.state.U[b.uOff : b.uOff+n]
	}
	for i := range b.uBuf {
		b.uBuf[i] = 0
	}
	for i, src := range b.dep.Sources {
		for j, v := range src.relU() {
			b.uBuf[j] += b.dep.Ratios[i] * v
		}
	}
	return b.uBuf
}

// RelativeCoordinates returns the current q and u of the parameterization.
func (b *RigidBody) RelativeCoordinates() (q, u []float64) {
	b.checkAssigned()
	return append([]float64(nil), b.relQ()...), append([]float64(nil), b.relU()...)
}

func (b *RigidBody) checkAssigned() {
	if !b.assigned {
		panic(&dynamo.ProgrammingError{Where: b.Path(), Reason: "coordinates not assigned for the current evaluation"})
	}
}

func (b *RigidBody) update(q quantity) {
	b.checkAssigned()
	switch q {
	case qPosition:
		b.updatePosition()
	case qVelocity:
		b.updateVelocity()
	case qGyroscopic:
		b.updateGyroscopic()
	case qJacobian0:
		b.updateJacobian()
	}
}

func (b *RigidBody) updateParams() {
	if !b.paramsDirty {
		return
	}
	nT := b.trans.Size()
	q := b.relQ()
	t := b.tree.t
	if nT > 0 {
		b.trans.Jacobian(b.pjt, q[:nT], t)
	}
	if b.rot.Size() > 0 {
		b.rot.Jacobian(b.pjr, q[nT:], t)
	}
	b.paramsDirty = false
}

func (b *RigidBody) updatePosition() {
	nT := b.trans.Size()
	q := b.relQ()
	t := b.tree.t
	b.prPK = b.trans.Position(q[:nT], t)
	b.apk = b.rot.Orientation(q[nT:], t)
	aR := b.ref.Orientation()
	b.wrPK = aR.Mul3x1(b.prPK)
	b.k.pos = b.ref.Position().Add(b.wrPK)
	b.k.ori = aR.Mul3(b.apk)
}

func (b *RigidBody) updateVelocity() {
	b.k.ensure(qPosition)
	b.updateParams()
	nT := b.trans.Size()
	q, u := b.relQ(), b.relU()
	b.vRel = spatial.MulVec(b.pjt, u[:nT]).Add(b.trans.TimeDerivative(q[:nT], b.tree.t))
	b.wRel = spatial.MulVec(b.pjr, u[nT:])
	aR := b.ref.Orientation()
	wR := b.ref.AngularVelocity()
	b.k.vel = b.ref.Velocity().Add(wR.Cross(b.wrPK)).Add(aR.Mul3x1(b.vRel))
	b.k.angVel = wR.Add(aR.Mul3x1(b.wRel))
}

func (b *RigidBody) updateGyroscopic() {
	b.k.ensure(qVelocity)
	nT := b.trans.Size()
	q, u := b.relQ(), b.relU()
	t := b.tree.t
	aR := b.ref.Orientation()
	wR := b.ref.AngularVelocity()
	jT := b.ref.GyroscopicAcceleration()
	jR := b.ref.GyroscopicAngularAcceleration()
	vRel := aR.Mul3x1(b.vRel)
	b.k.gyroT = jT.
		Add(jR.Cross(b.wrPK)).
		Add(wR.Cross(wR.Cross(b.wrPK))).
		Add(wR.Cross(vRel).Mul(2)).
		Add(aR.Mul3x1(b.trans.Bias(q[:nT], u[:nT], t)))
	b.k.gyroR = jR.
		Add(wR.Cross(aR.Mul3x1(b.wRel))).
		Add(aR.Mul3x1(b.rot.Bias(q[nT:], u[nT:], t)))
}

func (b *RigidBody) updateJacobian() {
	b.k.ensure(qPosition)
	b.updateParams()
	aR := b.ref.Orientation()
	jtR := b.ref.JacobianOfTranslation(0)
	jrR := b.ref.JacobianOfRotation(0)
	if jtR.IsEmpty() {
		return
	}
	nT, nR := b.trans.Size(), b.rot.Size()
	var addT, addR *mat.Dense
	if nT > 0 {
		b.addT.Mul(b.pjt, b.jRel.Slice(0, nT, 0, spatial.Cols(b.addT)))
		addT = b.addT
	}
	spatial.Transform(b.k.jt[0], jtR, jrR, b.wrPK, aR, addT)
	b.k.jr[0].Copy(jrR)
	if nR > 0 {
		b.addR.Mul(b.pjr, b.jRel.Slice(nT, nT+nR, 0, spatial.Cols(b.addR)))
		addR = b.addR
		var tmp mat.Dense
		tmp.Mul(spatial.Dense(aR), addR)
		b.k.jr[0].Add(b.k.jr[0], &tmp)
	}
}

// AddMassAndForces accumulates the Newton-Euler contribution of the body:
//
//	M += m*JT^T*JT + JR^T*Theta*JR
//	h += JT^T*m*(g - jT) + JR^T*((Theta*w) x w - Theta*jR)
//
// where JT, JR, jT, jR belong to the centre of mass frame.
func (b *RigidBody) AddMassAndForces(m *mat.Dense, h []float64, g spatial.Vec3) {
	b.AddMass(m)
	b.AddForces(h, g)
}

// AddForces accumulates only the right hand side h.
func (b *RigidBody) AddForces(h []float64, g spatial.Vec3) {
	c := b.c
	jt := c.JacobianOfTranslation(0)
	jr := c.JacobianOfRotation(0)
	if jt.IsEmpty() {
		return
	}
	theta := b.worldInertia()
	w := c.AngularVelocity()
	fT := g.Sub(c.GyroscopicAcceleration()).Mul(b.mass)
	fR := theta.Mul3x1(w).Cross(w).Sub(theta.Mul3x1(c.GyroscopicAngularAcceleration()))
	spatial.AddTransposed(h, jt, fT)
	spatial.AddTransposed(h, jr, fR)
}

// AddMass accumulates only the mass matrix.
func (b *RigidBody) AddMass(m *mat.Dense) {
	c := b.c
	jt := c.JacobianOfTranslation(0)
	jr := c.JacobianOfRotation(0)
	if jt.IsEmpty() {
		return
	}
	var prod, tmp mat.Dense
	prod.Mul(jt.T(), jt)
	prod.Scale(b.mass, &prod)
	m.Add(m, &prod)
	tmp.Mul(spatial.Dense(b.worldInertia()), jr)
	prod.Mul(jr.T(), &tmp)
	m.Add(m, &prod)
}

func (b *RigidBody) worldInertia() spatial.Mat3 {
	a := b.c.Orientation()
	return a.Mul3(b.inertia).Mul3(a.Transpose())
}

// PotentialEnergy is the gravitational potential -m*g.r_C.
func (b *RigidBody) PotentialEnergy(g spatial.Vec3) float64 {
	return -b.mass * g.Dot(b.c.Position())
}

// MassIsConstant reports whether the body's mass matrix contribution is
// provably independent of q: the frame of reference is fixed in the inertial
// frame and the rotation, if any, is about a fixed axis through C.
func (b *RigidBody) MassIsConstant() bool {
	for f := b.ref; f != nil && f.kind != inertialFrame; {
		if f.kind != fixedFrame || f.owner != nil {
			return false
		}
		f = f.fixed.ref
	}
	switch b.rot.kind {
	case NoRotation:
		return true
	case RotationAboutFixedAxis:
		return b.c.fixed.r == spatial.Zero
	}
	return false
}

// Ancestors returns the bodies whose coordinates the body's kinematics depend on.
func (b *RigidBody) Ancestors() []*RigidBody {
	var out []*RigidBody
	seen := map[*RigidBody]bool{}
	var walk func(f *Frame)
	walk = func(f *Frame) {
		for f != nil && f.kind != inertialFrame {
			if f.kind == kinematicsFrame {
				o := f.owner
				if !seen[o] {
					seen[o] = true
					out = append(out, o)
				}
				for _, src := range o.depSources() {
					if !seen[src] {
						seen[src] = true
						out = append(out, src)
					}
					walk(src.ref)
				}
				f = o.ref
				continue
			}
			f = f.fixed.ref
		}
	}
	for _, src := range b.depSources() {
		seen[src] = true
		out = append(out, src)
		walk(src.ref)
	}
	walk(b.ref)
	return out
}

func (b *RigidBody) depSources() []*RigidBody {
	if b.dep == nil {
		return nil
	}
	return b.dep.Sources
}

// Dependency makes the relative coordinates of a body a fixed linear
// combination of the coordinates of other (free) bodies, as in a gear
// coupling.
type Dependency struct {
	Sources []*RigidBody
	Ratios  []float64
}

// NewGearDependency couples q = ratio * q_src.
func NewGearDependency(src *RigidBody, ratio float64) *Dependency {
	return &Dependency{Sources: []*RigidBody{src}, Ratios: []float64{ratio}}
}

// Add appends another source with its ratio.
func (d *Dependency) Add(src *RigidBody, ratio float64) *Dependency {
	d.Sources = append(d.Sources, src)
	d.Ratios = append(d.Ratios, ratio)
	return d
}
