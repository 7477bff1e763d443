package link

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

// Geometry selects the contact kinematics.
type Geometry uint8

const (
	// PointPlane contacts the origin of frame 2 with the plane through frame
	// 1 whose normal is the x-axis of frame 1.
	PointPlane Geometry = iota
	// SpherePlane contacts a sphere centred at frame 2 with that plane.
	SpherePlane
)

func (g Geometry) String() string {
	if g == SpherePlane {
		return "sphere-plane"
	}
	return "point-plane"
}

// ContactState is the activity of a contact at one evaluation.
type ContactState struct {
	Closed  bool
	Active  bool
	Sliding bool
}

// Contact is a unilateral contact with optional friction. Either all laws
// are set-valued or all are regularized.
type Contact struct {
	base
	Geometry Geometry
	Radius   float64

	NormalLaw      law.ForceLaw
	NormalImpact   law.ImpactLaw
	Friction       law.FrictionLaw
	FrictionImpact law.FrictionLaw

	RegularizedNormal   law.RegularizedLaw
	RegularizedFriction *law.RegularizedFriction

	plane, body *kinematics.Frame
	n           spatial.Vec3
	t           [2]spatial.Vec3
	rho1, rho2  spatial.Vec3
	vrel        spatial.Vec3

	g, gdN float64
	gdT    []float64
	colN   []float64
	colT   [][]float64
	wbN    float64
	wbT    []float64

	state    ContactState
	accepted ContactState
	slipDir  []float64
	laN      float64
	laT      []float64

	normal  *Constraint
	tangent *Constraint
	slip    *Constraint
}

// NewContact creates a frictionless rigid contact with a plastic impact law.
func NewContact(name, plane, body string, geom Geometry, radius float64) *Contact {
	return &Contact{
		base:         base{name: name, paths: []string{plane, body}},
		Geometry:     geom,
		Radius:       radius,
		NormalLaw:    law.UnilateralConstraint{},
		NormalImpact: law.UnilateralNewtonImpact{},
	}
}

// NewRegularizedContact creates a penalty contact.
func NewRegularizedContact(name, plane, body string, geom Geometry, radius float64, normal law.RegularizedLaw) *Contact {
	return &Contact{
		base:              base{name: name, paths: []string{plane, body}},
		Geometry:          geom,
		Radius:            radius,
		RegularizedNormal: normal,
	}
}

// WithFriction sets the friction law and, for set-valued contacts, uses it at
// impact level as well unless an impact law is already given.
func (c *Contact) WithFriction(f law.FrictionLaw) *Contact {
	c.Friction = f
	if c.FrictionImpact == nil {
		c.FrictionImpact = f
	}
	return c
}

func (c *Contact) SetValued() bool { return c.NormalLaw != nil }

func (c *Contact) frictionDim() int {
	switch {
	case c.Friction != nil:
		return c.Friction.Dim()
	case c.RegularizedFriction != nil:
		return c.RegularizedFriction.Dim()
	}
	return 0
}

func (c *Contact) Connect(resolve Resolver, nu int, tol Tolerances) error {
	setValued := c.NormalLaw != nil
	if setValued == (c.RegularizedNormal != nil) {
		return dynamo.Modelf(c.name, "contact needs either a set-valued or a regularized normal law")
	}
	if setValued && c.RegularizedFriction != nil {
		return dynamo.Modelf(c.name, "set-valued contact with regularized friction")
	}
	if !setValued && (c.Friction != nil || c.FrictionImpact != nil) {
		return dynamo.Modelf(c.name, "regularized contact with set-valued friction")
	}
	if setValued && c.NormalLaw.IsBilateral() {
		return dynamo.Modelf(c.name, "contact normal law must be unilateral")
	}
	if c.Geometry == SpherePlane && !(c.Radius > 0) {
		return dynamo.Modelf(c.name, "sphere radius must be positive")
	}
	if c.Geometry == PointPlane {
		c.Radius = 0
	}
	if setValued && c.NormalImpact == nil {
		c.NormalImpact = law.UnilateralNewtonImpact{}
	}
	if c.Friction != nil && c.FrictionImpact == nil {
		c.FrictionImpact = c.Friction
	}
	fs, err := c.resolve(resolve)
	if err != nil {
		return err
	}
	c.plane, c.body = fs[0], fs[1]
	if c.plane == c.body {
		return dynamo.Modelf(c.name, "contact connects frame %s to itself", c.plane.Path())
	}
	c.nu, c.tol = nu, tol
	k := c.frictionDim()
	c.gdT = make([]float64, k)
	c.wbT = make([]float64, k)
	c.laT = make([]float64, k)
	c.slipDir = make([]float64, k)
	c.colN = make([]float64, nu)
	c.colT = make([][]float64, k)
	for i := range c.colT {
		c.colT[i] = make([]float64, nu)
	}
	if setValued {
		c.normal = newConstraint(c, ncp.ForceBlock(c.name, c.NormalLaw), nu)
		if c.Friction != nil {
			c.tangent = newConstraint(c, ncp.FrictionBlock(c.name, c.Friction, c.normal.Block, 0), nu)
			c.slip = newConstraint(c, ncp.ForceBlock(c.name, c.NormalLaw), nu)
			c.slip.V = mat.NewDense(nu, 1, nil)
		}
	}
	return nil
}

func (c *Contact) Check() error {
	if err := c.Update(0); err != nil {
		return err
	}
	c.Accept()
	return nil
}

func (c *Contact) Update(t float64) error {
	a := c.plane.Orientation()
	c.n = spatial.Vec3{a.At(0, 0), a.At(1, 0), a.At(2, 0)}
	c.t[0] = spatial.Vec3{a.At(0, 1), a.At(1, 1), a.At(2, 1)}
	c.t[1] = spatial.Vec3{a.At(0, 2), a.At(1, 2), a.At(2, 2)}

	rP, rQ := c.plane.Position(), c.body.Position()
	d := rQ.Sub(rP)
	dn := c.n.Dot(d)
	c.g = dn - c.Radius
	c.rho1 = d.Sub(c.n.Mul(dn))
	c.rho2 = c.n.Mul(-c.Radius)

	vP, vQ := c.plane.Velocity(), c.body.Velocity()
	wP, wQ := c.plane.AngularVelocity(), c.body.AngularVelocity()
	c.vrel = vQ.Add(wQ.Cross(c.rho2)).Sub(vP.Add(wP.Cross(c.rho1)))
	c.gdN = c.n.Dot(c.vrel)
	for i := range c.gdT {
		c.gdT[i] = c.t[i].Dot(c.vrel)
	}

	// Bias of the gap accelerations with directions fixed in the plane frame.
	dv := vQ.Sub(vP)
	wn := wP.Cross(c.n)
	rhoDot := dv.Sub(c.n.Mul(wn.Dot(d) + c.n.Dot(dv))).Sub(wn.Mul(dn))
	acc := c.body.GyroscopicAcceleration().
		Add(c.body.GyroscopicAngularAcceleration().Cross(c.rho2)).
		Sub(wQ.Cross(wn.Mul(c.Radius))).
		Sub(c.plane.GyroscopicAcceleration()).
		Sub(c.plane.GyroscopicAngularAcceleration().Cross(c.rho1)).
		Sub(wP.Cross(rhoDot))
	bias := func(dir spatial.Vec3) float64 {
		return wP.Cross(dir).Dot(c.vrel) + dir.Dot(acc)
	}
	c.wbN = bias(c.n)
	c.column(c.colN, c.n)
	for i := range c.gdT {
		c.wbT[i] = bias(c.t[i])
		c.column(c.colT[i], c.t[i])
	}

	c.state = ContactState{Closed: c.g <= c.tol.GapTol}
	c.state.Active = c.state.Closed && math.Abs(c.gdN) <= c.tol.GdTol
	c.state.Sliding = c.state.Active && len(c.gdT) > 0 && law.Norm(c.gdT) > c.tol.GdTol

	if c.RegularizedNormal != nil {
		c.laN = c.RegularizedNormal.Force(c.g, c.gdN)
		if c.RegularizedFriction != nil {
			copy(c.laT, c.RegularizedFriction.Force(c.gdT, c.laN))
		}
		return nil
	}
	if !c.state.Active {
		c.laN = 0
		zero(c.laT)
	}
	c.fillConstraints()
	return nil
}

func (c *Contact) column(dst []float64, d spatial.Vec3) {
	zero(dst)
	pointColumn(dst, c.body, c.rho2, d, 1)
	pointColumn(dst, c.plane, c.rho1, d, -1)
}

func (c *Contact) fillConstraints() {
	setColumn(c.normal.W, 0, c.colN)
	c.normal.Wb[0] = c.wbN
	c.normal.Gd[0] = c.gdN
	if c.tangent == nil {
		return
	}
	for i := range c.gdT {
		setColumn(c.tangent.W, i, c.colT[i])
		c.tangent.Wb[i] = c.wbT[i]
		c.tangent.Gd[i] = c.gdT[i]
	}
	if !c.state.Sliding {
		return
	}
	c.slip.W.Copy(c.normal.W)
	c.slip.Wb[0] = c.wbN
	c.slip.Gd[0] = c.gdN
	mu := c.Friction.Mu(law.Norm(c.gdT))
	dir := c.slidingDirection()
	for k := 0; k < c.nu; k++ {
		v := c.colN[k]
		for i := range dir {
			v -= mu * dir[i] * c.colT[i][k]
		}
		c.slip.V.Set(k, 0, v)
	}
}

// slidingDirection keeps the slip direction of the last accepted state while
// the contact was sliding there, so the friction force stays smooth between
// events and a reversal shows up as a stop value crossing.
func (c *Contact) slidingDirection() []float64 {
	if c.accepted.Sliding {
		return c.slipDir
	}
	return law.SlipDirection(c.gdT)
}

// State returns the activity found by the last Update.
func (c *Contact) State() ContactState { return c.state }

// Gap returns the normal gap and the normal and tangential gap velocities.
func (c *Contact) Gap() (g, gdN float64, gdT []float64) { return c.g, c.gdN, c.gdT }

func (c *Contact) Constraints(level Level) []*Constraint {
	if c.normal == nil {
		return nil
	}
	if level == ImpactLevel {
		if !c.state.Closed {
			return nil
		}
		nc := newConstraint(c, ncp.ImpactBlock(c.name, c.NormalImpact, c.gdN), c.nu)
		setColumn(nc.W, 0, c.colN)
		nc.Gd[0] = c.gdN
		out := []*Constraint{nc}
		if c.FrictionImpact != nil {
			tc := newConstraint(c, ncp.FrictionImpactBlock(c.name, c.FrictionImpact, nc.Block, c.gdT), c.nu)
			for i := range c.gdT {
				setColumn(tc.W, i, c.colT[i])
				tc.Gd[i] = c.gdT[i]
			}
			out = append(out, tc)
		}
		return out
	}
	switch {
	case !c.state.Active:
		return nil
	case c.tangent == nil:
		return []*Constraint{c.normal}
	case c.state.Sliding:
		return []*Constraint{c.slip}
	}
	return []*Constraint{c.normal, c.tangent}
}

// Multipliers collects the force-level solution after the solver has written
// the constraint multipliers.
func (c *Contact) Multipliers() (laN float64, laT []float64) {
	if c.normal != nil && c.state.Active {
		switch {
		case c.tangent == nil:
			c.laN = c.normal.La[0]
		case c.state.Sliding:
			c.laN = c.slip.La[0]
			mu := c.Friction.Mu(law.Norm(c.gdT))
			for i, d := range c.slidingDirection() {
				c.laT[i] = -mu * math.Abs(c.laN) * d
			}
		default:
			c.laN = c.normal.La[0]
			copy(c.laT, c.tangent.La)
		}
	}
	return c.laN, c.laT
}

func (c *Contact) AddSmoothForces(h []float64) {
	if c.RegularizedNormal == nil {
		return
	}
	for k := range h {
		v := c.colN[k] * c.laN
		for i := range c.laT {
			v += c.colT[i][k] * c.laT[i]
		}
		h[k] += v
	}
}

// StopValues appends the normal force for contacts active at the last
// accepted state and the gap otherwise, followed by the tangential velocity
// along the accepted slip direction for friction contacts.
func (c *Contact) StopValues(dst []float64) []float64 {
	if c.normal == nil {
		return dst
	}
	if c.accepted.Active {
		laN, _ := c.Multipliers()
		dst = append(dst, laN)
	} else {
		dst = append(dst, c.g)
	}
	if c.Friction != nil {
		v := 1.0
		if c.accepted.Sliding {
			v = 0
			for i, d := range c.slipDir {
				v += d * c.gdT[i]
			}
		}
		dst = append(dst, v)
	}
	return dst
}

// NeedsImpact reports a closed contact that is still approaching.
func (c *Contact) NeedsImpact() bool {
	return c.normal != nil && c.state.Closed && c.gdN < -c.tol.GdTol
}

func (c *Contact) ActiveSetChanged() bool {
	return c.normal != nil && c.state != c.accepted
}

func (c *Contact) Accept() {
	c.accepted = c.state
	if c.state.Sliding {
		copy(c.slipDir, law.SlipDirection(c.gdT))
	}
}

// Forces returns the normal force followed by the tangential force magnitude.
func (c *Contact) Forces() []float64 {
	laN, laT := c.Multipliers()
	return []float64{laN, law.Norm(laT)}
}
