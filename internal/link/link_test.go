package link

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

var tol = Tolerances{GapTol: 1e-8, GdTol: 1e-6}

type model struct {
	tree *kinematics.Tree
	st   *kinematics.State
}

func (m *model) resolve(path string) (*kinematics.Frame, error) {
	for _, f := range m.tree.Frames() {
		if f.Path() == path {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no frame %s", path)
}

func (m *model) set(q, u []float64) {
	copy(m.st.Q, q)
	copy(m.st.U, u)
	m.tree.Begin(0)
	m.tree.AssignCoordinates()
}

// twoPoints has two free point masses A and B translating in space.
func twoPoints(t *testing.T) *model {
	t.Helper()
	tree := kinematics.NewTree()
	for i, name := range []string{"A", "B"} {
		b := kinematics.NewRigidBody(name)
		b.SetTranslation(kinematics.NewTranslationXYZ())
		b.SetFrameOfReference(tree.Inertial())
		b.Bind(3*i, 3*i)
		if err := tree.RegisterBody(b, "/"+name); err != nil {
			t.Fatal(err)
		}
	}
	st := kinematics.NewState(6, 6)
	if err := tree.Freeze(st); err != nil {
		t.Fatal(err)
	}
	return &model{tree: tree, st: st}
}

// twoRigid has two bodies with six degrees of freedom each and an offset
// frame on each of them.
func twoRigid(t *testing.T) *model {
	t.Helper()
	tree := kinematics.NewTree()
	for i, name := range []string{"A", "B"} {
		b := kinematics.NewRigidBody(name)
		b.SetTranslation(kinematics.NewTranslationXYZ())
		b.SetRotation(kinematics.NewRotationCardanXYZ())
		b.SetFrameOfReference(tree.Inertial())
		b.AddFrame("P", "K", spatial.Vec3{0.3, -0.2 * float64(i+1), 0.1}, spatial.CardanXYZ(0.2, -0.1, 0.4*float64(i)))
		b.Bind(6*i, 6*i)
		if err := tree.RegisterBody(b, "/"+name); err != nil {
			t.Fatal(err)
		}
	}
	st := kinematics.NewState(12, 12)
	if err := tree.Freeze(st); err != nil {
		t.Fatal(err)
	}
	return &model{tree: tree, st: st}
}

func connect(t *testing.T, m *model, l Link) {
	t.Helper()
	if err := l.Connect(m.resolve, len(m.st.U), tol); err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestSpringDamperForces(t *testing.T) {
	m := twoPoints(t)
	s := NewSpringDamper("spring", "/A/K", "/B/K", 10, 2, 1)
	connect(t, m, s)
	m.set([]float64{0, 0, 0, 2, 0, 0}, []float64{0, 0, 0, 0.5, 0, 0})
	if err := s.Update(0); err != nil {
		t.Fatal(err)
	}
	// f = -10*(2-1) - 2*0.5
	if f := s.Forces()[0]; f != -11 {
		t.Errorf("force = %v, want -11", f)
	}
	h := make([]float64, 6)
	s.AddSmoothForces(h)
	want := []float64{11, 0, 0, -11, 0, 0}
	for i := range h {
		if math.Abs(h[i]-want[i]) > 1e-12 {
			t.Fatalf("h = %v, want %v", h, want)
		}
	}
	if e := s.PotentialEnergy(); e != 5 {
		t.Errorf("energy = %v", e)
	}
}

func TestSpringDamperCoincident(t *testing.T) {
	m := twoPoints(t)
	s := NewSpringDamper("spring", "/A/K", "/B/K", 10, 0, 1)
	connect(t, m, s)
	m.set(make([]float64, 6), make([]float64, 6))
	if err := s.Check(); !errors.Is(err, dynamo.ErrModelDefinition) {
		t.Errorf("Check = %v", err)
	}
	if err := s.Update(0); !errors.Is(err, dynamo.ErrNumericDegeneracy) {
		t.Errorf("Update = %v", err)
	}
}

func TestUnresolvedFrame(t *testing.T) {
	m := twoPoints(t)
	s := NewSpringDamper("spring", "/A/K", "/C/K", 10, 0, 1)
	if err := s.Connect(m.resolve, 6, tol); err == nil {
		t.Error("unresolved frame accepted")
	}
}

func TestDirectionalSpringDamper(t *testing.T) {
	m := twoPoints(t)
	s := NewDirectionalSpringDamper("d", "/A/K", "/B/K", spatial.Vec3{0, 2, 0}, 4, 0, 0.5)
	connect(t, m, s)
	m.set([]float64{0, 0, 0, 3, 1.5, 0}, make([]float64, 6))
	s.Update(0)
	h := make([]float64, 6)
	s.AddSmoothForces(h)
	// Deflection 1 along y, force -4 on B.
	if h[4] != -4 || h[1] != 4 || h[3] != 0 {
		t.Errorf("h = %v", h)
	}
	if e := s.PotentialEnergy(); e != 2 {
		t.Errorf("energy = %v", e)
	}
}

func TestKineticExcitation(t *testing.T) {
	m := twoPoints(t)
	k := NewKineticExcitation("push", "/B/K", func(t float64) spatial.Vec3 { return spatial.Vec3{t, 0, -1} }, nil)
	connect(t, m, k)
	m.set(make([]float64, 6), make([]float64, 6))
	k.Update(2)
	h := make([]float64, 6)
	k.AddSmoothForces(h)
	if h[3] != 2 || h[5] != -1 || h[0] != 0 {
		t.Errorf("h = %v", h)
	}
	if err := NewKineticExcitation("x", "/B/K", nil, nil).Connect(m.resolve, 6, tol); !errors.Is(err, dynamo.ErrModelDefinition) {
		t.Errorf("empty excitation: %v", err)
	}
}

func TestContactOpenAndClosed(t *testing.T) {
	tree := kinematics.NewTree()
	ground := kinematics.NewFixedRelativeFrame("ground", "/I", spatial.Zero, spatial.Mat3{0, 1, 0, -1, 0, 0, 0, 0, 1})
	ground.SetReference(tree.Inertial())
	tree.Register(ground.Frame, "/ground")
	ball := kinematics.NewRigidBody("ball")
	ball.SetTranslation(kinematics.NewTranslationXYZ())
	ball.SetFrameOfReference(tree.Inertial())
	ball.Bind(0, 0)
	tree.RegisterBody(ball, "/ball")
	st := kinematics.NewState(3, 3)
	if err := tree.Freeze(st); err != nil {
		t.Fatal(err)
	}
	m := &model{tree: tree, st: st}

	c := NewContact("contact", "/ground", "/ball/K", SpherePlane, 0.1).WithFriction(law.PlanarCoulomb{MuC: 0.5})
	connect(t, m, c)

	m.set([]float64{0, 0.6, 0}, []float64{1, -2, 0})
	if err := c.Check(); err != nil {
		t.Fatal(err)
	}
	g, gdN, gdT := c.Gap()
	if math.Abs(g-0.5) > 1e-12 || gdN != -2 {
		t.Errorf("g = %v, gdN = %v", g, gdN)
	}
	// The plane y-axis is world -x.
	if gdT[0] != -1 {
		t.Errorf("gdT = %v", gdT)
	}
	if cs := c.Constraints(ForceLevel); cs != nil {
		t.Errorf("open contact has %d force constraints", len(cs))
	}
	if cs := c.Constraints(ImpactLevel); cs != nil {
		t.Errorf("open contact has %d impact constraints", len(cs))
	}
	if sv := c.StopValues(nil); len(sv) != 2 || math.Abs(sv[0]-0.5) > 1e-12 || sv[1] != 1 {
		t.Errorf("stop values = %v", sv)
	}

	// Penetrating while approaching: impact required.
	m.set([]float64{0, 0.1, 0}, []float64{1, -2, 0})
	c.Update(0)
	if !c.NeedsImpact() || !c.ActiveSetChanged() {
		t.Error("closing contact not reported")
	}
	cs := c.Constraints(ImpactLevel)
	if len(cs) != 2 || cs[0].W.At(1, 0) != 1 || cs[1].W.At(0, 0) != -1 {
		t.Fatalf("impact constraints = %d", len(cs))
	}

	// Resting and sliding along -x of the plane tangent.
	m.set([]float64{0, 0.1, 0}, []float64{1, 0, 0})
	c.Update(0)
	if s := c.State(); !s.Closed || !s.Active || !s.Sliding {
		t.Fatalf("state = %+v", s)
	}
	cs = c.Constraints(ForceLevel)
	if len(cs) != 1 || cs[0].V == nil {
		t.Fatalf("sliding contact constraints = %v", cs)
	}
	// V = n - mu*t*sign(gdT): gdT = -1 along t = -x, so V = (-0.5, 1, 0).
	v := cs[0].Directions()
	if want := mat.NewDense(3, 1, []float64{-0.5, 1, 0}); !mat.EqualApprox(v, want, 1e-12) {
		t.Errorf("V = %v", mat.Formatted(v))
	}
	cs[0].La[0] = 4
	laN, laT := c.Multipliers()
	if laN != 4 || laT[0] != 2 {
		t.Errorf("multipliers = %v, %v", laN, laT)
	}

	// Sticking: normal and tangential blocks.
	m.set([]float64{0, 0.1, 0}, []float64{0, 0, 0})
	c.Update(0)
	if cs := c.Constraints(ForceLevel); len(cs) != 2 || cs[1].Block.Size() != 1 {
		t.Errorf("sticking contact constraints = %d", len(cs))
	}
}

func TestContactLawConsistency(t *testing.T) {
	m := twoPoints(t)
	c := NewContact("c", "/A/K", "/B/K", PointPlane, 0)
	c.RegularizedNormal = law.RegularizedUnilateral{C: 1}
	if err := c.Connect(m.resolve, 6, tol); !errors.Is(err, dynamo.ErrModelDefinition) {
		t.Errorf("mixed laws accepted: %v", err)
	}
	r := NewRegularizedContact("r", "/A/K", "/B/K", PointPlane, 0, law.RegularizedUnilateral{C: 1})
	r.Friction = law.PlanarCoulomb{MuC: 0.1}
	if err := r.Connect(m.resolve, 6, tol); !errors.Is(err, dynamo.ErrModelDefinition) {
		t.Errorf("regularized contact with set-valued friction accepted: %v", err)
	}
	s := NewContact("s", "/A/K", "/B/K", SpherePlane, 0)
	if err := s.Connect(m.resolve, 6, tol); !errors.Is(err, dynamo.ErrModelDefinition) {
		t.Errorf("zero radius sphere accepted: %v", err)
	}
}

func TestRegularizedContactForces(t *testing.T) {
	m := twoPoints(t)
	c := NewRegularizedContact("r", "/A/K", "/B/K", PointPlane, 0, law.RegularizedUnilateral{C: 100})
	c.RegularizedFriction = &law.RegularizedFriction{Law: law.SpatialCoulomb{MuC: 0.5}, Eps: 1e-3}
	connect(t, m, c)
	// B is 0.01 below the plane x = 0 of A and slides along +y.
	m.set([]float64{0, 0, 0, -0.01, 0, 0}, []float64{0, 0, 0, 0, 1, 0})
	c.Update(0)
	h := make([]float64, 6)
	c.AddSmoothForces(h)
	if math.Abs(h[3]-1) > 1e-12 || math.Abs(h[4]+0.5) > 1e-12 || math.Abs(h[1]-0.5) > 1e-12 {
		t.Errorf("h = %v", h)
	}
	if c.Constraints(ForceLevel) != nil || len(c.StopValues(nil)) != 0 {
		t.Error("regularized contact exposes set-valued rows")
	}
}

var (
	rigidQ  = []float64{0.1, 0.2, -0.1, 0.3, -0.2, 0.5, 0.4, 0.1, 0.2, -0.3, 0.6, 0.1}
	rigidU  = []float64{0.3, -0.1, 0.2, 0.7, 0.4, -0.5, -0.2, 0.5, 0.1, 0.2, -0.6, 0.9}
	rigidUD = []float64{0.1, 0.3, -0.2, 0.4, -0.1, 0.2, 0.5, -0.3, 0.2, 0.1, 0.3, -0.4}
)

// checkGapAcceleration compares W^T*u' + wb with the time derivative of the
// gap velocities along a trajectory through (q, u) with acceleration u'.
func checkGapAcceleration(t *testing.T, m *model, l Link, gd func() []float64, rows func() ([]*mat.Dense, [][]float64)) {
	t.Helper()
	const h = 1e-5
	along := func(s float64) ([]float64, []float64) {
		q := make([]float64, len(rigidQ))
		u := make([]float64, len(rigidU))
		for i := range q {
			q[i] = rigidQ[i] + rigidU[i]*s + 0.5*rigidUD[i]*s*s
			u[i] = rigidU[i] + rigidUD[i]*s
		}
		return q, u
	}
	q, u := along(h)
	m.set(q, u)
	l.Update(0)
	plus := append([]float64(nil), gd()...)
	q, u = along(-h)
	m.set(q, u)
	l.Update(0)
	minus := append([]float64(nil), gd()...)

	m.set(rigidQ, rigidU)
	l.Update(0)
	ws, wbs := rows()
	i := 0
	for k, w := range ws {
		_, cols := w.Dims()
		for j := 0; j < cols; j++ {
			got := wbs[k][j]
			vel := 0.0
			for r := range rigidUD {
				got += w.At(r, j) * rigidUD[r]
				vel += w.At(r, j) * rigidU[r]
			}
			want := (plus[i] - minus[i]) / (2 * h)
			if math.Abs(got-want) > 1e-6 {
				t.Errorf("row %d: W^T*ud + wb = %v, d/dt gd = %v", i, got, want)
			}
			if math.Abs(vel-gd()[i]) > 1e-12 {
				t.Errorf("row %d: W^T*u = %v, gd = %v", i, vel, gd()[i])
			}
			i++
		}
	}
}

func TestJointGapAcceleration(t *testing.T) {
	m := twoRigid(t)
	j := NewJoint("j", "/A/P", "/B/P", []spatial.Vec3{spatial.EX, spatial.EY}, []spatial.Vec3{spatial.EZ})
	connect(t, m, j)
	checkGapAcceleration(t, m, j, j.GapVelocities, func() ([]*mat.Dense, [][]float64) {
		var ws []*mat.Dense
		var wbs [][]float64
		for _, c := range j.Constraints(ForceLevel) {
			ws = append(ws, c.W)
			wbs = append(wbs, c.Wb)
		}
		return ws, wbs
	})
}

func TestContactGapAcceleration(t *testing.T) {
	m := twoRigid(t)
	c := NewContact("c", "/A/P", "/B/P", SpherePlane, 0.2).WithFriction(law.SpatialCoulomb{MuC: 0.3})
	connect(t, m, c)
	gd := func() []float64 {
		_, gdN, gdT := c.Gap()
		return append([]float64{gdN}, gdT...)
	}
	checkGapAcceleration(t, m, c, gd, func() ([]*mat.Dense, [][]float64) {
		return []*mat.Dense{c.normal.W, c.tangent.W}, [][]float64{c.normal.Wb, c.tangent.Wb}
	})
}

func TestElasticJoint(t *testing.T) {
	m := twoPoints(t)
	j := NewElasticJoint("e", "/A/K", "/B/K", []spatial.Vec3{spatial.EX}, nil, law.RegularizedBilateral{C: 3})
	connect(t, m, j)
	m.set([]float64{0, 0, 0, 2, 0, 0}, make([]float64, 6))
	j.Update(0)
	h := make([]float64, 6)
	j.AddSmoothForces(h)
	if h[3] != -6 || h[0] != 6 {
		t.Errorf("h = %v", h)
	}
	if j.Constraints(ForceLevel) != nil {
		t.Error("elastic joint exposes constraints")
	}
	if e := j.PotentialEnergy(); e != 6 {
		t.Errorf("energy = %v", e)
	}
}
