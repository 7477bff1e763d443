// Package mbs assembles bodies and links into a model and evaluates its
// equations of motion
//
//	M(q)*u' = h(q, u, t) + V*la
//
// for an external time integrator, including the set-valued constraint
// forces and impacts.
package mbs

import (
	"errors"
	"fmt"
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/link"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/mat"
)

// Stats counts the work done by a Solver.
type Stats struct {
	Evaluations   int
	Impacts       int
	Solves        int
	NCPIterations int
	Accepted      int
}

// Solver is the root group of a model. After Init the topology is frozen and
// the solver implements dynamo.EventSystem, dynamo.ImpulsiveSystem and
// dynamo.Hamiltonian. A Solver must not be used concurrently.
type Solver struct {
	*Group

	opts SolverOptions
	log  logr.Logger

	tree   *kinematics.Tree
	st     *kinematics.State
	bodies []*kinematics.RigidBody
	links  []link.Link
	owners []*Group
	nq, nu int
	x0     dynamo.State

	// fallback marks links currently reported as degenerate.
	fallback []bool

	m         *mat.Dense
	h         []float64
	mass      *massMatrix
	constMass bool

	force  *ncp.Solver
	impact *ncp.Solver

	t           float64
	initialized bool
	stats       Stats
}

func NewSolver(name string, opts SolverOptions, log logr.Logger) *Solver {
	s := &Solver{
		Group: NewGroup(name),
		opts:  opts,
		log:   log,
		tree:  kinematics.NewTree(),
	}
	s.Group.iframe = s.tree.Inertial()
	return s
}

func (s *Solver) Options() SolverOptions { return s.opts }

func (s *Solver) Tree() *kinematics.Tree { return s.tree }

// AllBodies returns every body of the model in coordinate order.
func (s *Solver) AllBodies() []*kinematics.RigidBody { return s.bodies }

// AllLinks returns every link of the model.
func (s *Solver) AllLinks() []link.Link { return s.links }

func (s *Solver) StateDim() int { return s.nq + s.nu }

// Sizes returns the number of generalized positions and velocities.
func (s *Solver) Sizes() (nq, nu int) { return s.nq, s.nu }

// InitialState returns a copy of x0 = [q0; u0].
func (s *Solver) InitialState() dynamo.State { return s.x0.Clone() }

func (s *Solver) ConstantMass() bool { return s.constMass }

func (s *Solver) MassBlocks() [][]int { return s.mass.blocks }

func (s *Solver) Stats() Stats { return s.stats }

// Init resolves references, validates the model, sizes the coordinate
// arena and checks the initial configuration. Every model definition error
// is reported here as a *dynamo.ModelError.
func (s *Solver) Init() error {
	if s.initialized {
		return errors.New("mbs: solver already initialized")
	}
	stages := []struct {
		name string
		fn   func() error
	}{
		{"validate", s.validate},
		{"resolve", s.resolve},
		{"size", s.calcSize},
		{"allocate", s.allocate},
		{"connect", s.connect},
		{"initial state", s.initialState},
		{"mass matrix", s.massStructure},
	}
	for _, stage := range stages {
		if err := stage.fn(); err != nil {
			return fmt.Errorf("init %s: %w", stage.name, err)
		}
	}
	s.force = ncp.NewSolver(s.opts.forceOptions(), s.log.WithName("ncp"))
	s.impact = ncp.NewSolver(s.opts.impactOptions(), s.log.WithName("impact"))
	s.initialized = true
	s.log.Info("model initialized",
		"bodies", len(s.bodies), "links", len(s.links),
		"nq", s.nq, "nu", s.nu,
		"massBlocks", len(s.mass.blocks), "constantMass", s.constMass,
		"strategy", s.opts.Strategy.String())
	return nil
}

func (s *Solver) validate() error {
	if err := s.opts.Validate(); err != nil {
		return err
	}
	inModel := map[*kinematics.RigidBody]bool{}
	err := s.walk(func(g *Group) error {
		if err := g.checkNames(); err != nil {
			return err
		}
		for _, b := range g.bodies {
			if inModel[b] {
				return dynamo.Modelf(g.elementPath(b.Name()), "body added twice")
			}
			inModel[b] = true
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.walk(func(g *Group) error {
		for _, b := range g.bodies {
			if err := b.Validate(); err != nil {
				return err
			}
			if d := b.Dependency(); d != nil {
				for _, src := range d.Sources {
					if !inModel[src] {
						return dynamo.Modelf(g.elementPath(b.Name()), "dependency source %s is not part of the model", src.Name())
					}
				}
			}
		}
		return nil
	})
}

func (s *Solver) resolve() error {
	return s.walk(func(g *Group) error {
		if g.parent != nil {
			if err := g.irel.SetReference(g.parent.iframe); err != nil {
				return err
			}
			if err := s.tree.Register(g.irel.Frame, g.Path()+"/I"); err != nil {
				return err
			}
		}
		for _, f := range g.frames {
			ref, err := g.Resolve(f.ReferenceName())
			if err != nil {
				return err
			}
			if err := f.SetReference(ref); err != nil {
				return err
			}
			if err := s.tree.Register(f.Frame, g.elementPath(f.Name())); err != nil {
				return err
			}
		}
		for _, b := range g.bodies {
			ref, err := g.Resolve(b.FrameOfReferencePath())
			if err != nil {
				return err
			}
			if err := b.SetFrameOfReference(ref); err != nil {
				return err
			}
			if err := s.tree.RegisterBody(b, g.elementPath(b.Name())); err != nil {
				return err
			}
			s.bodies = append(s.bodies, b)
		}
		for _, l := range g.links {
			s.links = append(s.links, l)
			s.owners = append(s.owners, g)
		}
		return nil
	})
}

// calcSize binds the free bodies to consecutive slices of the arena.
// Dependent bodies own no coordinates.
func (s *Solver) calcSize() error {
	for _, b := range s.bodies {
		if b.Dependency() != nil {
			continue
		}
		b.Bind(s.nq, s.nu)
		s.nq += b.QSize()
		s.nu += b.USize()
	}
	if s.nu == 0 {
		return dynamo.Modelf(s.displayPath(), "model has no degrees of freedom")
	}
	return nil
}

func (s *Solver) allocate() error {
	s.st = kinematics.NewState(s.nq, s.nu)
	if err := s.tree.Freeze(s.st); err != nil {
		return err
	}
	s.m = mat.NewDense(s.nu, s.nu, nil)
	s.h = make([]float64, s.nu)
	return nil
}

func (s *Solver) connect() error {
	tol := link.Tolerances{GapTol: s.opts.GapTol, GdTol: s.opts.GdTol}
	s.fallback = make([]bool, len(s.links))
	for i, l := range s.links {
		if err := l.Connect(s.owners[i].Resolve, s.nu, tol); err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) initialState() error {
	for _, b := range s.bodies {
		if b.Dependency() != nil {
			continue
		}
		q0, u0 := b.InitialState()
		copy(s.st.Q[b.QOffset():], q0)
		copy(s.st.U[b.UOffset():], u0)
	}
	s.x0 = dynamo.Join(s.st.Q, s.st.U)
	s.tree.Begin(0)
	s.tree.AssignCoordinates()
	for _, l := range s.links {
		if err := l.Check(); err != nil {
			return err
		}
		if err := l.Update(0); err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) massStructure() error {
	s.mass = newMassMatrix(massBlocks(s.bodies, s.nu))
	s.constMass = !s.opts.DisableConstantMass
	for _, b := range s.bodies {
		s.constMass = s.constMass && b.MassIsConstant()
	}
	if !s.constMass {
		return nil
	}
	for _, b := range s.bodies {
		b.AddMass(s.m)
	}
	return s.mass.factorize(s.m)
}

// load scatters x into the arena and updates every link at time t.
func (s *Solver) load(x dynamo.State, t float64) error {
	if !s.initialized {
		return dynamo.ErrNotInitialized
	}
	if len(x) != s.nq+s.nu {
		return fmt.Errorf("%w: state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(x), s.nq+s.nu)
	}
	copy(s.st.Q, x[:s.nq])
	copy(s.st.U, x[s.nq:])
	s.t = t
	s.tree.Begin(t)
	s.tree.AssignCoordinates()
	for i, l := range s.links {
		if err := l.Update(t); err != nil {
			return err
		}
		s.warnFallback(i, l, t)
	}
	return nil
}

// directionFallback is implemented by links that can lose their force
// direction and keep the previous one.
type directionFallback interface {
	DirectionFallback() bool
}

// warnFallback logs once each time a link enters its fallback.
func (s *Solver) warnFallback(i int, l link.Link, t float64) {
	df, ok := l.(directionFallback)
	if !ok {
		return
	}
	on := df.DirectionFallback()
	if on && !s.fallback[i] {
		s.log.Info("link length vanished, keeping previous force direction", "link", l.Name(), "t", t)
	}
	s.fallback[i] = on
}

// assemble builds h and, unless it is constant, M and its factors.
func (s *Solver) assemble() error {
	for i := range s.h {
		s.h[i] = 0
	}
	if !s.constMass {
		s.m.Zero()
	}
	for _, b := range s.bodies {
		if !s.constMass {
			b.AddMass(s.m)
		}
		b.AddForces(s.h, s.opts.Gravity)
	}
	for _, l := range s.links {
		l.AddSmoothForces(s.h)
	}
	if s.constMass {
		return nil
	}
	return s.mass.factorize(s.m)
}

func (s *Solver) constraints(level link.Level) []*link.Constraint {
	var out []*link.Constraint
	for _, l := range s.links {
		out = append(out, l.Constraints(level)...)
	}
	return out
}

// condensed is the constraint problem G = W^T*M^-1*V with b = W^T*y + c,
// where y is a precomputed M^-1*r and c is Wb at force level and the gap
// velocities at impact level.
type condensed struct {
	problem *ncp.Problem
	minvV   *mat.Dense
}

func (s *Solver) condense(cons []*link.Constraint, y []float64, level link.Level) (condensed, error) {
	blocks := make([]*ncp.Block, len(cons))
	for i, c := range cons {
		blocks[i] = c.Block
	}
	p := ncp.NewProblem(blocks...)
	n := p.Size()
	w := mat.NewDense(s.nu, n, nil)
	v := mat.NewDense(s.nu, n, nil)
	for _, c := range cons {
		off, k := c.Block.Offset(), c.Block.Size()
		w.Slice(0, s.nu, off, off+k).(*mat.Dense).Copy(c.W)
		v.Slice(0, s.nu, off, off+k).(*mat.Dense).Copy(c.Directions())
		src := c.Gd
		if level == link.ForceLevel {
			src = c.Wb
		}
		copy(p.B[off:off+k], src)
	}
	minvV, err := s.mass.solveDense(v)
	if err != nil {
		return condensed{}, err
	}
	p.G.Mul(w.T(), minvV)
	if y != nil {
		yv := mat.NewVecDense(s.nu, y)
		for i := 0; i < n; i++ {
			p.B[i] += mat.Dot(w.ColView(i), yv)
		}
	}
	return condensed{problem: p, minvV: minvV}, nil
}

// solve runs the complementarity solver, stores the multipliers in the
// constraints and adds M^-1*V*la to du.
func (s *Solver) solve(solver *ncp.Solver, cons []*link.Constraint, cp condensed, du []float64) error {
	res, err := solver.Solve(cp.problem, nil)
	s.stats.Solves++
	s.stats.NCPIterations += res.Iterations
	if err != nil {
		return err
	}
	for _, c := range cons {
		off := c.Block.Offset()
		copy(c.La, res.La[off:off+c.Block.Size()])
	}
	la := mat.NewVecDense(len(res.La), res.La)
	for i := range du {
		du[i] += mat.Dot(cp.minvV.RowView(i), la)
	}
	return nil
}

// accelerations solves the force level problem and publishes u'.
func (s *Solver) accelerations() error {
	ud := s.st.UD
	if err := s.mass.solveVec(ud, s.h); err != nil {
		return err
	}
	if cons := s.constraints(link.ForceLevel); len(cons) > 0 {
		cp, err := s.condense(cons, ud, link.ForceLevel)
		if err != nil {
			return err
		}
		if err := s.solve(s.force, cons, cp, ud); err != nil {
			return err
		}
	}
	s.tree.PublishAccelerations()
	return nil
}

func (s *Solver) evaluate(x dynamo.State, t float64) error {
	if err := s.load(x, t); err != nil {
		return err
	}
	if err := s.assemble(); err != nil {
		return err
	}
	s.stats.Evaluations++
	return s.accelerations()
}

// Derive returns x' = [u; u'] with q' = u.
func (s *Solver) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	if err := s.evaluate(x, t); err != nil {
		return nil, err
	}
	return dynamo.Join(s.st.U, s.st.UD), nil
}

// Evaluate is Derive plus the activity flags of the set-valued links.
func (s *Solver) Evaluate(x dynamo.State, t float64) (dynamo.Evaluation, error) {
	xd, err := s.Derive(x, t)
	if err != nil {
		return dynamo.Evaluation{}, err
	}
	ev := dynamo.Evaluation{Derivative: xd}
	for _, l := range s.links {
		ev.Discontinuity = ev.Discontinuity || l.NeedsImpact()
		ev.ActiveSetChanged = ev.ActiveSetChanged || l.ActiveSetChanged()
	}
	return ev, nil
}

// StopVector returns the event functions of all links. An event occurs when
// a component changes from positive to non-positive.
func (s *Solver) StopVector(x dynamo.State, t float64) ([]float64, error) {
	if err := s.evaluate(x, t); err != nil {
		return nil, err
	}
	var sv []float64
	for _, l := range s.links {
		sv = l.StopValues(sv)
	}
	return sv, nil
}

// Impact applies the impact laws of all closed contacts and joints at x and
// returns the state with the post-impact velocities.
func (s *Solver) Impact(x dynamo.State, t float64) (dynamo.State, error) {
	if err := s.load(x, t); err != nil {
		return nil, err
	}
	if err := s.assemble(); err != nil {
		return nil, err
	}
	out := x.Clone()
	cons := s.constraints(link.ImpactLevel)
	if len(cons) == 0 {
		return out, nil
	}
	cp, err := s.condense(cons, nil, link.ImpactLevel)
	if err != nil {
		return nil, err
	}
	if err := s.solve(s.impact, cons, cp, out[s.nq:]); err != nil {
		return nil, err
	}
	s.stats.Impacts++
	s.log.V(1).Info("impact", "t", t, "rows", cp.problem.Size())
	return out, nil
}

// Accept makes x the reference state for activity changes and events.
func (s *Solver) Accept(x dynamo.State, t float64) error {
	if err := s.evaluate(x, t); err != nil {
		return err
	}
	for _, l := range s.links {
		if l.ActiveSetChanged() {
			s.log.V(1).Info("active set changed", "link", l.Name(), "t", t)
		}
		l.Accept()
	}
	s.stats.Accepted++
	return nil
}

// TimeStep advances x over [t, t+dt] with Moreau's midpoint scheme: the
// contacts closed at the midpoint enter with their impact laws, so impacts
// and persistent contact are treated alike.
func (s *Solver) TimeStep(x dynamo.State, t, dt float64) (dynamo.State, error) {
	if len(x) != s.nq+s.nu {
		return nil, fmt.Errorf("%w: state has %d entries, want %d", dynamo.ErrDimensionMismatch, len(x), s.nq+s.nu)
	}
	q, u := x.Split(s.nq)
	xm := x.Clone()
	for i := range q {
		xm[i] = q[i] + 0.5*dt*u[i]
	}
	if err := s.load(xm, t+0.5*dt); err != nil {
		return nil, err
	}
	if err := s.assemble(); err != nil {
		return nil, err
	}
	du := make([]float64, s.nu)
	if err := s.mass.solveVec(du, s.h); err != nil {
		return nil, err
	}
	for i := range du {
		du[i] *= dt
	}
	if cons := s.constraints(link.ImpactLevel); len(cons) > 0 {
		cp, err := s.condense(cons, du, link.ImpactLevel)
		if err != nil {
			return nil, err
		}
		if err := s.solve(s.impact, cons, cp, du); err != nil {
			return nil, err
		}
	}
	s.stats.Evaluations++
	out := make(dynamo.State, len(x))
	for i := range du {
		out[s.nq+i] = u[i] + du[i]
	}
	for i := range q {
		out[i] = xm[i] + 0.5*dt*out[s.nq+i]
	}
	return out, nil
}

// Energy is the kinetic energy 1/2*u^T*M*u plus the gravitational and
// spring potentials. It returns NaN if the state cannot be evaluated.
func (s *Solver) Energy(x dynamo.State) float64 {
	if err := s.load(x, s.t); err != nil {
		return math.NaN()
	}
	if err := s.assemble(); err != nil {
		return math.NaN()
	}
	u := mat.NewVecDense(s.nu, s.st.U)
	e := 0.5 * mat.Inner(u, s.m, u)
	for _, b := range s.bodies {
		e += b.PotentialEnergy(s.opts.Gravity)
	}
	for _, l := range s.links {
		e += l.PotentialEnergy()
	}
	return e
}
