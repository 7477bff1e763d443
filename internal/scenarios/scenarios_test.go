package scenarios

import (
	"math"
	"testing"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/integrators"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/go-logr/logr"
)

func run(t *testing.T, r *Registry, name string, p Params, dt, T float64) (*mbs.Solver, dynamo.State, dynamo.Integrator) {
	t.Helper()
	sc, err := r.Get(name)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.Build(name, p, mbs.DefaultSolverOptions(), logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	integ, err := r.Integrator(sc.Integrator, logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	x := s.InitialState()
	n := int(math.Round(T / dt))
	for i := 0; i < n; i++ {
		if x, err = integ.Step(s, x, float64(i)*dt, dt); err != nil {
			t.Fatalf("%s: step %d: %v", name, i, err)
		}
	}
	return s, x, integ
}

func TestEveryScenarioRuns(t *testing.T) {
	r := NewRegistry()
	for _, name := range r.List() {
		t.Run(name, func(t *testing.T) {
			sc, _ := r.Get(name)
			_, x, _ := run(t, r, name, sc.Defaults, 1e-3, 0.2)
			if !x.IsValid() {
				t.Errorf("invalid state %v", x)
			}
		})
	}
}

func TestUnknownNames(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); err == nil {
		t.Error("expected an error for an unknown scenario")
	}
	if _, err := r.Build("nope", Params{}, mbs.DefaultSolverOptions(), logr.Discard()); err == nil {
		t.Error("expected an error for an unknown scenario")
	}
	if _, err := r.Integrator("nope", logr.Discard()); err == nil {
		t.Error("expected an error for an unknown integrator")
	}
	if len(r.ListIntegrators()) != 7 {
		t.Errorf("integrators = %v", r.ListIntegrators())
	}
}

func TestBuildReportsModelErrors(t *testing.T) {
	r := NewRegistry()
	p, _ := r.Get("spring_pair")
	params := p.Defaults
	params.Mass = 0
	_, err := r.Build("spring_pair", params, mbs.DefaultSolverOptions(), logr.Discard())
	if err == nil {
		t.Fatal("expected an error for a massless body")
	}
}

func TestFreeFall(t *testing.T) {
	r := NewRegistry()
	sc, _ := r.Get("free_fall")
	_, x, _ := run(t, r, "free_fall", sc.Defaults, 0.01, 1)
	if math.Abs(x[7]+9.81) > 1e-9 || math.Abs(x[6]-1) > 1e-9 {
		t.Errorf("velocity after 1s: %v", x[6:9])
	}
}

func TestBouncingBall(t *testing.T) {
	r := NewRegistry()
	sc, _ := r.Get("bouncing_ball")
	_, x, integ := run(t, r, "bouncing_ball", sc.Defaults, 0.01, 0.6)
	ed, ok := integ.(*integrators.EventDriven)
	if !ok {
		t.Fatalf("integrator %T", integ)
	}
	if _, impacts := ed.Events(); impacts != 1 {
		t.Errorf("impacts = %d", impacts)
	}
	if x[7] <= 0 {
		t.Errorf("ball is not rising after the bounce: %v", x)
	}
}

func TestSlidingBlockSticks(t *testing.T) {
	r := NewRegistry()
	sc, _ := r.Get("sliding_block")
	p := sc.Defaults
	s, x, _ := run(t, r, "sliding_block", p, 0.01, 2)
	g := 9.81
	decel := g * (p.Mu*math.Cos(p.Angle) - math.Sin(p.Angle))
	if math.Abs(x[3]) > 1e-6 {
		t.Errorf("block still moving: %v", x)
	}
	if want := p.Velocity * p.Velocity / (2 * decel); math.Abs(x[0]-want) > 1e-6 {
		t.Errorf("stopping distance %g, want %g", x[0], want)
	}
	if math.Abs(x[1]) > 1e-9 {
		t.Errorf("block left the slope: %v", x)
	}
	snap, err := s.Snapshot(x, 2)
	if err != nil {
		t.Fatal(err)
	}
	f := snap.Links[0].Forces
	if math.Abs(f[0]-p.Mass*g*math.Cos(p.Angle)) > 1e-6 || math.Abs(f[1]-p.Mass*g*math.Sin(p.Angle)) > 1e-6 {
		t.Errorf("contact forces %v", f)
	}
}

func TestGearRatio(t *testing.T) {
	r := NewRegistry()
	sc, _ := r.Get("gear")
	p := sc.Defaults
	p.Stiffness = 0
	s, err := r.Build("gear", p, mbs.DefaultSolverOptions(), logr.Discard())
	if err != nil {
		t.Fatal(err)
	}
	xd, err := s.Derive(s.InitialState(), 0)
	if err != nil {
		t.Fatal(err)
	}
	inertia := 0.08/12 + p.Ratio*p.Ratio*2*0.32/12
	if want := p.Torque / inertia; math.Abs(xd[1]-want) > 1e-9 {
		t.Errorf("drive acceleration %g, want %g", xd[1], want)
	}
	driven := s.Body("Driven")
	if w := driven.CenterOfMassFrame().AngularAcceleration(); math.Abs(w[2]-p.Ratio*xd[1]) > 1e-9 {
		t.Errorf("driven acceleration %v", w)
	}
}

func TestParamsMap(t *testing.T) {
	m := Params{Mass: 2, Mu: 0.3, Torque: -1}.Map()
	if len(m) != 12 {
		t.Fatalf("map has %d entries", len(m))
	}
	if m["mass"] != 2 || m["mu"] != 0.3 || m["torque"] != -1 || m["height"] != 0 {
		t.Errorf("map = %v", m)
	}
}
