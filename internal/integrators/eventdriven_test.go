package integrators

import (
	"math"
	"testing"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/go-logr/logr"
)

// ball is a point falling onto the floor y = 0 with restitution e. It is a
// minimal EventSystem: the stop value is the height while the ball is in
// flight and the impact flips the velocity.
type ball struct {
	g, e     float64
	resting  bool
	impacts  int
	accepted int
}

func (b *ball) StateDim() int { return 2 }

func (b *ball) Derive(x dynamo.State, t float64) (dynamo.State, error) {
	if b.resting {
		return dynamo.State{0, 0}, nil
	}
	return dynamo.State{x[1], -b.g}, nil
}

func (b *ball) Evaluate(x dynamo.State, t float64) (dynamo.Evaluation, error) {
	xd, _ := b.Derive(x, t)
	return dynamo.Evaluation{Derivative: xd, Discontinuity: !b.resting && x[0] <= 0 && x[1] < 0}, nil
}

func (b *ball) StopVector(x dynamo.State, t float64) ([]float64, error) {
	if b.resting {
		return []float64{1}, nil
	}
	return []float64{x[0]}, nil
}

func (b *ball) Impact(x dynamo.State, t float64) (dynamo.State, error) {
	b.impacts++
	return dynamo.State{x[0], -b.e * x[1]}, nil
}

func (b *ball) Accept(x dynamo.State, t float64) error {
	b.accepted++
	if x[0] <= 0 && math.Abs(x[1]) < 1e-9 {
		b.resting = true
	}
	return nil
}

func TestEventDrivenLocatesImpact(t *testing.T) {
	sys := &ball{g: 9.81, e: 0.5}
	integ := NewEventDriven(NewRK4(), logr.Discard())
	h0 := 1.0
	tImpact := math.Sqrt(2 * h0 / sys.g)
	vImpact := sys.g * tImpact

	x := dynamo.State{h0, 0}
	dt := 0.01
	tm := 0.0
	for tm < tImpact+0.05 {
		var err error
		if x, err = integ.Step(sys, x, tm, dt); err != nil {
			t.Fatal(err)
		}
		tm += dt
	}
	if sys.impacts != 1 {
		t.Fatalf("impacts = %d, want 1", sys.impacts)
	}
	events, impacts := integ.Events()
	if events != 1 || impacts != 1 {
		t.Errorf("events, impacts = %d, %d", events, impacts)
	}
	// After the bounce the ball flies with v = e*vImpact - g*(t - tImpact).
	dtAfter := tm - tImpact
	wantV := 0.5*vImpact - sys.g*dtAfter
	wantY := 0.5*vImpact*dtAfter - 0.5*sys.g*dtAfter*dtAfter
	if math.Abs(x[1]-wantV) > 1e-6 {
		t.Errorf("velocity = %.9f, want %.9f", x[1], wantV)
	}
	if math.Abs(x[0]-wantY) > 1e-6 {
		t.Errorf("height = %.9f, want %.9f", x[0], wantY)
	}
}

func TestEventDrivenPlasticImpactComesToRest(t *testing.T) {
	sys := &ball{g: 9.81, e: 0}
	integ := NewEventDriven(NewRK4(), logr.Discard())
	x := dynamo.State{0.2, 0}
	dt := 0.01
	for i := 0; i < 100; i++ {
		var err error
		if x, err = integ.Step(sys, x, float64(i)*dt, dt); err != nil {
			t.Fatal(err)
		}
	}
	if !sys.resting {
		t.Fatal("ball did not come to rest")
	}
	if math.Abs(x[0]) > 1e-9 || x[1] != 0 {
		t.Errorf("final state %v", x)
	}
}

func TestEventDrivenFallsBackForSmoothSystems(t *testing.T) {
	integ := NewEventDriven(NewRK4(), logr.Discard())
	x, err := integ.Step(&simpleDynamics{}, dynamo.State{1, 0}, 0, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	ref, _ := NewRK4().Step(&simpleDynamics{}, dynamo.State{1, 0}, 0, 0.01)
	if x[0] != ref[0] || x[1] != ref[1] {
		t.Errorf("got %v, want %v", x, ref)
	}
}

type impulsive struct{ simpleDynamics }

func (impulsive) TimeStep(x dynamo.State, t, dt float64) (dynamo.State, error) {
	return dynamo.State{x[0] + dt, x[1]}, nil
}

func TestTimeStepping(t *testing.T) {
	ts := NewTimeStepping()
	x, err := ts.Step(&impulsive{}, dynamo.State{0, 3}, 0, 0.5)
	if err != nil || x[0] != 0.5 || x[1] != 3 {
		t.Errorf("got %v, %v", x, err)
	}
	if _, err := ts.Step(&simpleDynamics{}, dynamo.State{0, 0}, 0, 0.5); err == nil {
		t.Error("expected an error for a system without impulsive step")
	}
}

func TestCrossed(t *testing.T) {
	tests := []struct {
		before, after []float64
		want          int
	}{
		{[]float64{1, 1}, []float64{1, 1}, -1},
		{[]float64{1, 1}, []float64{1, 0}, 1},
		{[]float64{0, 1}, []float64{-1, 2}, -1},
		{[]float64{1, 1}, []float64{-1, -1}, 0},
		{[]float64{1}, nil, -1},
	}
	for _, tt := range tests {
		if got := crossed(tt.before, tt.after); got != tt.want {
			t.Errorf("crossed(%v, %v) = %d, want %d", tt.before, tt.after, got, tt.want)
		}
	}
}
