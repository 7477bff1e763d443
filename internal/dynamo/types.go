package dynamo

import "math"

// State is the flat integrator state x = [q; u].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Add(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] + other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

// Split returns aliased views of the position and velocity parts.
func (s State) Split(qSize int) (q, u []float64) {
	return s[:qSize:qSize], s[qSize:]
}

// Join concatenates q and u into a fresh state.
func Join(q, u []float64) State {
	x := make(State, len(q)+len(u))
	copy(x, q)
	copy(x[len(q):], u)
	return x
}

// System is the right-hand side x' = f(x, t) handed to a time integrator.
type System interface {
	Derive(x State, t float64) (State, error)
	StateDim() int
}

// Evaluation is the result of one right-hand side evaluation of a nonsmooth system.
type Evaluation struct {
	Derivative State
	// Discontinuity is set when a closing unilateral constraint needs an
	// impact before integration may continue.
	Discontinuity bool
	// ActiveSetChanged is set when a constraint opened or closed since the
	// last accepted step.
	ActiveSetChanged bool
}

// EventSystem is a System with set-valued constraints that an event-driven
// integrator can localize and reset.
type EventSystem interface {
	System
	Evaluate(x State, t float64) (Evaluation, error)
	StopVector(x State, t float64) ([]float64, error)
	Impact(x State, t float64) (State, error)
	Accept(x State, t float64) error
}

// ImpulsiveSystem is a System that advances itself over a finite step using
// velocity-level impact laws (time stepping).
type ImpulsiveSystem interface {
	System
	TimeStep(x State, t, dt float64) (State, error)
}

type Hamiltonian interface {
	Energy(x State) float64
}

type Integrator interface {
	Step(dyn System, x State, t float64, dt float64) (State, error)
}

type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, t, dt, tol float64) (State, float64, error)
}

type Metric interface {
	Name() string
	Observe(x State, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, t float64)
}

type Config struct {
	Dt            float64
	Duration      float64
	Seed          int64
	Tolerance     float64
	MaxDt         float64
	MinDt         float64
	Adaptive      bool
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            1e-3,
		Duration:      1.0,
		Tolerance:     1e-6,
		MaxDt:         1e-2,
		MinDt:         1e-10,
		Adaptive:      false,
		ValidateState: true,
	}
}

type Result struct {
	States      []State
	Times       []float64
	Metrics     map[string]float64
	EnergyDrift float64
	StepsTaken  int
	Impacts     int
	Errors      []error
}
