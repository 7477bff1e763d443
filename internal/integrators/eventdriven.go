package integrators

import (
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/go-logr/logr"
)

// EventDriven integrates the smooth phases of an EventSystem with a base
// integrator. Stop vector components changing from positive to non-positive
// are located by bisection; at an event the system is reset by an impact
// when a closing contact requires one, and the remainder of the step is
// integrated from the event.
type EventDriven struct {
	base      dynamo.Integrator
	log       logr.Logger
	timeTol   float64
	maxBisect int
	maxEvents int

	events  int
	impacts int
}

func NewEventDriven(base dynamo.Integrator, log logr.Logger) *EventDriven {
	return &EventDriven{
		base:      base,
		log:       log,
		timeTol:   1e-10,
		maxBisect: 60,
		maxEvents: 100,
	}
}

// WithTimeTolerance sets the width of the bracket at which event location stops.
func (e *EventDriven) WithTimeTolerance(tol float64) *EventDriven {
	e.timeTol = tol
	return e
}

// Events returns the number of located events and applied impacts.
func (e *EventDriven) Events() (events, impacts int) { return e.events, e.impacts }

func (e *EventDriven) Step(dyn dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	sys, ok := dyn.(dynamo.EventSystem)
	if !ok {
		return e.base.Step(dyn, x, t, dt)
	}
	end := t + dt
	x, err := e.resolve(sys, x, t)
	if err != nil {
		return nil, err
	}
	for n := 0; ; n++ {
		if n == e.maxEvents {
			return nil, fmt.Errorf("event driven step at t=%g: more than %d events", t, e.maxEvents)
		}
		h := end - t
		sv0, err := sys.StopVector(x, t)
		if err != nil {
			return nil, err
		}
		x1, err := e.base.Step(dyn, x, t, h)
		if err != nil {
			return nil, err
		}
		sv1, err := sys.StopVector(x1, end)
		if err != nil {
			return nil, err
		}
		if crossed(sv0, sv1) < 0 {
			return x1, sys.Accept(x1, end)
		}

		lo, hi, xe := 0.0, h, x1
		for i := 0; i < e.maxBisect && hi-lo > e.timeTol; i++ {
			mid := 0.5 * (lo + hi)
			xm, err := e.base.Step(dyn, x, t, mid)
			if err != nil {
				return nil, err
			}
			svm, err := sys.StopVector(xm, t+mid)
			if err != nil {
				return nil, err
			}
			if crossed(sv0, svm) >= 0 {
				hi, xe = mid, xm
			} else {
				lo = mid
			}
		}
		e.events++
		t += hi
		e.log.V(1).Info("event", "t", t, "component", crossed(sv0, sv1))
		if x, err = e.resolve(sys, xe, t); err != nil {
			return nil, err
		}
		if end-t <= e.timeTol {
			return x, nil
		}
	}
}

// resolve applies an impact if one is pending and accepts the result.
func (e *EventDriven) resolve(sys dynamo.EventSystem, x dynamo.State, t float64) (dynamo.State, error) {
	ev, err := sys.Evaluate(x, t)
	if err != nil {
		return nil, err
	}
	if ev.Discontinuity {
		if x, err = sys.Impact(x, t); err != nil {
			return nil, err
		}
		e.impacts++
	}
	return x, sys.Accept(x, t)
}

// crossed returns the first component that changed from positive to
// non-positive, or -1.
func crossed(before, after []float64) int {
	for i := range before {
		if i < len(after) && before[i] > 0 && after[i] <= 0 {
			return i
		}
	}
	return -1
}

// TimeStepping advances an ImpulsiveSystem with its own finite-step scheme.
type TimeStepping struct{}

func NewTimeStepping() *TimeStepping {
	return &TimeStepping{}
}

func (ts *TimeStepping) Step(dyn dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	sys, ok := dyn.(dynamo.ImpulsiveSystem)
	if !ok {
		return nil, fmt.Errorf("time stepping: %T has no impulsive step", dyn)
	}
	return sys.TimeStep(x, t, dt)
}
