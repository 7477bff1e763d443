package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/integrators"
	"github.com/go-logr/logr"
)

// eventCounter is implemented by integrators that locate events.
type eventCounter interface {
	Events() (events, impacts int)
}

type Simulator struct {
	sys        dynamo.System
	integrator dynamo.Integrator
	log        logr.Logger
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(sys dynamo.System, integrator dynamo.Integrator, log logr.Logger) *Simulator {
	return &Simulator{
		sys:        sys,
		integrator: integrator,
		log:        log,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) System() dynamo.System { return s.sys }

// Run integrates from x0 over cfg.Duration. Metrics and observers see every
// accepted point including the initial and the final one. A failed step ends
// the run with a *dynamo.SimulationError; the partial result is returned
// alongside it.
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, cfg dynamo.Config) (*dynamo.Result, error) {
	if err := s.validateConfig(x0, cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &dynamo.Result{
		States:  make([]dynamo.State, 0, steps+1),
		Times:   make([]float64, 0, steps+1),
		Metrics: make(map[string]float64),
		Errors:  make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	s.record(result, x, t)
	initialEnergy := s.computeEnergy(x)
	s.log.V(1).Info("run started", "dt", cfg.Dt, "duration", cfg.Duration, "adaptive", cfg.Adaptive)

	var runErr error
	for t < cfg.Duration-1e-12*cfg.Duration {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
		default:
		}
		if runErr != nil {
			break
		}

		h := math.Min(dt, cfg.Duration-t)
		var newX dynamo.State
		var err error
		if cfg.Adaptive {
			newX, h, dt, err = s.adaptiveStep(x, t, h, cfg)
		} else {
			newX, err = s.integrator.Step(s.sys, x, t, h)
		}
		if err == nil {
			err = s.accept(newX, t+h)
		}
		if err != nil {
			runErr = &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x.Clone(), Wrapped: err}
			result.Errors = append(result.Errors, runErr)
			break
		}

		if cfg.ValidateState && !newX.IsValid() {
			runErr = &dynamo.SimulationError{Step: result.StepsTaken, Time: t, State: x.Clone(), Wrapped: dynamo.ErrInvalidState}
			result.Errors = append(result.Errors, runErr)
			break
		}

		x = newX
		t += h
		result.StepsTaken++
		s.record(result, x, t)
	}

	finalEnergy := s.computeEnergy(x)
	if initialEnergy != 0 {
		result.EnergyDrift = math.Abs(finalEnergy-initialEnergy) / math.Abs(initialEnergy)
	}
	if ec, ok := s.integrator.(eventCounter); ok {
		_, result.Impacts = ec.Events()
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}
	s.log.V(1).Info("run finished", "steps", result.StepsTaken, "t", t, "impacts", result.Impacts)
	return result, runErr
}

func (s *Simulator) record(result *dynamo.Result, x dynamo.State, t float64) {
	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)
	for _, m := range s.metrics {
		m.Observe(x, t)
	}
	for _, obs := range s.observers {
		obs.OnStep(x, t)
	}
}

// accept updates the active-set bookkeeping of event systems for integrators
// that do not do so themselves.
func (s *Simulator) accept(x dynamo.State, t float64) error {
	return accept(s.integrator, s.sys, x, t)
}

func accept(integ dynamo.Integrator, sys dynamo.System, x dynamo.State, t float64) error {
	switch integ.(type) {
	case *integrators.EventDriven, *integrators.TimeStepping:
		return nil
	}
	if es, ok := sys.(dynamo.EventSystem); ok {
		return es.Accept(x, t)
	}
	return nil
}

// Step advances x by one step of integ the way Run does.
func Step(integ dynamo.Integrator, sys dynamo.System, x dynamo.State, t, dt float64) (dynamo.State, error) {
	next, err := integ.Step(sys, x, t, dt)
	if err != nil {
		return nil, err
	}
	return next, accept(integ, sys, next, t+dt)
}

func (s *Simulator) validateConfig(x0 dynamo.State, cfg dynamo.Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	if len(x0) != s.sys.StateDim() {
		return fmt.Errorf("%w: initial state has %d entries, system has %d", dynamo.ErrDimensionMismatch, len(x0), s.sys.StateDim())
	}
	return nil
}

func (s *Simulator) computeEnergy(x dynamo.State) float64 {
	if ec, ok := s.sys.(dynamo.Hamiltonian); ok {
		return ec.Energy(x)
	}
	return 0
}

// adaptiveStep returns the new state, the step length taken and the
// proposed next step.
func (s *Simulator) adaptiveStep(x dynamo.State, t, dt float64, cfg dynamo.Config) (dynamo.State, float64, float64, error) {
	if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
		xn, next, err := adaptive.StepAdaptive(s.sys, x, t, dt, cfg.Tolerance)
		if err != nil {
			return nil, 0, 0, err
		}
		if cfg.MaxDt > 0 {
			next = math.Min(next, cfg.MaxDt)
		}
		return xn, dt, next, nil
	}

	for {
		x1, err := s.integrator.Step(s.sys, x, t, dt)
		if err != nil {
			return nil, 0, 0, err
		}
		xHalf, err := s.integrator.Step(s.sys, x, t, dt/2)
		if err != nil {
			return nil, 0, 0, err
		}
		x2, err := s.integrator.Step(s.sys, xHalf, t+dt/2, dt/2)
		if err != nil {
			return nil, 0, 0, err
		}

		e := x1.Sub(x2).Norm()
		if e > cfg.Tolerance && dt/2 >= cfg.MinDt {
			dt /= 2
			continue
		}
		if e > cfg.Tolerance {
			return nil, 0, 0, dynamo.ErrStepTooSmall
		}
		next := dt
		if e < cfg.Tolerance/10 {
			next = dt * 2
			if cfg.MaxDt > 0 {
				next = math.Min(next, cfg.MaxDt)
			}
		}
		return x2, dt, next, nil
	}
}

// RunWithCallback integrates like Run without recording. The callback sees
// every accepted point and stops the run by returning false.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 dynamo.State, cfg dynamo.Config, callback func(dynamo.State, float64) bool) error {
	if err := s.validateConfig(x0, cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := 0.0
	dt := cfg.Dt

	for t < cfg.Duration {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if !callback(x, t) {
			return nil
		}

		next, err := s.integrator.Step(s.sys, x, t, dt)
		if err == nil {
			err = s.accept(next, t+dt)
		}
		if err != nil {
			return &dynamo.SimulationError{Time: t, State: x, Wrapped: err}
		}
		x = next
		t += dt

		if cfg.ValidateState && !x.IsValid() {
			return fmt.Errorf("invalid state at t=%.4f", t)
		}
	}
	callback(x, t)
	return nil
}
