package scenarios

import (
	"fmt"
	"sort"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/integrators"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/go-logr/logr"
)

// Scenario is a named model builder with its default parameters.
type Scenario struct {
	Name        string
	Description string
	Defaults    Params
	// Integrator is the integrator the scenario is meant to run with.
	Integrator string
	build      func(*mbs.Solver, Params) error
}

type Registry struct {
	scenarios   map[string]Scenario
	integrators map[string]func(logr.Logger) dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		scenarios:   make(map[string]Scenario),
		integrators: make(map[string]func(logr.Logger) dynamo.Integrator),
	}

	r.add(Scenario{
		Name:        "free_fall",
		Description: "unconstrained tumbling body under gravity",
		Defaults:    Params{Mass: DefaultMass, Height: 10, Velocity: 1},
		Integrator:  "rk4",
		build:       buildFreeFall,
	})
	r.add(Scenario{
		Name:        "spring_pair",
		Description: "two sliders coupled by a spring-damper",
		Defaults:    Params{Mass: DefaultMass, Length: 1, Stretch: 0.2, Stiffness: DefaultStiffness, Damping: DefaultDamping},
		Integrator:  "rk4",
		build:       buildSpringPair,
	})
	r.add(Scenario{
		Name:        "resting",
		Description: "ball resting on a frictionless ground contact",
		Defaults:    Params{Mass: DefaultMass, Restitution: DefaultRestitution},
		Integrator:  "event",
		build:       buildResting,
	})
	r.add(Scenario{
		Name:        "bouncing_ball",
		Description: "ball dropped onto rigid ground with Newton restitution",
		Defaults:    Params{Mass: DefaultMass, Height: DefaultHeight, Restitution: DefaultRestitution},
		Integrator:  "event",
		build:       buildBouncingBall,
	})
	r.add(Scenario{
		Name:        "soft_ball",
		Description: "ball dropped onto a penalty contact with regularized friction",
		Defaults:    Params{Mass: DefaultMass, Height: DefaultHeight, Velocity: 1, Stiffness: 1e5, Damping: 50, Mu: DefaultMu},
		Integrator:  "rk4",
		build:       buildSoftBall,
	})
	r.add(Scenario{
		Name:        "pendulum",
		Description: "rod hinged at its end by a bilateral joint",
		Defaults:    Params{Mass: DefaultMass, Length: DefaultLength, Angle: 0.8},
		Integrator:  "rk4",
		build:       buildPendulum,
	})
	r.add(Scenario{
		Name:        "sliding_block",
		Description: "block launched down a slope with Coulomb friction",
		Defaults:    Params{Mass: DefaultMass, Angle: 0.3, Velocity: 1, Mu: 0.4},
		Integrator:  "event",
		build:       buildSlidingBlock,
	})
	r.add(Scenario{
		Name:        "tripod",
		Description: "box on three feet dropped onto rough ground",
		Defaults:    Params{Mass: 3, Height: 0.2, Mu: DefaultMu, Restitution: 0.2},
		Integrator:  "timestepping",
		build:       buildTripod,
	})
	r.add(Scenario{
		Name:        "gear",
		Description: "motor driving a geared rotor against a spring brake",
		Defaults:    Params{Mass: DefaultMass, Ratio: -2, Torque: 0.5, Stiffness: 20, Damping: 0.2},
		Integrator:  "rk4",
		build:       buildGear,
	})

	r.integrators["euler"] = func(logr.Logger) dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func(logr.Logger) dynamo.Integrator { return integrators.NewRK4() }
	r.integrators["rk45"] = func(logr.Logger) dynamo.Integrator { return integrators.NewRK45() }
	r.integrators["verlet"] = func(logr.Logger) dynamo.Integrator { return integrators.NewVerlet() }
	r.integrators["leapfrog"] = func(logr.Logger) dynamo.Integrator { return integrators.NewLeapfrog() }
	r.integrators["event"] = func(log logr.Logger) dynamo.Integrator {
		return integrators.NewEventDriven(integrators.NewRK4(), log.WithName("event"))
	}
	r.integrators["timestepping"] = func(logr.Logger) dynamo.Integrator { return integrators.NewTimeStepping() }

	return r
}

func (r *Registry) add(s Scenario) { r.scenarios[s.Name] = s }

func (r *Registry) Get(name string) (Scenario, error) {
	s, ok := r.scenarios[name]
	if !ok {
		return Scenario{}, fmt.Errorf("unknown scenario: %s", name)
	}
	return s, nil
}

// Build assembles and initializes the named scenario.
func (r *Registry) Build(name string, p Params, opts mbs.SolverOptions, log logr.Logger) (*mbs.Solver, error) {
	sc, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	s := mbs.NewSolver(name, opts, log)
	if err := sc.build(s, p); err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", name, err)
	}
	return s, nil
}

func (r *Registry) Integrator(name string, log logr.Logger) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(log), nil
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.scenarios))
	for name := range r.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
