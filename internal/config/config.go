package config

import (
	"fmt"
	"os"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/mbs"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/foerg/mbsim-env-sub002/internal/scenarios"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gopkg.in/yaml.v3"
)

const (
	DefaultScenario = "bouncing_ball"
	DefaultDt       = 1e-3
	DefaultDuration = 2.0
)

type Config struct {
	Scenario string `yaml:"scenario"`
	// Integrator overrides the scenario's integrator when set.
	Integrator string           `yaml:"integrator,omitempty"`
	Dt         float64          `yaml:"dt"`
	Duration   float64          `yaml:"duration"`
	Seed       int64            `yaml:"seed"`
	Adaptive   bool             `yaml:"adaptive"`
	Tolerance  float64          `yaml:"tolerance"`
	Params     scenarios.Params `yaml:"params"`
	Solver     SolverConfig     `yaml:"solver"`
}

type SolverConfig struct {
	Strategy     string    `yaml:"strategy"`
	GapTol       float64   `yaml:"gap_tol"`
	GdTol        float64   `yaml:"gd_tol"`
	GddTol       float64   `yaml:"gdd_tol"`
	LaTol        float64   `yaml:"la_tol"`
	LaImpactTol  float64   `yaml:"la_impact_tol"`
	MaxIter      int       `yaml:"max_iter"`
	HighIter     int       `yaml:"high_iter"`
	RMax         float64   `yaml:"r_max"`
	RDecrease    float64   `yaml:"r_decrease"`
	Gravity      []float64 `yaml:"gravity"`
	ConstantMass bool      `yaml:"constant_mass"`
}

func DefaultSolverConfig() SolverConfig {
	o := mbs.DefaultSolverOptions()
	return SolverConfig{
		Strategy:     o.Strategy.String(),
		GapTol:       o.GapTol,
		GdTol:        o.GdTol,
		GddTol:       o.GddTol,
		LaTol:        o.LaTol,
		LaImpactTol:  o.LaImpactTol,
		MaxIter:      o.MaxIter,
		HighIter:     o.HighIter,
		RMax:         o.RMax,
		RDecrease:    o.RDecrease,
		Gravity:      []float64{o.Gravity[0], o.Gravity[1], o.Gravity[2]},
		ConstantMass: !o.DisableConstantMass,
	}
}

// Options converts the YAML form into solver options.
func (s SolverConfig) Options() (mbs.SolverOptions, error) {
	st, err := ncp.ParseStrategy(s.Strategy)
	if err != nil {
		return mbs.SolverOptions{}, err
	}
	if len(s.Gravity) != 3 {
		return mbs.SolverOptions{}, fmt.Errorf("gravity needs 3 components, got %d", len(s.Gravity))
	}
	return mbs.SolverOptions{
		Strategy:            st,
		GapTol:              s.GapTol,
		GdTol:               s.GdTol,
		GddTol:              s.GddTol,
		LaTol:               s.LaTol,
		LaImpactTol:         s.LaImpactTol,
		MaxIter:             s.MaxIter,
		HighIter:            s.HighIter,
		RMax:                s.RMax,
		RDecrease:           s.RDecrease,
		Gravity:             spatial.Vec3{s.Gravity[0], s.Gravity[1], s.Gravity[2]},
		DisableConstantMass: !s.ConstantMass,
	}, nil
}

func DefaultConfig() *Config {
	cfg, err := ForScenario(DefaultScenario)
	if err != nil {
		panic(err)
	}
	return cfg
}

// ForScenario returns the defaults for the named scenario.
func ForScenario(name string) (*Config, error) {
	sc, err := scenarios.NewRegistry().Get(name)
	if err != nil {
		return nil, err
	}
	return &Config{
		Scenario:  name,
		Dt:        DefaultDt,
		Duration:  DefaultDuration,
		Tolerance: dynamo.DefaultConfig().Tolerance,
		Params:    sc.Defaults,
		Solver:    DefaultSolverConfig(),
	}, nil
}

// Load reads a YAML file on top of the defaults of the scenario it names.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var head struct {
		Scenario string `yaml:"scenario"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	if head.Scenario == "" {
		head.Scenario = DefaultScenario
	}
	cfg, err := ForScenario(head.Scenario)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %g", c.Dt)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %g", c.Duration)
	}
	if c.Adaptive && c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping")
	}
	opts, err := c.Solver.Options()
	if err != nil {
		return err
	}
	return opts.Validate()
}

// IntegratorName returns the configured integrator or the scenario's own.
func (c *Config) IntegratorName(r *scenarios.Registry) (string, error) {
	if c.Integrator != "" {
		return c.Integrator, nil
	}
	sc, err := r.Get(c.Scenario)
	if err != nil {
		return "", err
	}
	return sc.Integrator, nil
}

// RunConfig returns the stepping settings for the simulator.
func (c *Config) RunConfig() dynamo.Config {
	rc := dynamo.DefaultConfig()
	rc.Dt = c.Dt
	rc.Duration = c.Duration
	rc.Seed = c.Seed
	rc.Adaptive = c.Adaptive
	rc.Tolerance = c.Tolerance
	if rc.MaxDt < c.Dt {
		rc.MaxDt = c.Dt
	}
	return rc
}
