package mbs

import (
	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
)

// SolverOptions are the numeric settings of a Solver.
type SolverOptions struct {
	Strategy ncp.Strategy

	// GapTol decides whether a contact is closed, GdTol whether it is at
	// rest in normal direction and whether it slides.
	GapTol float64
	GdTol  float64
	// GddTol and LaTol terminate the force level complementarity loop,
	// GdTol and LaImpactTol the impact level one.
	GddTol      float64
	LaTol       float64
	LaImpactTol float64

	// MaxIter caps every complementarity loop; zero selects the strategy
	// default.
	MaxIter   int
	HighIter  int
	RMax      float64
	RDecrease float64

	Gravity spatial.Vec3

	// DisableConstantMass forces the mass matrix to be assembled and
	// factorized at every evaluation.
	DisableConstantMass bool
}

func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Strategy:    ncp.FixpointSingle,
		GapTol:      1e-8,
		GdTol:       1e-6,
		GddTol:      1e-8,
		LaTol:       1e-8,
		LaImpactTol: 1e-8,
		HighIter:    1000,
		RMax:        0.5,
		RDecrease:   0.9,
		Gravity:     spatial.Vec3{0, -9.81, 0},
	}
}

func (o SolverOptions) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"gapTol", o.GapTol},
		{"gdTol", o.GdTol},
		{"gddTol", o.GddTol},
		{"laTol", o.LaTol},
		{"laImpactTol", o.LaImpactTol},
	}
	for _, p := range positive {
		if !(p.v > 0) {
			return dynamo.Modelf("solver", "%s must be positive, got %g", p.name, p.v)
		}
	}
	if o.MaxIter < 0 || o.HighIter < 0 {
		return dynamo.Modelf("solver", "iteration limits must not be negative")
	}
	if !(o.RMax > 0 && o.RMax <= 1) {
		return dynamo.Modelf("solver", "rMax must be in (0, 1], got %g", o.RMax)
	}
	if !(o.RDecrease > 0 && o.RDecrease < 1) {
		return dynamo.Modelf("solver", "rDecrease must be in (0, 1), got %g", o.RDecrease)
	}
	if _, err := ncp.ParseStrategy(o.Strategy.String()); err != nil {
		return dynamo.Modelf("solver", "%v", err)
	}
	return nil
}

func (o SolverOptions) forceOptions() ncp.Options {
	return ncp.Options{
		Strategy:  o.Strategy,
		MaxIter:   o.MaxIter,
		HighIter:  o.HighIter,
		RMax:      o.RMax,
		RDecrease: o.RDecrease,
		LaTol:     o.LaTol,
		STol:      o.GddTol,
	}
}

func (o SolverOptions) impactOptions() ncp.Options {
	opts := o.forceOptions()
	opts.LaTol = o.LaImpactTol
	opts.STol = o.GdTol
	return opts
}
