package ncp

import (
	"fmt"
	"math"
	"strings"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/mat"
)

// Strategy selects the iteration scheme.
type Strategy int

const (
	// FixpointSingle projects every block against the multipliers of the
	// previous sweep.
	FixpointSingle Strategy = iota
	// GaussSeidel writes each projection back before the next block is visited.
	GaussSeidel
	// RootFinding applies Newton's method to la - prox(la - r*(G*la + b)) = 0.
	RootFinding
)

func (s Strategy) String() string {
	switch s {
	case FixpointSingle:
		return "fixpoint"
	case GaussSeidel:
		return "gaussseidel"
	case RootFinding:
		return "rootfinding"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy accepts the names produced by String.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "fixpoint", "fixpointsingle":
		return FixpointSingle, nil
	case "gaussseidel", "gs":
		return GaussSeidel, nil
	case "rootfinding", "newton":
		return RootFinding, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// Options configures a Solver. A zero MaxIter selects the strategy default.
type Options struct {
	Strategy  Strategy
	MaxIter   int
	HighIter  int
	RMax      float64
	RDecrease float64
	LaTol     float64
	STol      float64
}

func DefaultOptions() Options {
	return Options{
		Strategy:  FixpointSingle,
		HighIter:  1000,
		RMax:      0.5,
		RDecrease: 0.9,
		LaTol:     1e-9,
		STol:      1e-9,
	}
}

func (o Options) maxIter() int {
	if o.MaxIter > 0 {
		return o.MaxIter
	}
	if o.Strategy == RootFinding {
		return 100
	}
	return 10000
}

// ConvergenceError reports an exhausted iteration cap.
type ConvergenceError struct {
	Strategy   Strategy
	Iterations int
	Residual   float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("ncp %s: no convergence after %d iterations (residual %.3g)", e.Strategy, e.Iterations, e.Residual)
}

func (e *ConvergenceError) Unwrap() error { return dynamo.ErrConvergence }

// Result carries the converged multipliers.
type Result struct {
	La         []float64
	Iterations int
}

type Solver struct {
	opts Options
	log  logr.Logger
}

func NewSolver(opts Options, log logr.Logger) *Solver {
	return &Solver{opts: opts, log: log}
}

func (s *Solver) Options() Options { return s.opts }

// Solve runs the configured strategy. la0 is a warm start; when nil each
// block is initialized from its own diagonal.
func (s *Solver) Solve(p *Problem, la0 []float64) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	n := p.Size()
	la := make([]float64, n)
	if n == 0 {
		return Result{La: la}, nil
	}
	if len(la0) == n {
		copy(la, la0)
	} else {
		for _, b := range p.Blocks {
			if !b.isFriction() {
				b.solve(la, p.G, p.B)
			}
		}
		for _, b := range p.Blocks {
			if b.isFriction() {
				b.solve(la, p.G, p.B)
			}
		}
	}
	r, unsure, err := s.rFactors(p)
	if err != nil {
		return Result{}, err
	}
	var iter int
	switch s.opts.Strategy {
	case RootFinding:
		iter, err = s.newton(p, la, r)
	default:
		iter, err = s.sweep(p, la, r, unsure)
	}
	if err != nil {
		return Result{La: la, Iterations: iter}, err
	}
	s.log.V(2).Info("ncp converged", "strategy", s.opts.Strategy.String(), "size", n, "iterations", iter)
	return Result{La: la, Iterations: iter}, nil
}

// rFactors derives the proximal step sizes from the diagonal dominance of G.
// Rows that are not dominant start at RMax/G_ii and are reported as unsure.
func (s *Solver) rFactors(p *Problem) ([]float64, []bool, error) {
	n := p.Size()
	r := make([]float64, n)
	unsure := make([]bool, n)
	for i := 0; i < n; i++ {
		gii := p.G.At(i, i)
		if !(gii > 0) {
			return nil, nil, &dynamo.NumericError{Op: "ncp", Reason: fmt.Sprintf("non-positive diagonal %g in row %d", gii, i)}
		}
		off := 0.0
		for j, v := range p.G.RawRowView(i) {
			if j != i {
				off += math.Abs(v)
			}
		}
		if gii >= off {
			r[i] = 1 / gii
		} else {
			r[i] = s.opts.RMax / gii
			unsure[i] = true
		}
	}
	for _, b := range p.Blocks {
		if !b.isFriction() {
			continue
		}
		o := b.offset
		for i := o + 1; i < o+b.size; i++ {
			r[o] = math.Min(r[o], r[i])
			unsure[o] = unsure[o] || unsure[i]
		}
		for i := o + 1; i < o+b.size; i++ {
			r[i], unsure[i] = r[o], unsure[o]
		}
	}
	return r, unsure, nil
}

func (s *Solver) sweep(p *Problem, la, r []float64, unsure []bool) (int, error) {
	n := p.Size()
	res := make([]float64, n)
	next := make([]float64, n)
	gs := s.opts.Strategy == GaussSeidel
	limit := s.maxIter()
	p.Residual(res, la)
	if p.fulfilled(la, res, s.opts.LaTol, s.opts.STol) {
		return 0, nil
	}
	for iter := 1; iter <= limit; iter++ {
		if gs {
			for _, b := range p.Blocks {
				for i := b.offset; i < b.offset+b.size; i++ {
					res[i] = p.rowResidual(i, la)
				}
				b.project(la, la, res, r)
			}
		} else {
			copy(next, la)
			for _, b := range p.Blocks {
				b.project(next, la, res, r)
			}
			copy(la, next)
		}
		p.Residual(res, la)
		if p.fulfilled(la, res, s.opts.LaTol, s.opts.STol) {
			return iter, nil
		}
		if s.opts.HighIter > 0 && iter%s.opts.HighIter == 0 {
			for i := range r {
				if unsure[i] {
					r[i] *= s.opts.RDecrease
				}
			}
			s.log.V(2).Info("decreasing r-factors", "iteration", iter)
		}
	}
	return limit, &ConvergenceError{Strategy: s.opts.Strategy, Iterations: limit, Residual: s.residualNorm(p, la, r)}
}

func (s *Solver) maxIter() int { return s.opts.maxIter() }

func (s *Solver) newton(p *Problem, la, r []float64) (int, error) {
	n := p.Size()
	res := make([]float64, n)
	proj := make([]float64, n)
	jac := mat.NewDense(n, n, nil)
	rhs := mat.NewVecDense(n, nil)
	dx := mat.NewVecDense(n, nil)
	limit := s.maxIter()
	for iter := 0; iter <= limit; iter++ {
		p.Residual(res, la)
		if p.fulfilled(la, res, s.opts.LaTol, s.opts.STol) {
			return iter, nil
		}
		if iter == limit {
			break
		}
		for _, b := range p.Blocks {
			b.project(proj, la, res, r)
			b.diff(jac, la, res, r, p.G)
		}
		// J = I - dP/dla, rhs = -(la - P)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := -jac.At(i, j)
				if i == j {
					v++
				}
				jac.Set(i, j, v)
			}
			rhs.SetVec(i, proj[i]-la[i])
		}
		var lu mat.LU
		lu.Factorize(jac)
		if err := lu.SolveVecTo(dx, false, rhs); err != nil {
			return iter, &dynamo.NumericError{Op: "ncp newton", Reason: err.Error()}
		}
		for i := range la {
			la[i] += dx.AtVec(i)
		}
	}
	return limit, &ConvergenceError{Strategy: RootFinding, Iterations: limit, Residual: s.residualNorm(p, la, r)}
}

// residualNorm is max |la - prox(la - r*s)|.
func (s *Solver) residualNorm(p *Problem, la, r []float64) float64 {
	n := p.Size()
	res := make([]float64, n)
	proj := make([]float64, n)
	p.Residual(res, la)
	for _, b := range p.Blocks {
		b.project(proj, la, res, r)
	}
	m := 0.0
	for i := range la {
		m = math.Max(m, math.Abs(la[i]-proj[i]))
	}
	return m
}
