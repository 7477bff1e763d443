package ncp

import (
	"errors"
	"math"
	"testing"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/law"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/mat"
)

var strategies = []Strategy{FixpointSingle, GaussSeidel, RootFinding}

func solveWith(t *testing.T, st Strategy, p *Problem) []float64 {
	t.Helper()
	opts := DefaultOptions()
	opts.Strategy = st
	res, err := NewSolver(opts, logr.Discard()).Solve(p, nil)
	if err != nil {
		t.Fatalf("%s: %v", st, err)
	}
	return res.La
}

func closeTo(a, b []float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

func twoContacts() *Problem {
	p := NewProblem(ForceBlock("c1", law.UnilateralConstraint{}), ForceBlock("c2", law.UnilateralConstraint{}))
	p.G.Copy(mat.NewDense(2, 2, []float64{2, 1, 1, 2}))
	copy(p.B, []float64{-3, 1})
	return p
}

func TestUnilateralComplementarity(t *testing.T) {
	want := []float64{1.5, 0}
	for _, st := range strategies {
		t.Run(st.String(), func(t *testing.T) {
			p := twoContacts()
			la := solveWith(t, st, p)
			if !closeTo(la, want, 1e-8) {
				t.Fatalf("la = %v, want %v", la, want)
			}
			s := make([]float64, 2)
			p.Residual(s, la)
			for i := range la {
				if la[i] < -1e-9 || s[i] < -1e-9 || math.Abs(la[i]*s[i]) > 1e-9 {
					t.Errorf("row %d violates complementarity: la=%v s=%v", i, la[i], s[i])
				}
			}
		})
	}
}

func TestMixedBilateralUnilateral(t *testing.T) {
	build := func() *Problem {
		p := NewProblem(
			ForceBlock("joint", law.BilateralConstraint{}),
			ForceBlock("contact", law.UnilateralConstraint{}),
		)
		p.G.Copy(mat.NewDense(2, 2, []float64{3, -1, -1, 2}))
		copy(p.B, []float64{2, -4})
		return p
	}
	var ref []float64
	for _, st := range strategies {
		la := solveWith(t, st, build())
		if ref == nil {
			ref = la
			continue
		}
		if !closeTo(la, ref, 1e-7) {
			t.Errorf("%s: la = %v, fixpoint gave %v", st, la, ref)
		}
	}
	s := make([]float64, 2)
	build().Residual(s, ref)
	if math.Abs(s[0]) > 1e-8 {
		t.Errorf("bilateral residual %v", s[0])
	}
}

func planarFriction() *Problem {
	n := ForceBlock("normal", law.UnilateralConstraint{})
	f := FrictionBlock("tangent", law.PlanarCoulomb{MuC: 0.5}, n, 0)
	p := NewProblem(n, f)
	p.G.Copy(mat.NewDense(2, 2, []float64{1, 0.2, 0.2, 1}))
	copy(p.B, []float64{-1, -2})
	return p
}

func TestPlanarFrictionSlip(t *testing.T) {
	laN := 1 / 1.1
	want := []float64{laN, 0.5 * laN}
	for _, st := range strategies {
		t.Run(st.String(), func(t *testing.T) {
			la := solveWith(t, st, planarFriction())
			if !closeTo(la, want, 1e-7) {
				t.Errorf("la = %v, want %v", la, want)
			}
		})
	}
}

func TestSpatialFrictionCone(t *testing.T) {
	build := func() *Problem {
		n := ForceBlock("normal", law.UnilateralConstraint{})
		f := FrictionBlock("tangent", law.SpatialCoulomb{MuC: 0.3}, n, 0)
		p := NewProblem(n, f)
		p.G.Copy(mat.NewDense(3, 3, []float64{
			2, 0.1, 0.1,
			0.1, 1, 0,
			0.1, 0, 1,
		}))
		copy(p.B, []float64{-2, -1, 0.5})
		return p
	}
	var ref []float64
	for _, st := range strategies {
		la := solveWith(t, st, build())
		if tn := math.Hypot(la[1], la[2]); tn > 0.3*math.Abs(la[0])+1e-9 {
			t.Errorf("%s: tangential %v outside cone of %v", st, tn, 0.3*la[0])
		}
		if ref == nil {
			ref = la
		} else if !closeTo(la, ref, 1e-6) {
			t.Errorf("%s: la = %v, fixpoint gave %v", st, la, ref)
		}
	}
}

func TestStickingFriction(t *testing.T) {
	n := ForceBlock("normal", law.UnilateralConstraint{})
	f := FrictionBlock("tangent", law.PlanarCoulomb{MuC: 0.8}, n, 0)
	p := NewProblem(n, f)
	p.G.Copy(mat.NewDense(2, 2, []float64{1, 0, 0, 1}))
	copy(p.B, []float64{-10, -1})
	la := solveWith(t, GaussSeidel, p)
	if !closeTo(la, []float64{10, 1}, 1e-9) {
		t.Errorf("la = %v", la)
	}
}

func TestImpactBlock(t *testing.T) {
	p := NewProblem(ImpactBlock("ball", law.UnilateralNewtonImpact{E: 0.5}, -2))
	p.G.Set(0, 0, 1)
	p.B[0] = -2
	for _, st := range strategies {
		la := solveWith(t, st, p)
		if math.Abs(la[0]-3) > 1e-9 {
			t.Errorf("%s: impulse = %v, want 3", st, la[0])
		}
	}
}

func TestIterationCapReported(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxIter = 1
	_, err := NewSolver(opts, logr.Discard()).Solve(planarFriction(), nil)
	if !errors.Is(err, dynamo.ErrConvergence) {
		t.Fatalf("err = %v, want convergence failure", err)
	}
	var ce *ConvergenceError
	if !errors.As(err, &ce) || ce.Iterations != 1 || ce.Strategy != FixpointSingle {
		t.Errorf("ConvergenceError = %+v", ce)
	}
}

func TestSingularNewtonJacobian(t *testing.T) {
	p := NewProblem(ForceBlock("a", law.BilateralConstraint{}), ForceBlock("b", law.BilateralConstraint{}))
	p.G.Copy(mat.NewDense(2, 2, []float64{1, 1, 1, 1}))
	copy(p.B, []float64{-1, -2})
	opts := DefaultOptions()
	opts.Strategy = RootFinding
	_, err := NewSolver(opts, logr.Discard()).Solve(p, nil)
	if !errors.Is(err, dynamo.ErrNumericDegeneracy) {
		t.Fatalf("err = %v, want numeric degeneracy", err)
	}
}

func TestNonPositiveDiagonal(t *testing.T) {
	p := NewProblem(ForceBlock("a", law.UnilateralConstraint{}))
	p.B[0] = -1
	_, err := NewSolver(DefaultOptions(), logr.Discard()).Solve(p, nil)
	if !errors.Is(err, dynamo.ErrNumericDegeneracy) {
		t.Fatalf("err = %v", err)
	}
}

func TestWarmStart(t *testing.T) {
	p := twoContacts()
	res, err := NewSolver(DefaultOptions(), logr.Discard()).Solve(p, []float64{1.5, 0})
	if err != nil {
		t.Fatal(err)
	}
	if res.Iterations != 0 {
		t.Errorf("converged warm start took %d iterations", res.Iterations)
	}
}

func TestEmptyProblem(t *testing.T) {
	res, err := NewSolver(DefaultOptions(), logr.Discard()).Solve(NewProblem(), nil)
	if err != nil || len(res.La) != 0 {
		t.Errorf("empty problem: %v %v", res, err)
	}
}

func TestParseStrategy(t *testing.T) {
	for _, st := range strategies {
		got, err := ParseStrategy(st.String())
		if err != nil || got != st {
			t.Errorf("ParseStrategy(%q) = %v, %v", st.String(), got, err)
		}
	}
	if _, err := ParseStrategy("simplex"); err == nil {
		t.Error("unknown strategy accepted")
	}
}

func chainProblem(n int) *Problem {
	blocks := make([]*Block, n)
	for i := range blocks {
		blocks[i] = ForceBlock("c", law.UnilateralConstraint{})
	}
	p := NewProblem(blocks...)
	for i := 0; i < n; i++ {
		p.G.Set(i, i, 2)
		if i > 0 {
			p.G.Set(i, i-1, -1)
			p.G.Set(i-1, i, -1)
		}
		p.B[i] = math.Sin(float64(i)) - 0.5
	}
	return p
}

func TestChainStrategiesAgree(t *testing.T) {
	var ref []float64
	for _, st := range strategies {
		la := solveWith(t, st, chainProblem(12))
		if ref == nil {
			ref = la
		} else if !closeTo(la, ref, 1e-6) {
			t.Errorf("%s: la = %v, fixpoint gave %v", st, la, ref)
		}
	}
}

func benchmarkStrategy(b *testing.B, st Strategy) {
	opts := DefaultOptions()
	opts.Strategy = st
	s := NewSolver(opts, logr.Discard())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Solve(chainProblem(12), nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFixpointSingle(b *testing.B) { benchmarkStrategy(b, FixpointSingle) }
func BenchmarkGaussSeidel(b *testing.B)    { benchmarkStrategy(b, GaussSeidel) }
func BenchmarkRootFinding(b *testing.B)    { benchmarkStrategy(b, RootFinding) }
