package law

import "math"

// ImpactLaw is a set-valued law at velocity level. gd is the gap velocity
// before the impact and gda the one after; La is the impulse.
type ImpactLaw interface {
	Project(La, gda, gd, r float64) float64
	Diff(La, gda, gd, r float64) float64
	// Solve returns the impulse for the single row gda = g*La + b.
	Solve(g, b, gd float64) float64
	IsFulfilled(La, gda, gd, laTol, gdTol float64) bool
}

// BilateralImpact drives the post-impact gap velocity to zero.
type BilateralImpact struct{}

func (BilateralImpact) Project(La, gda, gd, r float64) float64 { return La - r*gda }

func (BilateralImpact) Diff(La, gda, gd, r float64) float64 { return 1 }

func (BilateralImpact) Solve(g, b, gd float64) float64 { return -b / g }

func (BilateralImpact) IsFulfilled(La, gda, gd, laTol, gdTol float64) bool {
	return math.Abs(gda) <= gdTol
}

// UnilateralNewtonImpact applies Newton's restitution: gda = -E*gd for
// approach speeds above GdLimit and gda = 0 below it.
type UnilateralNewtonImpact struct {
	E       float64
	GdLimit float64
}

func (l UnilateralNewtonImpact) target(gda, gd float64) float64 {
	if gd < -l.GdLimit {
		return gda + l.E*gd
	}
	return gda
}

func (l UnilateralNewtonImpact) Project(La, gda, gd, r float64) float64 {
	return ProxCN(La - r*l.target(gda, gd))
}

func (l UnilateralNewtonImpact) Diff(La, gda, gd, r float64) float64 {
	if La-r*l.target(gda, gd) > 0 {
		return 1
	}
	return 0
}

func (l UnilateralNewtonImpact) Solve(g, b, gd float64) float64 {
	return ProxCN(-l.target(b, gd) / g)
}

func (l UnilateralNewtonImpact) IsFulfilled(La, gda, gd, laTol, gdTol float64) bool {
	s := l.target(gda, gd)
	return La >= -laTol && s >= -gdTol && (La <= laTol || math.Abs(s) <= gdTol)
}
