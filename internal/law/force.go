package law

import "math"

// ForceLaw is a set-valued law on a scalar constraint. s is the constraint
// acceleration (or velocity for impact laws) that depends affinely on la.
type ForceLaw interface {
	// Project returns prox(la - r*s).
	Project(la, s, r float64) float64
	// Diff returns the derivative of the projection with respect to its argument.
	Diff(la, s, r float64) float64
	// Solve returns the multiplier for the single row s = g*la + b.
	Solve(g, b float64) float64
	IsFulfilled(la, s, laTol, sTol float64) bool
	// IsActive reports whether the constraint is closed at gap g.
	IsActive(g, gTol float64) bool
	// IsBilateral reports equality constraints.
	IsBilateral() bool
}

// BilateralConstraint enforces s = 0 with an unbounded multiplier.
type BilateralConstraint struct{}

func (BilateralConstraint) Project(la, s, r float64) float64 { return la - r*s }

func (BilateralConstraint) Diff(la, s, r float64) float64 { return 1 }

func (BilateralConstraint) Solve(g, b float64) float64 { return -b / g }

func (BilateralConstraint) IsFulfilled(la, s, laTol, sTol float64) bool {
	return math.Abs(s) <= sTol
}

func (BilateralConstraint) IsActive(g, gTol float64) bool { return true }

func (BilateralConstraint) IsBilateral() bool { return true }

// UnilateralConstraint enforces 0 <= la, 0 <= s, la*s = 0 on a closed gap.
type UnilateralConstraint struct{}

func (UnilateralConstraint) Project(la, s, r float64) float64 { return ProxCN(la - r*s) }

func (UnilateralConstraint) Diff(la, s, r float64) float64 {
	if la-r*s > 0 {
		return 1
	}
	return 0
}

func (UnilateralConstraint) Solve(g, b float64) float64 {
	if b >= 0 {
		return 0
	}
	return -b / g
}

func (UnilateralConstraint) IsFulfilled(la, s, laTol, sTol float64) bool {
	return la >= -laTol && s >= -sTol && (la <= laTol || math.Abs(s) <= sTol)
}

func (UnilateralConstraint) IsActive(g, gTol float64) bool { return g <= gTol }

func (UnilateralConstraint) IsBilateral() bool { return false }
