// Package link implements the interactions between frames: smooth force
// elements and set-valued joints and contacts. The set of link kinds is
// closed; only the constitutive laws are open-ended.
package link

import (
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"github.com/foerg/mbsim-env-sub002/internal/ncp"
	"github.com/foerg/mbsim-env-sub002/internal/spatial"
	"gonum.org/v1/gonum/mat"
)

// Resolver maps a frame path, relative to the owning group, to a frame.
type Resolver func(path string) (*kinematics.Frame, error)

// Level distinguishes force (acceleration) rows from impact (velocity) rows.
type Level uint8

const (
	ForceLevel Level = iota
	ImpactLevel
)

// Tolerances used for activity decisions.
type Tolerances struct {
	GapTol float64
	GdTol  float64
}

// Link is one interaction. Update must be called once per evaluation before
// any other accessor.
type Link interface {
	Name() string
	// Connect resolves frame references and allocates storage for nu
	// generalized velocities.
	Connect(resolve Resolver, nu int, tol Tolerances) error
	// Check validates the geometry at the initial state.
	Check() error
	Update(t float64) error
	// AddSmoothForces accumulates regularized forces into h.
	AddSmoothForces(h []float64)
	// Constraints returns the rows that are active at the given level.
	Constraints(level Level) []*Constraint
	// StopValues appends values whose crossing from positive to non-positive
	// marks an event.
	StopValues(dst []float64) []float64
	// NeedsImpact reports a closing contact that must be resolved by an impact.
	NeedsImpact() bool
	// ActiveSetChanged reports a change against the last accepted state.
	ActiveSetChanged() bool
	// Accept records the current activity as the reference for event checks.
	Accept()
	Forces() []float64
	PotentialEnergy() float64
	isLink()
}

// Constraint is a block of rows exposed to the complementarity solver. W
// maps multipliers to generalized forces; V replaces W on the right of the
// Delassus matrix when set (sliding friction). The gap acceleration of the
// rows is W^T*u' + Wb, Gd holds the current gap velocities.
type Constraint struct {
	Link  Link
	Block *ncp.Block
	W     *mat.Dense
	V     *mat.Dense
	Wb    []float64
	Gd    []float64
	La    []float64
}

// Directions returns the force directions V, or W when they coincide.
func (c *Constraint) Directions() *mat.Dense {
	if c.V != nil {
		return c.V
	}
	return c.W
}

func newConstraint(l Link, b *ncp.Block, nu int) *Constraint {
	k := b.Size()
	return &Constraint{
		Link:  l,
		Block: b,
		W:     mat.NewDense(nu, k, nil),
		Wb:    make([]float64, k),
		Gd:    make([]float64, k),
		La:    make([]float64, k),
	}
}

// base holds what every link shares.
type base struct {
	name  string
	paths []string
	nu    int
	tol   Tolerances
}

func (b *base) Name() string { return b.name }

func (b *base) isLink() {}

func (b *base) resolve(resolve Resolver) ([]*kinematics.Frame, error) {
	out := make([]*kinematics.Frame, len(b.paths))
	for i, p := range b.paths {
		f, err := resolve(p)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (b *base) Constraints(Level) []*Constraint { return nil }

func (b *base) StopValues(dst []float64) []float64 { return dst }

func (b *base) NeedsImpact() bool { return false }

func (b *base) ActiveSetChanged() bool { return false }

func (b *base) Accept() {}

func (b *base) Check() error { return nil }

func (b *base) AddSmoothForces([]float64) {}

func (b *base) PotentialEnergy() float64 { return 0 }

// pointColumn accumulates sign*(JT - tilde(rho)*JR)^T * d into dst, the
// generalized direction of a force d applied at the point rho away from f.
func pointColumn(dst []float64, f *kinematics.Frame, rho, d spatial.Vec3, sign float64) {
	spatial.AddTransposed(dst, f.JacobianOfTranslation(0), d.Mul(sign))
	spatial.AddTransposed(dst, f.JacobianOfRotation(0), rho.Cross(d).Mul(sign))
}

// rotationColumn accumulates sign*JR^T * d into dst.
func rotationColumn(dst []float64, f *kinematics.Frame, d spatial.Vec3, sign float64) {
	spatial.AddTransposed(dst, f.JacobianOfRotation(0), d.Mul(sign))
}

func setColumn(w *mat.Dense, j int, col []float64) {
	for i, v := range col {
		w.Set(i, j, v)
	}
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}
