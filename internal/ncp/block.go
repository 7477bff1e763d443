package ncp

import (
	"math"

	"github.com/foerg/mbsim-env-sub002/internal/law"
	"gonum.org/v1/gonum/mat"
)

type blockKind uint8

const (
	forceBlock blockKind = iota
	impactBlock
	frictionBlock
	frictionImpactBlock
)

// Block is the group of rows a single set-valued law contributes to a
// problem. Offsets are assigned by NewProblem.
type Block struct {
	Name   string
	kind   blockKind
	offset int
	size   int

	force    law.ForceLaw
	impact   law.ImpactLaw
	friction law.FrictionLaw

	normal *Block
	speed  float64
	pre    []float64
}

// ForceBlock is a scalar row governed by a set-valued force law.
func ForceBlock(name string, l law.ForceLaw) *Block {
	return &Block{Name: name, kind: forceBlock, size: 1, force: l}
}

// ImpactBlock is a scalar row at velocity level; gd is the gap velocity
// before the impact.
func ImpactBlock(name string, l law.ImpactLaw, gd float64) *Block {
	return &Block{Name: name, kind: impactBlock, size: 1, impact: l, pre: []float64{gd}}
}

// FrictionBlock couples a friction law to the normal row it is bounded by.
// speed selects the friction coefficient.
func FrictionBlock(name string, l law.FrictionLaw, normal *Block, speed float64) *Block {
	return &Block{Name: name, kind: frictionBlock, size: l.Dim(), friction: l, normal: normal, speed: speed}
}

// FrictionImpactBlock is the velocity-level counterpart of FrictionBlock.
func FrictionImpactBlock(name string, l law.FrictionLaw, normal *Block, gd []float64) *Block {
	return &Block{
		Name:     name,
		kind:     frictionImpactBlock,
		size:     l.Dim(),
		friction: l,
		normal:   normal,
		speed:    law.Norm(gd),
		pre:      append([]float64(nil), gd...),
	}
}

func (b *Block) Offset() int { return b.offset }

func (b *Block) Size() int { return b.size }

func (b *Block) rows(v []float64) []float64 { return v[b.offset : b.offset+b.size] }

func (b *Block) isFriction() bool {
	return b.kind == frictionBlock || b.kind == frictionImpactBlock
}

func (b *Block) radius(la []float64) float64 {
	return b.friction.Mu(b.speed) * math.Abs(la[b.normal.offset])
}

// project writes prox(la - r*s) for the block rows into dst.
func (b *Block) project(dst, la, s, r []float64) {
	o := b.offset
	switch b.kind {
	case forceBlock:
		dst[o] = b.force.Project(la[o], s[o], r[o])
	case impactBlock:
		dst[o] = b.impact.Project(la[o], s[o], b.pre[0], r[o])
	default:
		law.ProjectFriction(b.rows(dst), b.rows(la), b.rows(s), b.radius(la), r[o])
	}
}

// diff writes the block rows of dP/dla into jac, using s = G*la + b.
func (b *Block) diff(jac *mat.Dense, la, s, r []float64, g *mat.Dense) {
	o := b.offset
	_, n := g.Dims()
	switch b.kind {
	case forceBlock, impactBlock:
		var d float64
		if b.kind == forceBlock {
			d = b.force.Diff(la[o], s[o], r[o])
		} else {
			d = b.impact.Diff(la[o], s[o], b.pre[0], r[o])
		}
		for j := 0; j < n; j++ {
			v := -r[o] * g.At(o, j)
			if j == o {
				v++
			}
			jac.Set(o, j, d*v)
		}
	default:
		dArg, dRad := law.DiffFriction(b.rows(la), b.rows(s), b.radius(la), r[o])
		k := b.size
		for i := 0; i < k; i++ {
			for j := 0; j < n; j++ {
				v := 0.0
				for m := 0; m < k; m++ {
					e := -r[o] * g.At(o+m, j)
					if o+m == j {
						e++
					}
					v += dArg[i*k+m] * e
				}
				jac.Set(o+i, j, v)
			}
			nIdx := b.normal.offset
			mu := b.friction.Mu(b.speed)
			jac.Set(o+i, nIdx, jac.At(o+i, nIdx)+dRad[i]*mu*law.Sign(la[nIdx]))
		}
	}
}

// solve sets the block rows of la from the block's own diagonal, treating
// the other multipliers as fixed.
func (b *Block) solve(la []float64, g *mat.Dense, rhs []float64) {
	o := b.offset
	_, n := g.Dims()
	other := func(i int) float64 {
		v := rhs[i]
		for j := 0; j < n; j++ {
			if j < o || j >= o+b.size {
				v += g.At(i, j) * la[j]
			}
		}
		return v
	}
	switch b.kind {
	case forceBlock:
		la[o] = b.force.Solve(g.At(o, o), other(o))
	case impactBlock:
		la[o] = b.impact.Solve(g.At(o, o), other(o), b.pre[0])
	default:
		free := make([]float64, b.size)
		for i := range free {
			free[i] = -other(o+i) / g.At(o+i, o+i)
		}
		zero := make([]float64, b.size)
		law.ProjectFriction(b.rows(la), free, zero, b.radius(la), 0)
	}
}

func (b *Block) fulfilled(la, s []float64, laTol, sTol float64) bool {
	o := b.offset
	switch b.kind {
	case forceBlock:
		return b.force.IsFulfilled(la[o], s[o], laTol, sTol)
	case impactBlock:
		return b.impact.IsFulfilled(la[o], s[o], b.pre[0], laTol, sTol)
	}
	return law.FrictionFulfilled(b.rows(la), b.rows(s), b.radius(la), laTol, sTol)
}
