// Package ncp solves the nonlinear complementarity problems of set-valued
// links: find la with s = G*la + b such that every block's law holds.
package ncp

import (
	"fmt"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"gonum.org/v1/gonum/mat"
)

// Problem is a frozen NCP. G is the Delassus matrix W^T*M^-1*V.
type Problem struct {
	G      *mat.Dense
	B      []float64
	Blocks []*Block
	n      int
}

// NewProblem lays out the blocks consecutively. G and B must be filled by the
// caller before solving.
func NewProblem(blocks ...*Block) *Problem {
	p := &Problem{Blocks: blocks}
	for _, b := range blocks {
		b.offset = p.n
		p.n += b.size
	}
	if p.n > 0 {
		p.G = mat.NewDense(p.n, p.n, nil)
		p.B = make([]float64, p.n)
	}
	return p
}

// Size is the number of multipliers.
func (p *Problem) Size() int { return p.n }

// Validate checks dimensions and the friction block wiring.
func (p *Problem) Validate() error {
	if p.n == 0 {
		return nil
	}
	if r, c := p.G.Dims(); r != p.n || c != p.n {
		return fmt.Errorf("%w: G is %dx%d, want %dx%d", dynamo.ErrDimensionMismatch, r, c, p.n, p.n)
	}
	if len(p.B) != p.n {
		return fmt.Errorf("%w: b has %d rows, want %d", dynamo.ErrDimensionMismatch, len(p.B), p.n)
	}
	in := make(map[*Block]bool, len(p.Blocks))
	for _, b := range p.Blocks {
		in[b] = true
	}
	for _, b := range p.Blocks {
		if b.isFriction() && (b.normal == nil || !in[b.normal] || b.normal.isFriction()) {
			return &dynamo.NumericError{Op: "ncp", Reason: fmt.Sprintf("friction block %s has no normal row in the problem", b.Name)}
		}
	}
	return nil
}

// Residual evaluates s = G*la + b.
func (p *Problem) Residual(dst, la []float64) {
	for i := 0; i < p.n; i++ {
		v := p.B[i]
		for j, g := range p.G.RawRowView(i) {
			v += g * la[j]
		}
		dst[i] = v
	}
}

func (p *Problem) rowResidual(i int, la []float64) float64 {
	v := p.B[i]
	for j, g := range p.G.RawRowView(i) {
		v += g * la[j]
	}
	return v
}

// Fulfilled reports whether every block's law holds for la.
func (p *Problem) Fulfilled(la []float64, laTol, sTol float64) bool {
	s := make([]float64, p.n)
	p.Residual(s, la)
	return p.fulfilled(la, s, laTol, sTol)
}

func (p *Problem) fulfilled(la, s []float64, laTol, sTol float64) bool {
	for _, b := range p.Blocks {
		if !b.fulfilled(la, s, laTol, sTol) {
			return false
		}
	}
	return true
}
