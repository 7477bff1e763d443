package mbs

import (
	"errors"
	"fmt"
	"sort"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
	"github.com/foerg/mbsim-env-sub002/internal/kinematics"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

// massBlocks partitions the generalized velocities into the independent
// diagonal blocks of the mass matrix. Two velocities are coupled when some
// body's centre of mass Jacobian depends on both.
func massBlocks(bodies []*kinematics.RigidBody, nu int) [][]int {
	g := simple.NewUndirectedGraph()
	for i := 0; i < nu; i++ {
		g.AddNode(simple.Node(i))
	}
	for _, b := range bodies {
		var idx []int
		for _, a := range append([]*kinematics.RigidBody{b}, b.Ancestors()...) {
			for k := 0; k < a.USize(); k++ {
				idx = append(idx, a.UOffset()+k)
			}
		}
		for _, k := range idx[min(1, len(idx)):] {
			if k != idx[0] {
				g.SetEdge(g.NewEdge(simple.Node(idx[0]), simple.Node(k)))
			}
		}
	}
	var blocks [][]int
	for _, cc := range topo.ConnectedComponents(g) {
		block := make([]int, len(cc))
		for i, n := range cc {
			block[i] = int(n.ID())
		}
		sort.Ints(block)
		blocks = append(blocks, block)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i][0] < blocks[j][0] })
	return blocks
}

// massMatrix holds the Cholesky factors of the diagonal blocks of M.
type massMatrix struct {
	blocks [][]int
	chol   []mat.Cholesky
}

func newMassMatrix(blocks [][]int) *massMatrix {
	return &massMatrix{blocks: blocks, chol: make([]mat.Cholesky, len(blocks))}
}

func (mm *massMatrix) factorize(m *mat.Dense) error {
	for k, idx := range mm.blocks {
		sym := mat.NewSymDense(len(idx), nil)
		for i, r := range idx {
			for j := i; j < len(idx); j++ {
				sym.SetSym(i, j, m.At(r, idx[j]))
			}
		}
		if ok := mm.chol[k].Factorize(sym); !ok {
			return &dynamo.NumericError{Op: "mass matrix", Reason: fmt.Sprintf("block at velocity %d is not positive definite", idx[0])}
		}
	}
	return nil
}

// solveVec writes M^-1*rhs to dst.
func (mm *massMatrix) solveVec(dst, rhs []float64) error {
	for k, idx := range mm.blocks {
		b := mat.NewVecDense(len(idx), nil)
		for i, r := range idx {
			b.SetVec(i, rhs[r])
		}
		var x mat.VecDense
		if err := mm.chol[k].SolveVecTo(&x, b); err != nil && !isCondition(err) {
			return &dynamo.NumericError{Op: "mass matrix", Reason: err.Error()}
		}
		for i, r := range idx {
			dst[r] = x.AtVec(i)
		}
	}
	return nil
}

// solveDense returns M^-1*rhs.
func (mm *massMatrix) solveDense(rhs *mat.Dense) (*mat.Dense, error) {
	nu, n := rhs.Dims()
	out := mat.NewDense(nu, n, nil)
	for k, idx := range mm.blocks {
		b := mat.NewDense(len(idx), n, nil)
		for i, r := range idx {
			b.SetRow(i, rhs.RawRowView(r))
		}
		var x mat.Dense
		if err := mm.chol[k].SolveTo(&x, b); err != nil && !isCondition(err) {
			return nil, &dynamo.NumericError{Op: "mass matrix", Reason: err.Error()}
		}
		for i, r := range idx {
			out.SetRow(r, x.RawRowView(i))
		}
	}
	return out, nil
}

func isCondition(err error) bool {
	var c mat.Condition
	return errors.As(err, &c)
}
