package subgraph

import (
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
)

// Inputs returns the indices of live tensors with Role Input or Weight,
// i.e. tensors with no producer.
func (sg *Subgraph) Inputs() []int {
	out := make([]int, 0)
	for idx := 0; idx < sg.pool.NumValid(); idx++ {
		r := sg.pool.Get(idx).Role()
		if r == tensor.Input || r == tensor.Weight {
			out = append(out, idx)
		}
	}
	return out
}

// CloneInto materializes an independent Subgraph over a fresh pool sized to
// this subgraph's live tensor count, copying shapes/dtypes/roles, the data
// of filled Input/Weight tensors, and the operator list (with fresh Clone()d operators rebound to the new pool's
// indices, which are numerically identical since both pools are populated
// in the same push order). Used by the search driver to emit an accepted
// mutant: clones the current op list into a new, independent subgraph.
func (sg *Subgraph) CloneInto() *Subgraph {
	n := sg.pool.NumValid()
	newPool := tensor.NewPool(n)
	for idx := 0; idx < n; idx++ {
		src := sg.pool.Get(idx)
		newIdx := newPool.Push(src.Shape().Clone(), src.DataType(), src.Role())
		nt := newPool.Get(newIdx)
		nt.SetPenalty(append([]int(nil), src.Penalty()...))
		nt.SetSplittingPoints(src.SplittingPoints().Clone())
		nt.SetHash(src.Hash())
		if src.Filled() && (src.Role() == tensor.Input || src.Role() == tensor.Weight) {
			nt.FillRaw(src.Raw())
		}
	}

	cloned := make([]operator.Operator, len(sg.ops))
	for i := range sg.ops {
		c := sg.ops[i].Clone()
		c.Inputs = append([]int(nil), sg.ops[i].Inputs...)
		c.Outputs = append([]int(nil), sg.ops[i].Outputs...)
		cloned[i] = c
	}

	out := New(newPool)
	if err := out.ResetOps(cloned, n); err != nil {
		panic("subgraph: CloneInto: cloned graph failed to reset: " + err.Error())
	}
	return out
}
