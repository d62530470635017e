package reciprocity

import (
	"testing"

	"github.com/itohio/subgraphopt/operator"
	"github.com/stretchr/testify/assert"
)

func TestStoreMatchesTailExact(t *testing.T) {
	s := NewStore()
	s.Add(Chain{10, 20})

	ops := []operator.Operator{
		{Kind: operator.Transpose, Inputs: []int{0}, Outputs: []int{1}, Params: operator.TransposeParams{Perm: []int{1, 0, 2, 3}, SplitAxis: -1}},
		{Kind: operator.Transpose, Inputs: []int{1}, Outputs: []int{2}, Params: operator.TransposeParams{Perm: []int{0, 1, 3, 2}, SplitAxis: -1}},
	}
	// force hashes via Hash() on default params (consistent per-call) rather
	// than the literal 10/20 above — rebuild the store from the real hashes.
	s2 := NewStore()
	s2.Add(Chain{ops[0].Hash(), ops[1].Hash()})

	producerOp := map[int]int{1: 0, 2: 1}
	assert.True(t, s2.MatchesTail(ops, producerOp))
	assert.False(t, s.MatchesTail(ops, producerOp))
}

func TestStoreMatchesTailStopsAtNonTranspose(t *testing.T) {
	s := NewStore()
	ops := []operator.Operator{
		{Kind: operator.Add, Inputs: []int{0, 0}, Outputs: []int{1}},
		{Kind: operator.Transpose, Inputs: []int{1}, Outputs: []int{2}, Params: operator.TransposeParams{Perm: []int{1, 0, 2, 3}, SplitAxis: -1}},
	}
	s.Add(Chain{ops[1].Hash()})
	producerOp := map[int]int{1: 0, 2: 1}
	assert.True(t, s.MatchesTail(ops, producerOp))
}

func TestStoreEmptyNeverMatches(t *testing.T) {
	s := NewStore()
	ops := []operator.Operator{{Kind: operator.Transpose, Inputs: []int{0}, Outputs: []int{1}, Params: operator.TransposeParams{Perm: []int{1, 0, 2, 3}, SplitAxis: -1}}}
	assert.False(t, s.MatchesTail(ops, map[int]int{}))
}

func TestIdentityInputShape(t *testing.T) {
	pool := IdentityInput()
	assert.Equal(t, 1, pool.NumValid())
	assert.Equal(t, 4, pool.Get(0).Shape().Rank())
}
