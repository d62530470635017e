package verify

import (
	"math/rand"
	"testing"

	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAddGraph(t *testing.T) *subgraph.Subgraph {
	t.Helper()
	pool := tensor.NewPool(3)
	a := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Input)
	b := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Input)
	out := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Intermediate)
	sg := subgraph.New(pool)
	ops := []operator.Operator{
		{Kind: operator.Add, Inputs: []int{a, b}, Outputs: []int{out}},
	}
	require.NoError(t, sg.ResetOps(ops, pool.NumValid()))
	pool.Get(a).Fill(func(i int) int32 { return int32(i + 1) })
	pool.Get(b).Fill(func(i int) int32 { return int32(10 * (i + 1)) })
	return sg
}

func TestBuildReferenceAndAcceptSelf(t *testing.T) {
	sg := buildAddGraph(t)
	rng := rand.New(rand.NewSource(1))
	ref, ok := BuildReference(sg, rng)
	require.True(t, ok)
	require.NotEmpty(t, ref.samples)

	identityMap := map[int]int{}
	for _, out := range sg.Outputs() {
		identityMap[out] = out
	}
	assert.True(t, ref.Accept(sg, identityMap, 0.99))
}

func TestAcceptRejectsUnknownOutput(t *testing.T) {
	sg := buildAddGraph(t)
	rng := rand.New(rand.NewSource(2))
	ref, ok := BuildReference(sg, rng)
	require.True(t, ok)
	assert.False(t, ref.Accept(sg, map[int]int{}, 0.5))
}

func TestSamplePositionWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	shape := tensor.NewShape(3, 9)
	for i := 0; i < 20; i++ {
		pos := samplePosition(shape, rng)
		for d, p := range pos {
			assert.GreaterOrEqual(t, p, 0)
			assert.Less(t, p, shape[d])
		}
	}
}
