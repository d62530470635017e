package subgraph

import (
	"testing"

	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAddGraph(t *testing.T) *Subgraph {
	t.Helper()
	pool := tensor.NewPool(4)
	a := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Input)
	b := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Input)
	out := pool.Push(tensor.NewShape(2, 2), tensor.Int32, tensor.Intermediate)

	sg := New(pool)
	ops := []operator.Operator{
		{Kind: operator.Add, Inputs: []int{a, b}, Outputs: []int{out}},
	}
	require.NoError(t, sg.ResetOps(ops, pool.NumValid()))
	return sg
}

func TestResetOpsDerivesInputsOutputs(t *testing.T) {
	sg := buildAddGraph(t)
	assert.Len(t, sg.Inputs(), 2)
	assert.Equal(t, []int{2}, sg.Outputs())
	assert.Len(t, sg.Order(), 1)
}

func TestResetOpsRejectsDanglingInput(t *testing.T) {
	pool := tensor.NewPool(2)
	pool.Push(tensor.NewShape(2), tensor.Int32, tensor.Input)
	sg := New(pool)
	ops := []operator.Operator{
		{Kind: operator.Add, Inputs: []int{0, 5}, Outputs: []int{0}},
	}
	assert.Error(t, sg.ResetOps(ops, pool.NumValid()))
}

func TestResetOpsRejectsDuplicateProducer(t *testing.T) {
	pool := tensor.NewPool(3)
	a := pool.Push(tensor.NewShape(2), tensor.Int32, tensor.Input)
	out := pool.Push(tensor.NewShape(2), tensor.Int32, tensor.Intermediate)
	sg := New(pool)
	ops := []operator.Operator{
		{Kind: operator.Add, Inputs: []int{a, a}, Outputs: []int{out}},
		{Kind: operator.Add, Inputs: []int{a, a}, Outputs: []int{out}},
	}
	assert.Error(t, sg.ResetOps(ops, pool.NumValid()))
}

func TestComputeBackExecutes(t *testing.T) {
	sg := buildAddGraph(t)
	pool := sg.Pool()
	pool.Get(0).Fill(func(i int) int32 { return int32(i + 1) })  // [1,2,3,4]
	pool.Get(1).Fill(func(i int) int32 { return int32(10 * (i + 1)) }) // [10,20,30,40]

	v, ok := sg.Compute(2, []int{0, 1})
	require.True(t, ok)
	assert.Equal(t, int32(22), v) // element (0,1): 2 + 20
}

func TestComputeFailsWithoutInputData(t *testing.T) {
	sg := buildAddGraph(t)
	_, ok := sg.Compute(2, []int{0, 0})
	assert.False(t, ok, "unfilled input tensors must fail the compute, not panic")
}

func TestCloneIntoIndependence(t *testing.T) {
	sg := buildAddGraph(t)
	clone := sg.CloneInto()
	assert.Equal(t, sg.Hash(), clone.Hash())
	assert.NotSame(t, sg.Pool(), clone.Pool())
}
