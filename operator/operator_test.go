package operator

import (
	"testing"

	"github.com/itohio/subgraphopt/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvShapeInference(t *testing.T) {
	op := &Operator{Kind: Conv, Params: ConvParams{PadH: 1, PadW: 1, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}}
	out, err := InferShape(op, []tensor.Shape{tensor.NewShape(1, 2, 4, 4), tensor.NewShape(4, 2, 3, 3)})
	require.NoError(t, err)
	assert.True(t, out[0].Equal(tensor.NewShape(1, 4, 4, 4)))
}

func TestMatmulShapeInferenceTransposed(t *testing.T) {
	op := &Operator{Kind: Matmul, Params: MatmulParams{TransA: true, TransB: false}}
	out, err := InferShape(op, []tensor.Shape{tensor.NewShape(4, 8), tensor.NewShape(4, 8)})
	require.NoError(t, err)
	assert.True(t, out[0].Equal(tensor.NewShape(8, 8)))
}

func TestHashStableAcrossClone(t *testing.T) {
	op := Operator{Kind: Conv, Params: ConvParams{PadH: 1, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}}
	h1 := op.Hash()
	clone := op.Clone()
	assert.Equal(t, h1, clone.Hash())
}

func TestHashDiffersOnParams(t *testing.T) {
	a := Operator{Kind: Conv, Params: ConvParams{PadH: 1, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}}
	b := Operator{Kind: Conv, Params: ConvParams{PadH: 2, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1}}
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestComputeAddElementwise(t *testing.T) {
	op := &Operator{Kind: Add}
	shapes := []tensor.Shape{tensor.NewShape(2, 2), tensor.NewShape(2, 2)}
	out, err := Compute(op, [][]int32{{1, 2, 3, 4}, {10, 20, 30, 40}}, shapes, shapes)
	require.NoError(t, err)
	assert.Equal(t, []int32{11, 22, 33, 44}, out[0])
}

func TestSplitConcatRoundTrip(t *testing.T) {
	concat := &Operator{Kind: Concat, Params: ConcatParams{Axis: 0}}
	in := []tensor.Shape{tensor.NewShape(2, 3), tensor.NewShape(3, 3)}
	out, err := InferShape(concat, in)
	require.NoError(t, err)
	assert.True(t, out[0].Equal(tensor.NewShape(5, 3)))

	split := &Operator{Kind: Split, Params: SplitParams{Axis: 0, Sizes: []int{2, 3}}}
	outs, err := InferShape(split, []tensor.Shape{tensor.NewShape(5, 3)})
	require.NoError(t, err)
	assert.True(t, outs[0].Equal(tensor.NewShape(2, 3)))
	assert.True(t, outs[1].Equal(tensor.NewShape(3, 3)))
}

func TestTransposeComputeSimplePermutation(t *testing.T) {
	op := &Operator{Kind: Transpose, Params: TransposeParams{Perm: []int{1, 0}, SplitAxis: -1}}
	in := []tensor.Shape{tensor.NewShape(2, 3)}
	out, err := InferShape(op, in)
	require.NoError(t, err)
	assert.True(t, out[0].Equal(tensor.NewShape(3, 2)))

	data := []int32{1, 2, 3, 4, 5, 6} // [[1,2,3],[4,5,6]]
	res, err := Compute(op, [][]int32{data}, in, out)
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 4, 2, 5, 3, 6}, res[0])
}
