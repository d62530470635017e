package operator

import "github.com/itohio/subgraphopt/tensor"

// ShapeInferFunc computes output shapes from input shapes and an
// operator's parameters. It is a pure function of its arguments.
type ShapeInferFunc func(op *Operator, inputShapes []tensor.Shape) ([]tensor.Shape, error)

// ComputeFunc evaluates an operator's reference semantics over Int32 data,
// given flattened row-major input buffers and both input and output shapes.
type ComputeFunc func(op *Operator, inputs [][]int32, inputShapes, outputShapes []tensor.Shape) ([][]int32, error)

// SplittingInferFunc propagates splitting-point annotations from inputs to
// outputs.
type SplittingInferFunc func(op *Operator, inputSplits []tensor.SplittingPoints, inputShapes, outputShapes []tensor.Shape) ([]tensor.SplittingPoints, error)

type kindBehavior struct {
	isCompute bool
	transpose bool
	shape     ShapeInferFunc
	compute   ComputeFunc
	splitting SplittingInferFunc
}

// behaviors is the capability table the Design Notes call for: a single
// total map from Kind to its four behaviors, replacing virtual dispatch on
// the operator hierarchy.
var behaviors = map[Kind]kindBehavior{
	Conv:       {isCompute: true, shape: inferConvShape, compute: computeConv, splitting: splitCoarsen},
	Matmul:     {isCompute: true, shape: inferMatmulShape, compute: computeMatmul, splitting: splitCoarsenAll},
	Pad:        {shape: inferPadShape, compute: computePad, splitting: splitPad},
	Slice:      {shape: inferSliceShape, compute: computeSlice, splitting: splitSlice},
	Activation: {shape: inferIdentityShape, compute: computeActivation, splitting: splitIdentity},
	MaxPool:    {isCompute: true, shape: inferPoolShape, compute: computeMaxPool, splitting: splitCoarsen},
	AvgPool:    {isCompute: true, shape: inferPoolShape, compute: computeAvgPool, splitting: splitCoarsen},
	Add:        {shape: inferElementwiseShape, compute: computeAdd, splitting: splitUnionAll},
	Mul:        {shape: inferElementwiseShape, compute: computeMul, splitting: splitUnionAll},
	Transpose:  {transpose: true, shape: inferTransposeShape, compute: computeTranspose, splitting: splitTranspose},
	Gather:     {shape: inferGatherShape, compute: computeGather, splitting: splitCoarsen},
	Split:      {shape: inferSplitShape, compute: computeSplit, splitting: splitSplit},
	Concat:     {shape: inferConcatShape, compute: computeConcat, splitting: splitConcat},
	Extend:     {shape: inferExtendShape, compute: computeExtend, splitting: splitCoarsen},
	Reshape:    {shape: inferReshapeShape, compute: computeReshape, splitting: splitReshape},
	Softmax:    {shape: inferIdentityShape, compute: computeSoftmax, splitting: splitCoarsenAxis},
}

func behaviorFor(k Kind) (kindBehavior, bool) {
	b, ok := behaviors[k]
	return b, ok
}

// InferShape dispatches to the operator's shape-inference behavior.
func InferShape(op *Operator, inputShapes []tensor.Shape) ([]tensor.Shape, error) {
	b, ok := behaviorFor(op.Kind)
	if !ok {
		panic("operator: InferShape: unregistered kind")
	}
	return b.shape(op, inputShapes)
}

// Compute dispatches to the operator's reference-compute behavior.
func Compute(op *Operator, inputs [][]int32, inputShapes, outputShapes []tensor.Shape) ([][]int32, error) {
	b, ok := behaviorFor(op.Kind)
	if !ok {
		panic("operator: Compute: unregistered kind")
	}
	return b.compute(op, inputs, inputShapes, outputShapes)
}

// InferSplitting dispatches to the operator's splitting-point behavior.
func InferSplitting(op *Operator, inputSplits []tensor.SplittingPoints, inputShapes, outputShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	b, ok := behaviorFor(op.Kind)
	if !ok {
		panic("operator: InferSplitting: unregistered kind")
	}
	return b.splitting(op, inputSplits, inputShapes, outputShapes)
}
