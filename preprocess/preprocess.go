// Package preprocess builds the deterministic operator/tensor sequences
// that precede DFS proper for shape-kinds whose mutation space only opens
// up after a canonicalizing rewrite. A builder that returns an error may
// leave tensors it already pushed in the subgraph's pool; the search driver
// truncates the pool back to its pre-call live count in that case.
package preprocess

import (
	"fmt"

	"github.com/itohio/subgraphopt/classify"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
)

// Result is what a builder hands back to the search driver: the operator
// list extended with the preprocess steps, and how many of the leading
// entries are "reserved" and don't themselves count as mutants.
type Result struct {
	Ops           []operator.Operator
	NumValid      int
	NumReserveOps int
}

// Builder produces a Result from sg's current state, or an error if the
// canonicalizing rewrite does not apply (e.g. a shape mismatch) — in which
// case the caller truncates sg's pool back to its pre-call live count and
// proceeds straight to DFS over the original op list.
type Builder func(sg *subgraph.Subgraph) (Result, error)

// ForKind returns the preprocess builders for kind, in the order the search
// driver should run them, or nil when that kind has no preprocess step and
// DFS should run directly over sg's current op list. GroupConv and
// TransposeGroupConv each canonicalize two distinct ways — neither
// orientation is a special case of the other — so both run unconditionally
// and the driver unions whatever each pass finds; every other kind has a
// single canonical rewrite.
func ForKind(kind classify.Kind) []Builder {
	switch kind {
	case classify.GroupConv:
		return []Builder{GroupConvGCD, GroupConvMAX}
	case classify.TransposeGroupConv:
		return []Builder{TransposeGroupConvRS, TransposeGroupConvSR}
	case classify.TransKernelConv:
		return []Builder{TransKernelConvBuilder}
	case classify.NormalOddConv:
		return []Builder{PadSliceOddConv}
	case classify.BatchMatmul:
		return []Builder{BatchMatmulBuilder}
	default:
		return nil
	}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func gcdAll(vals []int) int {
	g := vals[0]
	for _, v := range vals[1:] {
		g = gcd(g, v)
	}
	return g
}

// GroupConvGCD fuses a GroupConv's per-branch convolutions into one wider
// convolution: concat inputs on the channel axis, zero-pad each branch's
// weight into its own channel slice of that combined width (block-diagonal
// placement, so a branch's filters never see another branch's channels),
// concat the padded weights on the output-channel axis, run one fused conv,
// and split the result back into per-group outputs using gcd-derived sizes.
func GroupConvGCD(sg *subgraph.Subgraph) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) < 2 {
		return Result{}, fmt.Errorf("preprocess: GroupConvGCD: need >=2 conv ops, got %d", len(ops))
	}

	outChannels := make([]int, len(ops))
	inChannels := make([]int, len(ops))
	totalC := 0
	for i := range ops {
		if ops[i].Kind != operator.Conv {
			return Result{}, fmt.Errorf("preprocess: GroupConvGCD: operator %d is not Conv", i)
		}
		outChannels[i] = pool.Get(ops[i].Outputs[0]).Shape()[1]
		inChannels[i] = pool.Get(ops[i].Inputs[0]).Shape()[1]
		totalC += inChannels[i]
	}
	g := gcdAll(outChannels)

	newOps := append([]operator.Operator(nil), ops...)
	numValid := pool.NumValid()

	inputIdx := make([]int, len(ops))
	weightIdx := make([]int, len(ops))
	offset := 0
	for i := range ops {
		inputIdx[i] = ops[i].Inputs[0]
		padOut, padOp, err := padWeightBlock(pool, &numValid, ops[i].Inputs[1], offset, totalC, 0, 0)
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: GroupConvGCD: weight channel-block pad: %w", err)
		}
		newOps = append(newOps, padOp)
		weightIdx[i] = padOut
		offset += inChannels[i]
	}

	concatIn := pushConcat(pool, &numValid, inputIdx, 1)
	concatWeight := pushConcat(pool, &numValid, weightIdx, 0)

	newOps = append(newOps,
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), inputIdx...), Outputs: []int{concatIn}, Params: operator.ConcatParams{Axis: 1}},
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), weightIdx...), Outputs: []int{concatWeight}, Params: operator.ConcatParams{Axis: 0}},
	)

	fusedParams := ops[0].Params.(operator.ConvParams)
	fusedShape, err := operator.InferShape(&operator.Operator{Kind: operator.Conv, Params: fusedParams}, []tensor.Shape{pool.Get(concatIn).Shape(), pool.Get(concatWeight).Shape()})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: GroupConvGCD: fused conv shape inference: %w", err)
	}
	fusedOut := pool.Push(fusedShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Conv, Inputs: []int{concatIn, concatWeight}, Outputs: []int{fusedOut}, Params: fusedParams})

	total := fusedShape[0][1]
	sizes := make([]int, total/g)
	for i := range sizes {
		sizes[i] = g
	}
	splitOutputs := make([]int, len(sizes))
	splitShape := fusedShape[0].Clone()
	for i := range sizes {
		splitShape[1] = sizes[i]
		splitOutputs[i] = pool.Push(splitShape.Clone(), tensor.Int32, tensor.Intermediate)
	}
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Split, Inputs: []int{fusedOut}, Outputs: splitOutputs, Params: operator.SplitParams{Axis: 1, Sizes: sizes}})

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// GroupConvMAX fuses a GroupConv's per-branch convolutions the other way
// GroupConvGCD does: each branch's weight is zero-padded both into its own
// channel slice of the combined input width (the same block-diagonal
// placement GCD uses) and, on the output-channel axis, up to the widest
// branch's filter count. Inputs concat as-is on the channel axis, padded
// weights concat on the output-channel axis, one fused conv runs, then the
// result splits back — branches narrower than the widest one get an extra
// split segment carrying the zero-padded slack, pushed with Role NotCounted
// so it is excluded from output matching.
func GroupConvMAX(sg *subgraph.Subgraph) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) < 2 {
		return Result{}, fmt.Errorf("preprocess: GroupConvMAX: need >=2 conv ops, got %d", len(ops))
	}

	outChannels := make([]int, len(ops))
	inChannels := make([]int, len(ops))
	fmax := 0
	totalC := 0
	for i := range ops {
		if ops[i].Kind != operator.Conv {
			return Result{}, fmt.Errorf("preprocess: GroupConvMAX: operator %d is not Conv", i)
		}
		outChannels[i] = pool.Get(ops[i].Outputs[0]).Shape()[1]
		inChannels[i] = pool.Get(ops[i].Inputs[0]).Shape()[1]
		totalC += inChannels[i]
		if outChannels[i] > fmax {
			fmax = outChannels[i]
		}
	}

	newOps := append([]operator.Operator(nil), ops...)
	numValid := pool.NumValid()

	inputIdx := make([]int, len(ops))
	weightIdx := make([]int, len(ops))
	offset := 0
	for i := range ops {
		inputIdx[i] = ops[i].Inputs[0]
		padOut, padOp, err := padWeightBlock(pool, &numValid, ops[i].Inputs[1], offset, totalC, 0, fmax-outChannels[i])
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: GroupConvMAX: weight pad shape: %w", err)
		}
		newOps = append(newOps, padOp)
		weightIdx[i] = padOut
		offset += inChannels[i]
	}

	concatIn := pushConcat(pool, &numValid, inputIdx, 1)
	concatWeight := pushConcat(pool, &numValid, weightIdx, 0)
	newOps = append(newOps,
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), inputIdx...), Outputs: []int{concatIn}, Params: operator.ConcatParams{Axis: 1}},
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), weightIdx...), Outputs: []int{concatWeight}, Params: operator.ConcatParams{Axis: 0}},
	)

	fusedParams := ops[0].Params.(operator.ConvParams)
	fusedShape, err := operator.InferShape(&operator.Operator{Kind: operator.Conv, Params: fusedParams}, []tensor.Shape{pool.Get(concatIn).Shape(), pool.Get(concatWeight).Shape()})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: GroupConvMAX: fused conv shape: %w", err)
	}
	fusedOut := pool.Push(fusedShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Conv, Inputs: []int{concatIn, concatWeight}, Outputs: []int{fusedOut}, Params: fusedParams})

	sizes := make([]int, 0, len(ops)+1)
	roles := make([]tensor.Role, 0, len(ops)+1)
	for _, c := range outChannels {
		sizes = append(sizes, c)
		roles = append(roles, tensor.Intermediate)
		if c < fmax {
			sizes = append(sizes, fmax-c)
			roles = append(roles, tensor.NotCounted)
		}
	}
	splitOutputs := make([]int, len(sizes))
	splitShape := fusedShape[0].Clone()
	for i, s := range sizes {
		splitShape[1] = s
		splitOutputs[i] = pool.Push(splitShape.Clone(), tensor.Int32, roles[i])
	}
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Split, Inputs: []int{fusedOut}, Outputs: splitOutputs, Params: operator.SplitParams{Axis: 1, Sizes: sizes}})

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// TransposeGroupConvRS handles the group-conv variant whose branches may
// disagree on kernel orientation: branches with a non-square kernel get
// input and weight transposed (swap the last two axes) to bring every
// branch to the same orientation, then concat, one fused conv, split, and
// un-transpose the branches that were transposed going in. TransposeGroupConvSR
// canonicalizes the opposite way, transposing the branches RS leaves alone.
func TransposeGroupConvRS(sg *subgraph.Subgraph) (Result, error) {
	return transposeGroupConvBuilder(sg, "TransposeGroupConvRS", func(wShape tensor.Shape) bool {
		return wShape[2] != wShape[3]
	})
}

// TransposeGroupConvSR is TransposeGroupConvRS's dual: it transposes exactly
// the branches RS considers already canonical, exploring the other
// orientation convention instead of being a shape-routed special case of RS.
func TransposeGroupConvSR(sg *subgraph.Subgraph) (Result, error) {
	return transposeGroupConvBuilder(sg, "TransposeGroupConvSR", func(wShape tensor.Shape) bool {
		return wShape[2] == wShape[3]
	})
}

func transposeGroupConvBuilder(sg *subgraph.Subgraph, name string, needsTranspose func(wShape tensor.Shape) bool) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) < 2 {
		return Result{}, fmt.Errorf("preprocess: %s: need >=2 conv ops, got %d", name, len(ops))
	}

	newOps := append([]operator.Operator(nil), ops...)
	numValid := pool.NumValid()
	perm := []int{0, 1, 3, 2}

	transposedInputs := make([]int, len(ops))
	transposedWeights := make([]int, len(ops))
	transposed := make([]bool, len(ops))
	for i := range ops {
		if ops[i].Kind != operator.Conv {
			return Result{}, fmt.Errorf("preprocess: %s: operator %d is not Conv", name, i)
		}
		wShape := pool.Get(ops[i].Inputs[1]).Shape()
		if !needsTranspose(wShape) {
			transposedWeights[i] = ops[i].Inputs[1]
			transposedInputs[i] = ops[i].Inputs[0]
			continue
		}
		inShape := pool.Get(ops[i].Inputs[0]).Shape()
		tInShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{inShape})
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: %s: input transpose shape: %w", name, err)
		}
		tWShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{wShape})
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: %s: weight transpose shape: %w", name, err)
		}
		tIn := pool.Push(tInShape[0], tensor.Int32, tensor.Intermediate)
		numValid = pool.NumValid()
		tW := pool.Push(tWShape[0], tensor.Int32, tensor.Intermediate)
		numValid = pool.NumValid()
		newOps = append(newOps,
			operator.Operator{Kind: operator.Transpose, Inputs: []int{ops[i].Inputs[0]}, Outputs: []int{tIn}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}},
			operator.Operator{Kind: operator.Transpose, Inputs: []int{ops[i].Inputs[1]}, Outputs: []int{tW}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}},
		)
		transposedInputs[i] = tIn
		transposedWeights[i] = tW
		transposed[i] = true
	}

	totalC := 0
	channels := make([]int, len(ops))
	for i := range ops {
		channels[i] = pool.Get(transposedInputs[i]).Shape()[1]
		totalC += channels[i]
	}
	paddedWeights := make([]int, len(ops))
	offset := 0
	for i := range ops {
		padOut, padOp, err := padWeightBlock(pool, &numValid, transposedWeights[i], offset, totalC, 0, 0)
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: %s: weight channel-block pad: %w", name, err)
		}
		newOps = append(newOps, padOp)
		paddedWeights[i] = padOut
		offset += channels[i]
	}

	concatIn := pushConcat(pool, &numValid, transposedInputs, 1)
	concatWeight := pushConcat(pool, &numValid, paddedWeights, 0)
	newOps = append(newOps,
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), transposedInputs...), Outputs: []int{concatIn}, Params: operator.ConcatParams{Axis: 1}},
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), paddedWeights...), Outputs: []int{concatWeight}, Params: operator.ConcatParams{Axis: 0}},
	)

	fusedParams := ops[0].Params.(operator.ConvParams)
	fusedShape, err := operator.InferShape(&operator.Operator{Kind: operator.Conv, Params: fusedParams}, []tensor.Shape{pool.Get(concatIn).Shape(), pool.Get(concatWeight).Shape()})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: %s: fused conv shape: %w", name, err)
	}
	fusedOut := pool.Push(fusedShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Conv, Inputs: []int{concatIn, concatWeight}, Outputs: []int{fusedOut}, Params: fusedParams})

	outChannels := make([]int, len(ops))
	for i := range ops {
		outChannels[i] = pool.Get(ops[i].Outputs[0]).Shape()[1]
	}
	splitOutputs := make([]int, len(outChannels))
	splitShape := fusedShape[0].Clone()
	for i, c := range outChannels {
		splitShape[1] = c
		splitOutputs[i] = pool.Push(splitShape.Clone(), tensor.Int32, tensor.Intermediate)
	}
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Split, Inputs: []int{fusedOut}, Outputs: splitOutputs, Params: operator.SplitParams{Axis: 1, Sizes: outChannels}})

	for i, branchOut := range splitOutputs {
		if !transposed[i] {
			continue
		}
		branchShape := pool.Get(branchOut).Shape()
		backShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{branchShape})
		if err != nil {
			return Result{}, fmt.Errorf("preprocess: %s: output transpose shape: %w", name, err)
		}
		backOut := pool.Push(backShape[0], tensor.Int32, tensor.Intermediate)
		numValid = pool.NumValid()
		newOps = append(newOps, operator.Operator{Kind: operator.Transpose, Inputs: []int{branchOut}, Outputs: []int{backOut}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}})
	}

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// TransKernelConvBuilder transposes both operands (swap last two dims),
// runs the conv, transposes the output back.
func TransKernelConvBuilder(sg *subgraph.Subgraph) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) != 1 || ops[0].Kind != operator.Conv {
		return Result{}, fmt.Errorf("preprocess: TransKernelConvBuilder: expected single Conv op")
	}
	op := ops[0]
	perm := []int{0, 1, 3, 2}

	inShape := pool.Get(op.Inputs[0]).Shape()
	wShape := pool.Get(op.Inputs[1]).Shape()

	tInShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{inShape})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: TransKernelConvBuilder: input transpose: %w", err)
	}
	tWShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{wShape})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: TransKernelConvBuilder: weight transpose: %w", err)
	}

	numValid := pool.NumValid()
	tIn := pool.Push(tInShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	tW := pool.Push(tWShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()

	newOps := append([]operator.Operator(nil), ops...)
	newOps = append(newOps,
		operator.Operator{Kind: operator.Transpose, Inputs: []int{op.Inputs[0]}, Outputs: []int{tIn}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}},
		operator.Operator{Kind: operator.Transpose, Inputs: []int{op.Inputs[1]}, Outputs: []int{tW}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}},
	)

	convParams := op.Params.(operator.ConvParams)
	convShape, err := operator.InferShape(&operator.Operator{Kind: operator.Conv, Params: convParams}, []tensor.Shape{tInShape[0], tWShape[0]})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: TransKernelConvBuilder: conv shape: %w", err)
	}
	convOut := pool.Push(convShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Conv, Inputs: []int{tIn, tW}, Outputs: []int{convOut}, Params: convParams})

	outBackShape, err := operator.InferShape(&operator.Operator{Kind: operator.Transpose, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}}, []tensor.Shape{convShape[0]})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: TransKernelConvBuilder: output transpose: %w", err)
	}
	outBack := pool.Push(outBackShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Transpose, Inputs: []int{convOut}, Outputs: []int{outBack}, Params: operator.TransposeParams{Perm: perm, SplitAxis: -1}})

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// PadSliceOddConv runs pad -> conv -> slice: the input's spatial dims are
// padded by one at the back (odd sizes become even), the conv runs on the
// padded input, and the slice cuts its output back to the original conv's
// output shape.
func PadSliceOddConv(sg *subgraph.Subgraph) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) != 1 || ops[0].Kind != operator.Conv {
		return Result{}, fmt.Errorf("preprocess: PadSliceOddConv: expected single Conv op")
	}
	op := ops[0]
	inShape := pool.Get(op.Inputs[0]).Shape()
	rank := inShape.Rank()

	begin := make([]int, rank)
	end := make([]int, rank)
	end[rank-2] = 1
	end[rank-1] = 1

	padShape, err := operator.InferShape(&operator.Operator{Kind: operator.Pad, Params: operator.PadParams{Begin: begin, End: end}}, []tensor.Shape{inShape})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: PadSliceOddConv: pad shape: %w", err)
	}
	padOut := pool.Push(padShape[0], tensor.Int32, tensor.Intermediate)
	numValid := pool.NumValid()

	newOps := append([]operator.Operator(nil), ops...)
	newOps = append(newOps, operator.Operator{Kind: operator.Pad, Inputs: []int{op.Inputs[0]}, Outputs: []int{padOut}, Params: operator.PadParams{Begin: begin, End: end}})

	convParams := op.Params.(operator.ConvParams)
	convShape, err := operator.InferShape(&operator.Operator{Kind: operator.Conv, Params: convParams}, []tensor.Shape{padShape[0], pool.Get(op.Inputs[1]).Shape()})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: PadSliceOddConv: conv shape: %w", err)
	}
	convOut := pool.Push(convShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Conv, Inputs: []int{padOut, op.Inputs[1]}, Outputs: []int{convOut}, Params: convParams})

	sliceBegin := make([]int, rank)
	sliceEnd := append([]int(nil), pool.Get(op.Outputs[0]).Shape()...)
	sliceShape, err := operator.InferShape(&operator.Operator{Kind: operator.Slice, Params: operator.SliceParams{Begin: sliceBegin, End: sliceEnd}}, []tensor.Shape{convShape[0]})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: PadSliceOddConv: slice shape: %w", err)
	}
	sliceOut := pool.Push(sliceShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Slice, Inputs: []int{convOut}, Outputs: []int{sliceOut}, Params: operator.SliceParams{Begin: sliceBegin, End: sliceEnd}})

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// BatchMatmulBuilder concats lhs and rhs on the batch axis, runs one
// matmul, splits the output back per-branch.
func BatchMatmulBuilder(sg *subgraph.Subgraph) (Result, error) {
	ops := sg.Ops()
	pool := sg.Pool()
	if len(ops) < 2 {
		return Result{}, fmt.Errorf("preprocess: BatchMatmulBuilder: need >=2 matmul ops, got %d", len(ops))
	}

	lhsIdx := make([]int, len(ops))
	rhsIdx := make([]int, len(ops))
	for i := range ops {
		if ops[i].Kind != operator.Matmul {
			return Result{}, fmt.Errorf("preprocess: BatchMatmulBuilder: operator %d is not Matmul", i)
		}
		lhsIdx[i] = ops[i].Inputs[0]
		rhsIdx[i] = ops[i].Inputs[1]
	}

	numValid := pool.NumValid()
	concatLHS := pushConcat(pool, &numValid, lhsIdx, 0)
	concatRHS := pushConcat(pool, &numValid, rhsIdx, 0)

	newOps := append([]operator.Operator(nil), ops...)
	newOps = append(newOps,
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), lhsIdx...), Outputs: []int{concatLHS}, Params: operator.ConcatParams{Axis: 0}},
		operator.Operator{Kind: operator.Concat, Inputs: append([]int(nil), rhsIdx...), Outputs: []int{concatRHS}, Params: operator.ConcatParams{Axis: 0}},
	)

	matParams := ops[0].Params.(operator.MatmulParams)
	matShape, err := operator.InferShape(&operator.Operator{Kind: operator.Matmul, Params: matParams}, []tensor.Shape{pool.Get(concatLHS).Shape(), pool.Get(concatRHS).Shape()})
	if err != nil {
		return Result{}, fmt.Errorf("preprocess: BatchMatmulBuilder: fused matmul shape: %w", err)
	}
	fusedOut := pool.Push(matShape[0], tensor.Int32, tensor.Intermediate)
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Matmul, Inputs: []int{concatLHS, concatRHS}, Outputs: []int{fusedOut}, Params: matParams})

	branchRows := make([]int, len(ops))
	for i := range ops {
		outShape := pool.Get(ops[i].Outputs[0]).Shape()
		branchRows[i] = outShape[outShape.Rank()-2]
	}
	splitOutputs := make([]int, len(ops))
	splitShape := matShape[0].Clone()
	batchAxis := matShape[0].Rank() - 2
	for i, r := range branchRows {
		splitShape[batchAxis] = r
		splitOutputs[i] = pool.Push(splitShape.Clone(), tensor.Int32, tensor.Intermediate)
	}
	numValid = pool.NumValid()
	newOps = append(newOps, operator.Operator{Kind: operator.Split, Inputs: []int{fusedOut}, Outputs: splitOutputs, Params: operator.SplitParams{Axis: batchAxis, Sizes: branchRows}})

	return Result{Ops: newOps, NumValid: numValid, NumReserveOps: len(newOps)}, nil
}

// padWeightBlock zero-pads w's input-channel axis (axis 1) so it occupies
// [offset, offset+wc) within a channel range of width totalC, the
// block-diagonal placement a fused group conv needs so each branch's
// filters only ever multiply against that branch's own input channels.
// extraBeginF/extraEndF additionally pad axis 0 (the filter axis), for
// callers that also need to equalize branch output-channel counts.
func padWeightBlock(pool *tensor.Pool, numValid *int, w int, offset, totalC, extraBeginF, extraEndF int) (int, operator.Operator, error) {
	wShape := pool.Get(w).Shape()
	begin := make([]int, wShape.Rank())
	end := make([]int, wShape.Rank())
	begin[0] = extraBeginF
	end[0] = extraEndF
	begin[1] = offset
	end[1] = totalC - offset - wShape[1]
	padShape, err := operator.InferShape(&operator.Operator{Kind: operator.Pad, Params: operator.PadParams{Begin: begin, End: end}}, []tensor.Shape{wShape})
	if err != nil {
		return 0, operator.Operator{}, err
	}
	padOut := pool.Push(padShape[0], tensor.Int32, tensor.Intermediate)
	*numValid = pool.NumValid()
	op := operator.Operator{Kind: operator.Pad, Inputs: []int{w}, Outputs: []int{padOut}, Params: operator.PadParams{Begin: begin, End: end}}
	return padOut, op, nil
}

func pushConcat(pool *tensor.Pool, numValid *int, sources []int, axis int) int {
	base := pool.Get(sources[0]).Shape().Clone()
	total := 0
	for _, s := range sources {
		total += pool.Get(s).Shape()[axis]
	}
	base[axis] = total
	idx := pool.Push(base, tensor.Int32, tensor.Intermediate)
	*numValid = pool.NumValid()
	return idx
}
