package subgraph

import (
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
)

// Compute lazily back-executes just enough of the graph to obtain the
// scalar value at position of output tensor outputIdx. Input/Weight
// tensors must already be filled by the caller; an unfilled Input/Weight
// tensor is a sampling collision and causes Compute to report ok=false.
func (sg *Subgraph) Compute(outputIdx int, position []int) (value int32, ok bool) {
	if !sg.ensureComputed(outputIdx) {
		return 0, false
	}
	t := sg.pool.Get(outputIdx)
	v, err := t.At(position)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (sg *Subgraph) ensureComputed(idx int) bool {
	t := sg.pool.Get(idx)
	if t.Filled() {
		return true
	}
	opIdx, ok := sg.producerOp[idx]
	if !ok {
		return false
	}
	op := &sg.ops[opIdx]

	inputShapes := make([]tensor.Shape, len(op.Inputs))
	inputData := make([][]int32, len(op.Inputs))
	for i, in := range op.Inputs {
		if !sg.ensureComputed(in) {
			return false
		}
		it := sg.pool.Get(in)
		inputShapes[i] = it.Shape()
		inputData[i] = it.Raw()
	}

	outputShapes := make([]tensor.Shape, len(op.Outputs))
	for i, out := range op.Outputs {
		outputShapes[i] = sg.pool.Get(out).Shape()
	}

	results, err := operator.Compute(op, inputData, inputShapes, outputShapes)
	if err != nil {
		return false
	}
	for i, out := range op.Outputs {
		sg.pool.Get(out).FillRaw(results[i])
	}
	return true
}
