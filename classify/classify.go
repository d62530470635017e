// Package classify maps a subgraph to a shape-kind tag, the switchboard
// that the candidates and preprocess packages key their per-kind tables on.
package classify

import (
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/subgraph"
)

// Kind tags the shape class of a subgraph.
type Kind int

const (
	Empty Kind = iota
	Conv1x1
	NormalConv
	NormalOddConv
	DilatedConv
	TransKernelConv
	GroupConv
	TransposeGroupConv
	NormalMatmul
	BatchMatmul
	Others
)

func (k Kind) String() string {
	switch k {
	case Empty:
		return "Empty"
	case Conv1x1:
		return "Conv1x1"
	case NormalConv:
		return "NormalConv"
	case NormalOddConv:
		return "NormalOddConv"
	case DilatedConv:
		return "DilatedConv"
	case TransKernelConv:
		return "TransKernelConv"
	case GroupConv:
		return "GroupConv"
	case TransposeGroupConv:
		return "TransposeGroupConv"
	case NormalMatmul:
		return "NormalMatmul"
	case BatchMatmul:
		return "BatchMatmul"
	default:
		return "Others"
	}
}

// Classify maps sg to its shape-kind tag.
func Classify(sg *subgraph.Subgraph) Kind {
	ops := sg.Ops()
	switch len(ops) {
	case 0:
		return Empty
	case 1:
		return classifySingle(sg, &ops[0])
	default:
		return classifyMulti(sg, ops)
	}
}

func classifySingle(sg *subgraph.Subgraph, op *operator.Operator) Kind {
	switch op.Kind {
	case operator.Conv:
		return classifyConv(sg, op)
	case operator.Matmul:
		return NormalMatmul
	default:
		return Others
	}
}

func classifyConv(sg *subgraph.Subgraph, op *operator.Operator) Kind {
	p := op.Params.(operator.ConvParams)
	pool := sg.Pool()
	input := pool.Get(op.Inputs[0])
	weight := pool.Get(op.Inputs[1])
	kh, kw := weight.Shape()[2], weight.Shape()[3]

	if p.DilationH == 1 && p.DilationW == 1 && kh == 1 && kw == 1 {
		return Conv1x1
	}
	if p.DilationH == 2 || p.DilationW == 2 {
		return DilatedConv
	}
	h, w := input.Shape()[2], input.Shape()[3]
	if h%2 == 1 && w%2 == 1 {
		return NormalOddConv
	}
	if kh != kw {
		return TransKernelConv
	}
	return NormalConv
}

func classifyMulti(sg *subgraph.Subgraph, ops []operator.Operator) Kind {
	allConv := true
	allMatmul := true
	for i := range ops {
		if ops[i].Kind != operator.Conv {
			allConv = false
		}
		if ops[i].Kind != operator.Matmul {
			allMatmul = false
		}
	}
	if allConv {
		return classifyConvGroup(sg, ops)
	}
	if allMatmul {
		return classifyMatmulGroup(sg, ops)
	}
	return Others
}

func classifyConvGroup(sg *subgraph.Subgraph, ops []operator.Operator) Kind {
	pool := sg.Pool()
	first := ops[0].Params.(operator.ConvParams)
	firstInputShape := pool.Get(ops[0].Inputs[0]).Shape()

	sameScalarParams := true
	sameInputShape := true
	for i := range ops {
		p := ops[i].Params.(operator.ConvParams)
		if p != first {
			sameScalarParams = false
		}
		if !pool.Get(ops[i].Inputs[0]).Shape().Equal(firstInputShape) {
			sameInputShape = false
		}
	}
	if !sameScalarParams || !sameInputShape {
		return Others
	}

	firstWeight := pool.Get(ops[0].Inputs[1]).Shape()
	cIn, kh, kw := firstWeight[1], firstWeight[2], firstWeight[3]
	if kh != kw {
		return Others
	}
	sameCKShape := true
	allowSwap := true
	for i := range ops {
		w := pool.Get(ops[i].Inputs[1]).Shape()
		if w[1] != cIn || w[2] != kh || w[3] != kw {
			sameCKShape = false
		}
		if !(w[2] == kh && w[3] == kw) && !(w[2] == kw && w[3] == kh) {
			allowSwap = false
		}
	}
	if !sameCKShape {
		if allowSwap {
			return TransposeGroupConv
		}
		return Others
	}
	return GroupConv
}

func classifyMatmulGroup(sg *subgraph.Subgraph, ops []operator.Operator) Kind {
	pool := sg.Pool()
	first := ops[0].Params.(operator.MatmulParams)
	firstLHS := pool.Get(ops[0].Inputs[0]).Shape()
	firstRHS := pool.Get(ops[0].Inputs[1]).Shape()

	for i := range ops {
		p := ops[i].Params.(operator.MatmulParams)
		if p.TransA != first.TransA || p.TransB != first.TransB {
			return Others
		}
		if !pool.Get(ops[i].Inputs[0]).Shape().Equal(firstLHS) {
			return Others
		}
		if !pool.Get(ops[i].Inputs[1]).Shape().Equal(firstRHS) {
			return Others
		}
	}
	return BatchMatmul
}
