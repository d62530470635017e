package operator

import (
	"fmt"

	"github.com/itohio/subgraphopt/tensor"
)

func convOutDim(in, pad, dilation, kernel, stride int) int {
	effKernel := dilation*(kernel-1) + 1
	return (in+2*pad-effKernel)/stride + 1
}

func inferConvShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("operator: Conv: expected input+weight, got %d inputs", len(in))
	}
	input, weight := in[0], in[1]
	if input.Rank() != 4 || weight.Rank() != 4 {
		return nil, fmt.Errorf("operator: Conv: input and weight must be rank 4, got %dD/%dD", input.Rank(), weight.Rank())
	}
	n, c, h, w := input[0], input[1], input[2], input[3]
	f, wc, kh, kw := weight[0], weight[1], weight[2], weight[3]
	if c != wc {
		return nil, fmt.Errorf("operator: Conv: input channels %d != weight channels %d", c, wc)
	}
	p := op.Params.(ConvParams)
	outH := convOutDim(h, p.PadH, p.DilationH, kh, p.StrideH)
	outW := convOutDim(w, p.PadW, p.DilationW, kw, p.StrideW)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("operator: Conv: non-positive output spatial size (%d,%d)", outH, outW)
	}
	return []tensor.Shape{tensor.NewShape(n, f, outH, outW)}, nil
}

func inferMatmulShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) < 2 {
		return nil, fmt.Errorf("operator: Matmul: expected lhs+rhs, got %d inputs", len(in))
	}
	lhs, rhs := in[0], in[1]
	if lhs.Rank() < 2 || rhs.Rank() < 2 {
		return nil, fmt.Errorf("operator: Matmul: operands must be rank >= 2")
	}
	p := op.Params.(MatmulParams)
	lr, lc := lhs[lhs.Rank()-2], lhs[lhs.Rank()-1]
	rr, rc := rhs[rhs.Rank()-2], rhs[rhs.Rank()-1]
	if p.TransA {
		lr, lc = lc, lr
	}
	if p.TransB {
		rr, rc = rc, rr
	}
	if lc != rr {
		return nil, fmt.Errorf("operator: Matmul: inner dims mismatch %d != %d", lc, rr)
	}
	batch := lhs[:lhs.Rank()-2]
	out := append(tensor.Shape{}, batch...)
	out = append(out, lr, rc)
	return []tensor.Shape{out}, nil
}

func inferPadShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Pad: expected 1 input, got %d", len(in))
	}
	p := op.Params.(PadParams)
	s := in[0]
	if len(p.Begin) != s.Rank() || len(p.End) != s.Rank() {
		return nil, fmt.Errorf("operator: Pad: begin/end rank mismatch for shape %v", s)
	}
	out := make(tensor.Shape, s.Rank())
	for d := range s {
		out[d] = s[d] + p.Begin[d] + p.End[d]
		if out[d] <= 0 {
			return nil, fmt.Errorf("operator: Pad: non-positive output dim %d at axis %d", out[d], d)
		}
	}
	return []tensor.Shape{out}, nil
}

func inferSliceShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Slice: expected 1 input, got %d", len(in))
	}
	p := op.Params.(SliceParams)
	s := in[0]
	if len(p.Begin) != s.Rank() || len(p.End) != s.Rank() {
		return nil, fmt.Errorf("operator: Slice: begin/end rank mismatch for shape %v", s)
	}
	out := make(tensor.Shape, s.Rank())
	for d := range s {
		if p.Begin[d] < 0 || p.End[d] > s[d] || p.Begin[d] >= p.End[d] {
			return nil, fmt.Errorf("operator: Slice: invalid bounds [%d,%d) for dim %d size %d", p.Begin[d], p.End[d], d, s[d])
		}
		out[d] = p.End[d] - p.Begin[d]
	}
	return []tensor.Shape{out}, nil
}

func inferIdentityShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: %v: expected 1 input, got %d", op.Kind, len(in))
	}
	return []tensor.Shape{in[0].Clone()}, nil
}

func inferPoolShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: %v: expected 1 input, got %d", op.Kind, len(in))
	}
	s := in[0]
	if s.Rank() != 4 {
		return nil, fmt.Errorf("operator: %v: input must be rank 4, got %dD", op.Kind, s.Rank())
	}
	p := op.Params.(PoolParams)
	outH := convOutDim(s[2], p.PadH, p.DilationH, p.KernelH, p.StrideH)
	outW := convOutDim(s[3], p.PadW, p.DilationW, p.KernelW, p.StrideW)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("operator: %v: non-positive output spatial size (%d,%d)", op.Kind, outH, outW)
	}
	return []tensor.Shape{tensor.NewShape(s[0], s[1], outH, outW)}, nil
}

func inferElementwiseShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("operator: %v: expected 2 inputs, got %d", op.Kind, len(in))
	}
	if !in[0].Equal(in[1]) {
		return nil, fmt.Errorf("operator: %v: shape mismatch %v vs %v", op.Kind, in[0], in[1])
	}
	return []tensor.Shape{in[0].Clone()}, nil
}

func inferTransposeShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Transpose: expected 1 input, got %d", len(in))
	}
	p := op.Params.(TransposeParams)
	expanded, err := expandForSplit(in[0], p)
	if err != nil {
		return nil, err
	}
	if len(p.Perm) != len(expanded) {
		return nil, fmt.Errorf("operator: Transpose: perm length %d != axis count %d", len(p.Perm), len(expanded))
	}
	seen := make([]bool, len(expanded))
	out := make(tensor.Shape, len(expanded))
	for i, axis := range p.Perm {
		if axis < 0 || axis >= len(expanded) || seen[axis] {
			return nil, fmt.Errorf("operator: Transpose: invalid permutation %v", p.Perm)
		}
		seen[axis] = true
		out[i] = expanded[axis]
	}
	return []tensor.Shape{out}, nil
}

// expandForSplit applies the optional axis split (one axis -> two axes of
// size SplitFactor and size/SplitFactor) before permutation, so Transpose
// can express nested split/merge forms like N2H.
func expandForSplit(s tensor.Shape, p TransposeParams) (tensor.Shape, error) {
	if p.SplitFactor == 0 {
		return s.Clone(), nil
	}
	if p.SplitAxis < 0 || p.SplitAxis >= s.Rank() {
		return nil, fmt.Errorf("operator: Transpose: split axis %d out of range for shape %v", p.SplitAxis, s)
	}
	dim := s[p.SplitAxis]
	if dim%p.SplitFactor != 0 {
		return nil, fmt.Errorf("operator: Transpose: split factor %d does not divide dim %d", p.SplitFactor, dim)
	}
	out := make(tensor.Shape, 0, s.Rank()+1)
	for d, v := range s {
		if d == p.SplitAxis {
			out = append(out, p.SplitFactor, v/p.SplitFactor)
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func inferGatherShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("operator: Gather: expected data+indices, got %d inputs", len(in))
	}
	data, idx := in[0], in[1]
	if idx.Rank() != 1 {
		return nil, fmt.Errorf("operator: Gather: indices must be rank 1, got %dD", idx.Rank())
	}
	p := op.Params.(GatherParams)
	if p.Axis < 0 || p.Axis >= data.Rank() {
		return nil, fmt.Errorf("operator: Gather: axis %d out of range for shape %v", p.Axis, data)
	}
	out := data.Clone()
	out[p.Axis] = idx[0]
	return []tensor.Shape{out}, nil
}

func inferSplitShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Split: expected 1 input, got %d", len(in))
	}
	s := in[0]
	p := op.Params.(SplitParams)
	if p.Axis < 0 || p.Axis >= s.Rank() {
		return nil, fmt.Errorf("operator: Split: axis %d out of range for shape %v", p.Axis, s)
	}
	total := 0
	for _, sz := range p.Sizes {
		total += sz
	}
	if total != s[p.Axis] {
		return nil, fmt.Errorf("operator: Split: sizes %v sum to %d, axis %d has size %d", p.Sizes, total, p.Axis, s[p.Axis])
	}
	outs := make([]tensor.Shape, len(p.Sizes))
	for i, sz := range p.Sizes {
		out := s.Clone()
		out[p.Axis] = sz
		outs[i] = out
	}
	return outs, nil
}

func inferConcatShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("operator: Concat: no inputs")
	}
	p := op.Params.(ConcatParams)
	if p.Axis < 0 || p.Axis >= in[0].Rank() {
		return nil, fmt.Errorf("operator: Concat: axis %d out of range for shape %v", p.Axis, in[0])
	}
	out := in[0].Clone()
	sum := 0
	for i, s := range in {
		if s.Rank() != in[0].Rank() {
			return nil, fmt.Errorf("operator: Concat: rank mismatch at input %d", i)
		}
		for d := range s {
			if d == p.Axis {
				continue
			}
			if s[d] != in[0][d] {
				return nil, fmt.Errorf("operator: Concat: shape mismatch at input %d, axis %d", i, d)
			}
		}
		sum += s[p.Axis]
	}
	out[p.Axis] = sum
	return []tensor.Shape{out}, nil
}

func inferExtendShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Extend: expected 1 input, got %d", len(in))
	}
	p := op.Params.(ExtendParams)
	s := in[0]
	if p.Axis < 0 || p.Axis >= s.Rank() {
		return nil, fmt.Errorf("operator: Extend: axis %d out of range for shape %v", p.Axis, s)
	}
	if p.Count <= 0 {
		return nil, fmt.Errorf("operator: Extend: count must be positive, got %d", p.Count)
	}
	out := s.Clone()
	out[p.Axis] = s[p.Axis] * p.Count
	return []tensor.Shape{out}, nil
}

func inferReshapeShape(op *Operator, in []tensor.Shape) ([]tensor.Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("operator: Reshape: expected 1 input, got %d", len(in))
	}
	p := op.Params.(ReshapeParams)
	out := tensor.Shape(p.Shape).Clone()
	if out.Size() != in[0].Size() {
		return nil, fmt.Errorf("operator: Reshape: target size %d != input size %d", out.Size(), in[0].Size())
	}
	return []tensor.Shape{out}, nil
}
