package operator

import "github.com/itohio/subgraphopt/tensor"

// clamp keeps only points inside [1, dim-1], the invariant range for a
// dimension of size dim.
func clamp(points []int, dim int) []int {
	out := make([]int, 0, len(points))
	for _, p := range points {
		if p >= 1 && p <= dim-1 {
			out = append(out, p)
		}
	}
	return out
}

func shiftClamp(points []int, delta, dim int) []int {
	out := make([]int, 0, len(points))
	for _, p := range points {
		np := p + delta
		if np >= 1 && np <= dim-1 {
			out = append(out, np)
		}
	}
	return out
}

// splitIdentity propagates points unchanged for a shape-preserving,
// pointwise-nonlinear-free operator (Activation; the exact activation
// curve is discarded since a nonlinearity may still introduce or remove
// discontinuities, but for the verifier's purposes a pointwise op that
// doesn't move elements across positions keeps the same grid).
func splitIdentity(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	sp := in[0].Clone()
	out := tensor.NewSplittingPoints(outShapes[0].Rank())
	for d := range out {
		if d < len(sp) {
			out[d] = clamp(sp[d], outShapes[0][d])
		}
	}
	return []tensor.SplittingPoints{out}, nil
}

// coarsenDim maps a dimension's splitting points through a stride-`stride`
// downsampling from inDim to outDim elements (Conv/Pool "coarsens" points).
func coarsenDim(points []int, inDim, outDim, stride int) []int {
	if stride <= 1 || inDim == outDim {
		return clamp(points, outDim)
	}
	seen := map[int]bool{}
	out := make([]int, 0, len(points))
	for _, p := range points {
		np := p / stride
		if np >= 1 && np <= outDim-1 && !seen[np] {
			seen[np] = true
			out = append(out, np)
		}
	}
	return out
}

func splitCoarsen(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	is, os := inShapes[0], outShapes[0]
	sp := in[0]
	out := tensor.NewSplittingPoints(os.Rank())
	strideH, strideW := 1, 1
	switch op.Kind {
	case Conv:
		p := op.Params.(ConvParams)
		strideH, strideW = p.StrideH, p.StrideW
	case MaxPool, AvgPool:
		p := op.Params.(PoolParams)
		strideH, strideW = p.StrideH, p.StrideW
	}
	for d := range out {
		if d >= len(sp) || d >= is.Rank() {
			continue
		}
		stride := 1
		if d == is.Rank()-2 {
			stride = strideH
		} else if d == is.Rank()-1 {
			stride = strideW
		}
		out[d] = coarsenDim(sp[d], is[d], os[d], stride)
	}
	return []tensor.SplittingPoints{out}, nil
}

// splitCoarsenAll drops all splitting information: Matmul mixes every
// element of a row/column together, so no input discontinuity survives
// into a predictable output position.
func splitCoarsenAll(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	return []tensor.SplittingPoints{tensor.NewSplittingPoints(outShapes[0].Rank())}, nil
}

func splitPad(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(PadParams)
	os := outShapes[0]
	sp := in[0]
	out := tensor.NewSplittingPoints(os.Rank())
	for d := range out {
		var pts []int
		if d < len(sp) {
			pts = sp[d]
		}
		out[d] = shiftClamp(pts, p.Begin[d], os[d])
		if p.Begin[d] >= 1 && p.Begin[d] <= os[d]-1 {
			out[d] = tensor.UnionInts(out[d], []int{p.Begin[d]})
		}
	}
	return []tensor.SplittingPoints{out}, nil
}

func splitSlice(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(SliceParams)
	os := outShapes[0]
	sp := in[0]
	out := tensor.NewSplittingPoints(os.Rank())
	for d := range out {
		var pts []int
		if d < len(sp) {
			pts = sp[d]
		}
		out[d] = shiftClamp(pts, -p.Begin[d], os[d])
	}
	return []tensor.SplittingPoints{out}, nil
}

func splitConcat(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(ConcatParams)
	os := outShapes[0]
	out := tensor.NewSplittingPoints(os.Rank())
	offset := 0
	for ii, is := range inShapes {
		sp := in[ii]
		for d := range out {
			var pts []int
			if d < len(sp) {
				pts = sp[d]
			}
			if d == p.Axis {
				shifted := shiftClamp(pts, offset, os[d])
				out[d] = tensor.UnionInts(out[d], shifted)
			} else if ii == 0 {
				out[d] = clamp(pts, os[d])
			}
		}
		offset += is[p.Axis]
		if offset >= 1 && offset <= os[p.Axis]-1 {
			out[p.Axis] = tensor.UnionInts(out[p.Axis], []int{offset})
		}
	}
	return []tensor.SplittingPoints{out}, nil
}

func splitSplit(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(SplitParams)
	sp := in[0]
	outs := make([]tensor.SplittingPoints, len(outShapes))
	offset := 0
	for oi, os := range outShapes {
		out := tensor.NewSplittingPoints(os.Rank())
		for d := range out {
			var pts []int
			if d < len(sp) {
				pts = sp[d]
			}
			if d == p.Axis {
				out[d] = shiftClamp(pts, -offset, os[d])
			} else {
				out[d] = clamp(pts, os[d])
			}
		}
		outs[oi] = out
		offset += os[p.Axis]
	}
	return outs, nil
}

func splitTranspose(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(TransposeParams)
	if p.SplitFactor != 0 {
		// A preceding axis split has no clean 1:1 dimension mapping back to
		// the un-split input; fall back to the conservative empty grid.
		return []tensor.SplittingPoints{tensor.NewSplittingPoints(outShapes[0].Rank())}, nil
	}
	sp := in[0]
	os := outShapes[0]
	out := tensor.NewSplittingPoints(os.Rank())
	for outAxis, inAxis := range p.Perm {
		if inAxis < len(sp) {
			out[outAxis] = clamp(sp[inAxis], os[outAxis])
		}
	}
	return []tensor.SplittingPoints{out}, nil
}

func splitReshape(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	return []tensor.SplittingPoints{tensor.NewSplittingPoints(outShapes[0].Rank())}, nil
}

func splitUnionAll(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	os := outShapes[0]
	a, b := in[0], in[1]
	out := tensor.NewSplittingPoints(os.Rank())
	for d := range out {
		var ad, bd []int
		if d < len(a) {
			ad = a[d]
		}
		if d < len(b) {
			bd = b[d]
		}
		out[d] = clamp(tensor.UnionInts(ad, bd), os[d])
	}
	return []tensor.SplittingPoints{out}, nil
}

func splitCoarsenAxis(op *Operator, in []tensor.SplittingPoints, inShapes, outShapes []tensor.Shape) ([]tensor.SplittingPoints, error) {
	p := op.Params.(SoftmaxParams)
	sp := in[0]
	os := outShapes[0]
	out := tensor.NewSplittingPoints(os.Rank())
	for d := range out {
		if d == p.Axis {
			continue // softmax mixes every position along this axis
		}
		if d < len(sp) {
			out[d] = clamp(sp[d], os[d])
		}
	}
	return []tensor.SplittingPoints{out}, nil
}
