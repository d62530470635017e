package operator

import (
	"github.com/itohio/subgraphopt/tensor"
)

// strides returns row-major strides for a shape, used by the flat-buffer
// reference implementations below.
func strides(s tensor.Shape) []int {
	return s.Strides()
}

func flatIndex(strd []int, idx []int) int {
	off := 0
	for i, v := range idx {
		off += v * strd[i]
	}
	return off
}

func unflat(s tensor.Shape, flat int) []int {
	idx := make([]int, len(s))
	for d := len(s) - 1; d >= 0; d-- {
		idx[d] = flat % s[d]
		flat /= s[d]
	}
	return idx
}

func applyActivation(v int32, a ActivationKind) int32 {
	switch a {
	case Relu:
		if v < 0 {
			return 0
		}
		return v
	case Sigmoid:
		// Deterministic monotone integer approximation; exact curve shape
		// doesn't matter for equivalence checking, only that it is a
		// stable, pure function of v.
		return v / (1 + abs32(v)/64)
	default:
		return v
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func computeConv(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(ConvParams)
	input, weight := in[0], in[1]
	is, ws := inShapes[0], inShapes[1]
	os := outShapes[0]
	n, c, h, w := is[0], is[1], is[2], is[3]
	f, _, kh, kw := ws[0], ws[1], ws[2], ws[3]
	outH, outW := os[2], os[3]
	out := make([]int32, os.Size())

	var bias []int32
	if p.HasBias && len(in) > 2 {
		bias = in[2]
	}

	for ni := 0; ni < n; ni++ {
		for fi := 0; fi < f; fi++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					var acc int32
					for ci := 0; ci < c; ci++ {
						for khi := 0; khi < kh; khi++ {
							ih := oh*p.StrideH - p.PadH + khi*p.DilationH
							if ih < 0 || ih >= h {
								continue
							}
							for kwi := 0; kwi < kw; kwi++ {
								iw := ow*p.StrideW - p.PadW + kwi*p.DilationW
								if iw < 0 || iw >= w {
									continue
								}
								ival := input[((ni*c+ci)*h+ih)*w+iw]
								wval := weight[((fi*c+ci)*kh+khi)*kw+kwi]
								acc += ival * wval
							}
						}
					}
					if bias != nil {
						acc += bias[fi]
					}
					acc = applyActivation(acc, p.Activation)
					out[((ni*f+fi)*outH+oh)*outW+ow] = acc
				}
			}
		}
	}
	return [][]int32{out}, nil
}

func matmul2D(lhs, rhs []int32, m, k, n int, transA, transB bool, lr0, lc0, rr0, rc0 int) []int32 {
	out := make([]int32, m*n)
	lhsAt := func(i, j int) int32 {
		if transA {
			return lhs[j*lc0+i]
		}
		return lhs[i*lc0+j]
	}
	rhsAt := func(i, j int) int32 {
		if transB {
			return rhs[j*rc0+i]
		}
		return rhs[i*rc0+j]
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc int32
			for kk := 0; kk < k; kk++ {
				acc += lhsAt(i, kk) * rhsAt(kk, j)
			}
			out[i*n+j] = acc
		}
	}
	return out
}

func computeMatmul(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(MatmulParams)
	lhs, rhs := in[0], in[1]
	ls, rs := inShapes[0], inShapes[1]
	os := outShapes[0]

	lr, lc := ls[ls.Rank()-2], ls[ls.Rank()-1]
	rr, rc := rs[rs.Rank()-2], rs[rs.Rank()-1]
	m, k := lr, lc
	if p.TransA {
		m, k = lc, lr
	}
	n := rc
	if p.TransB {
		n = rr
	}

	batch := 1
	for _, d := range os[:os.Rank()-2] {
		batch *= d
	}
	lhsStride := lr * lc
	rhsStride := rr * rc
	outStride := m * n
	out := make([]int32, os.Size())
	var bias []int32
	if p.HasBias && len(in) > 2 {
		bias = in[2]
	}
	for b := 0; b < batch; b++ {
		res := matmul2D(lhs[b*lhsStride:(b+1)*lhsStride], rhs[b*rhsStride:(b+1)*rhsStride], m, k, n, p.TransA, p.TransB, lr, lc, rr, rc)
		for i, v := range res {
			if bias != nil {
				v += bias[i%n]
			}
			out[b*outStride+i] = applyActivation(v, p.Activation)
		}
	}
	return [][]int32{out}, nil
}

func computePad(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(PadParams)
	is, os := inShapes[0], outShapes[0]
	ostrd := strides(os)
	istrd := strides(is)
	out := make([]int32, os.Size())
	for flat := 0; flat < is.Size(); flat++ {
		idx := unflat(is, flat)
		oidx := make([]int, len(idx))
		for d := range idx {
			oidx[d] = idx[d] + p.Begin[d]
		}
		out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, idx)]
	}
	return [][]int32{out}, nil
}

func computeSlice(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(SliceParams)
	is, os := inShapes[0], outShapes[0]
	istrd := strides(is)
	ostrd := strides(os)
	out := make([]int32, os.Size())
	for flat := 0; flat < os.Size(); flat++ {
		oidx := unflat(os, flat)
		iidx := make([]int, len(oidx))
		for d := range oidx {
			iidx[d] = oidx[d] + p.Begin[d]
		}
		out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, iidx)]
	}
	return [][]int32{out}, nil
}

func computeActivation(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	a := op.Params.(ActivationKind)
	out := make([]int32, len(in[0]))
	for i, v := range in[0] {
		out[i] = applyActivation(v, a)
	}
	return [][]int32{out}, nil
}

func poolWindow(input []int32, is tensor.Shape, p PoolParams, ni, ci, oh, ow int, avg bool) int32 {
	h, w := is[2], is[3]
	var acc int32
	count := 0
	var maxV int32
	first := true
	for khi := 0; khi < p.KernelH; khi++ {
		ih := oh*p.StrideH - p.PadH + khi*p.DilationH
		if ih < 0 || ih >= h {
			continue
		}
		for kwi := 0; kwi < p.KernelW; kwi++ {
			iw := ow*p.StrideW - p.PadW + kwi*p.DilationW
			if iw < 0 || iw >= w {
				continue
			}
			v := input[((ni*is[1]+ci)*h+ih)*w+iw]
			if avg {
				acc += v
				count++
			} else if first {
				maxV = v
				first = false
			} else if v > maxV {
				maxV = v
			}
		}
	}
	if avg {
		if count == 0 {
			return 0
		}
		return acc / int32(count)
	}
	return maxV
}

func computePoolGeneric(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape, avg bool) ([][]int32, error) {
	p := op.Params.(PoolParams)
	is, os := inShapes[0], outShapes[0]
	out := make([]int32, os.Size())
	n, c, outH, outW := os[0], os[1], os[2], os[3]
	for ni := 0; ni < n; ni++ {
		for ci := 0; ci < c; ci++ {
			for oh := 0; oh < outH; oh++ {
				for ow := 0; ow < outW; ow++ {
					out[((ni*c+ci)*outH+oh)*outW+ow] = poolWindow(in[0], is, p, ni, ci, oh, ow, avg)
				}
			}
		}
	}
	return [][]int32{out}, nil
}

func computeMaxPool(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	return computePoolGeneric(op, in, inShapes, outShapes, false)
}

func computeAvgPool(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	return computePoolGeneric(op, in, inShapes, outShapes, true)
}

func computeAdd(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	out := make([]int32, len(in[0]))
	for i := range out {
		out[i] = in[0][i] + in[1][i]
	}
	return [][]int32{out}, nil
}

func computeMul(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	out := make([]int32, len(in[0]))
	for i := range out {
		out[i] = in[0][i] * in[1][i]
	}
	return [][]int32{out}, nil
}

func computeTranspose(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(TransposeParams)
	expanded, err := expandForSplit(inShapes[0], p)
	if err != nil {
		return nil, err
	}
	istrd := strides(expanded)
	os := outShapes[0]
	ostrd := strides(os)
	out := make([]int32, os.Size())
	for flat := 0; flat < os.Size(); flat++ {
		oidx := unflat(os, flat)
		iidx := make([]int, len(oidx))
		for outAxis, inAxis := range p.Perm {
			iidx[inAxis] = oidx[outAxis]
		}
		out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, iidx)]
	}
	return [][]int32{out}, nil
}

func computeGather(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(GatherParams)
	is, os := inShapes[0], outShapes[0]
	istrd := strides(is)
	ostrd := strides(os)
	idxData := in[1]
	out := make([]int32, os.Size())
	for flat := 0; flat < os.Size(); flat++ {
		oidx := unflat(os, flat)
		iidx := append([]int(nil), oidx...)
		iidx[p.Axis] = int(idxData[oidx[p.Axis]])
		out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, iidx)]
	}
	return [][]int32{out}, nil
}

func computeSplit(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(SplitParams)
	is := inShapes[0]
	istrd := strides(is)
	outs := make([][]int32, len(outShapes))
	offset := 0
	for oi, os := range outShapes {
		ostrd := strides(os)
		out := make([]int32, os.Size())
		for flat := 0; flat < os.Size(); flat++ {
			oidx := unflat(os, flat)
			iidx := append([]int(nil), oidx...)
			iidx[p.Axis] = oidx[p.Axis] + offset
			out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, iidx)]
		}
		outs[oi] = out
		offset += os[p.Axis]
	}
	return outs, nil
}

func computeConcat(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(ConcatParams)
	os := outShapes[0]
	ostrd := strides(os)
	out := make([]int32, os.Size())
	offset := 0
	for ii, is := range inShapes {
		istrd := strides(is)
		for flat := 0; flat < is.Size(); flat++ {
			iidx := unflat(is, flat)
			oidx := append([]int(nil), iidx...)
			oidx[p.Axis] = iidx[p.Axis] + offset
			out[flatIndex(ostrd, oidx)] = in[ii][flatIndex(istrd, iidx)]
		}
		offset += is[p.Axis]
	}
	return [][]int32{out}, nil
}

func computeExtend(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(ExtendParams)
	is, os := inShapes[0], outShapes[0]
	istrd := strides(is)
	ostrd := strides(os)
	out := make([]int32, os.Size())
	for copyIdx := 0; copyIdx < p.Count; copyIdx++ {
		for flat := 0; flat < is.Size(); flat++ {
			iidx := unflat(is, flat)
			oidx := append([]int(nil), iidx...)
			oidx[p.Axis] = iidx[p.Axis] + copyIdx*is[p.Axis]
			out[flatIndex(ostrd, oidx)] = in[0][flatIndex(istrd, iidx)]
		}
	}
	return [][]int32{out}, nil
}

func computeReshape(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	out := make([]int32, len(in[0]))
	copy(out, in[0])
	return [][]int32{out}, nil
}

func computeSoftmax(op *Operator, in [][]int32, inShapes, outShapes []tensor.Shape) ([][]int32, error) {
	p := op.Params.(SoftmaxParams)
	s := inShapes[0]
	strd := strides(s)
	out := make([]int32, len(in[0]))
	axisLen := s[p.Axis]
	total := s.Size()
	visited := make([]bool, total)
	for flat := 0; flat < total; flat++ {
		if visited[flat] {
			continue
		}
		idx := unflat(s, flat)
		var maxV int32
		var sumAbs int64
		first := true
		positions := make([]int, axisLen)
		for a := 0; a < axisLen; a++ {
			idx[p.Axis] = a
			pos := flatIndex(strd, idx)
			positions[a] = pos
			v := in[0][pos]
			if first || v > maxV {
				maxV = v
				first = false
			}
			sumAbs += int64(abs32(v))
		}
		denom := sumAbs + int64(axisLen) + 1
		for a := 0; a < axisLen; a++ {
			pos := positions[a]
			shifted := int64(in[0][pos]-maxV) * 1000
			out[pos] = int32(shifted / denom)
			visited[pos] = true
		}
	}
	return [][]int32{out}, nil
}
