package operator

import (
	"fmt"
	"hash/fnv"

	"github.com/mr-tron/base58"
)

// Operator is one tagged-variant node: a Kind, ordered input/output tensor
// arena indices, kind-specific parameters, and a structural hash. Shape
// inference, reference computation, and splitting-point propagation are
// resolved through the behavior table (behavior.go) rather than through
// per-kind methods on Operator, so adding a capability never requires a
// type switch at every call site.
type Operator struct {
	Kind    Kind
	Inputs  []int
	Outputs []int
	Params  any

	hash uint64
}

// IsComputeOp reports whether this operator performs numeric computation
// (as opposed to pure data movement). Compute-stacking pruning uses this to
// forbid feeding one compute op's output straight into another along the
// same ancestry chain.
func (op Operator) IsComputeOp() bool {
	b, ok := behaviors[op.Kind]
	return ok && b.isCompute
}

// IsTransposeOp reports whether this operator is a pure Transpose, used by
// the reciprocity finder's tail-match predicate.
func (op Operator) IsTransposeOp() bool {
	return op.Kind == Transpose
}

// Hash returns the operator's structural hash, derived from Kind and
// Params. Two operators with equal hash are interchangeable on identical
// inputs.
func (op *Operator) Hash() uint64 {
	if op.hash == 0 {
		op.hash = computeHash(op.Kind, op.Params)
	}
	return op.hash
}

// HashString renders Hash as a short base58 string for debug logging, a
// compact, unambiguous identifier for trace output.
func (op *Operator) HashString() string {
	h := op.Hash()
	buf := []byte{
		byte(h >> 56), byte(h >> 48), byte(h >> 40), byte(h >> 32),
		byte(h >> 24), byte(h >> 16), byte(h >> 8), byte(h),
	}
	return base58.Encode(buf)
}

// Clone returns a structurally identical, unconnected copy: Params are deep
// copied, Inputs/Outputs are left nil for the caller to rebind, and the
// cached hash carries over (it depends only on Kind/Params).
func (op Operator) Clone() Operator {
	out := Operator{Kind: op.Kind, hash: op.hash}
	out.Params = cloneParams(op.Kind, op.Params)
	return out
}

func cloneIntSlice(s []int) []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func cloneParams(kind Kind, p any) any {
	switch kind {
	case Conv:
		v := p.(ConvParams)
		return v
	case Matmul:
		v := p.(MatmulParams)
		return v
	case Pad:
		v := p.(PadParams)
		return PadParams{Begin: cloneIntSlice(v.Begin), End: cloneIntSlice(v.End)}
	case Slice:
		v := p.(SliceParams)
		return SliceParams{Begin: cloneIntSlice(v.Begin), End: cloneIntSlice(v.End)}
	case Activation:
		v := p.(ActivationKind)
		return v
	case MaxPool, AvgPool:
		v := p.(PoolParams)
		return v
	case Add, Mul:
		return nil
	case Transpose:
		v := p.(TransposeParams)
		return TransposeParams{
			Perm:        cloneIntSlice(v.Perm),
			SplitAxis:   v.SplitAxis,
			SplitFactor: v.SplitFactor,
			Semantic:    v.Semantic,
			Tag:         v.Tag,
		}
	case Gather:
		v := p.(GatherParams)
		return v
	case Split:
		v := p.(SplitParams)
		return SplitParams{Axis: v.Axis, Sizes: cloneIntSlice(v.Sizes)}
	case Concat:
		v := p.(ConcatParams)
		return v
	case Extend:
		v := p.(ExtendParams)
		return v
	case Reshape:
		v := p.(ReshapeParams)
		return ReshapeParams{Shape: cloneIntSlice(v.Shape)}
	case Softmax:
		v := p.(SoftmaxParams)
		return v
	default:
		panic(fmt.Sprintf("operator: cloneParams: unhandled kind %v", kind))
	}
}

// computeHash mixes Kind with a stable encoding of Params via FNV-1a. No
// third-party hashing library in the retrieval pack offers a plain
// structural-hash combinator over heterogeneous small structs, so this one
// helper stays on the standard library (hash/fnv) — see DESIGN.md.
func computeHash(kind Kind, p any) uint64 {
	h := fnv.New64a()
	writeInt(h, int(kind))
	switch kind {
	case Conv:
		v := p.(ConvParams)
		writeInts(h, v.PadH, v.PadW, v.StrideH, v.StrideW, v.DilationH, v.DilationW, boolInt(v.HasBias), int(v.Activation))
	case Matmul:
		v := p.(MatmulParams)
		writeInts(h, boolInt(v.TransA), boolInt(v.TransB), boolInt(v.HasBias), int(v.Activation))
	case Pad:
		v := p.(PadParams)
		writeInts(h, v.Begin...)
		writeInts(h, v.End...)
	case Slice:
		v := p.(SliceParams)
		writeInts(h, v.Begin...)
		writeInts(h, v.End...)
	case Activation:
		writeInt(h, int(p.(ActivationKind)))
	case MaxPool, AvgPool:
		v := p.(PoolParams)
		writeInts(h, v.KernelH, v.KernelW, v.PadH, v.PadW, v.StrideH, v.StrideW, v.DilationH, v.DilationW)
	case Add, Mul:
		// no parameters
	case Transpose:
		v := p.(TransposeParams)
		writeInts(h, v.Perm...)
		writeInts(h, v.SplitAxis, v.SplitFactor, int(v.Semantic), int(v.Tag))
	case Gather:
		writeInt(h, p.(GatherParams).Axis)
	case Split:
		v := p.(SplitParams)
		writeInt(h, v.Axis)
		writeInts(h, v.Sizes...)
	case Concat:
		v := p.(ConcatParams)
		writeInts(h, v.Axis, v.GroupSize)
	case Extend:
		v := p.(ExtendParams)
		writeInts(h, v.Axis, v.Count)
	case Reshape:
		writeInts(h, p.(ReshapeParams).Shape...)
	case Softmax:
		writeInt(h, p.(SoftmaxParams).Axis)
	}
	return h.Sum64()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func writeInt(h interface{ Write([]byte) (int, error) }, v int) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	h.Write(b[:])
}

func writeInts(h interface{ Write([]byte) (int, error) }, vs ...int) {
	for _, v := range vs {
		writeInt(h, v)
	}
}
