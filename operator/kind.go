// Package operator implements the tagged-variant operator model: a single
// Kind enum plus one parameter struct per kind, a capability/behavior table
// keyed by Kind (shape inference, reference compute, splitting-point
// inference, hashing), and a Clone that yields a structurally identical,
// unconnected operator. A tagged-variant Kind plus a capability table
// replaces a virtual-dispatch operator class hierarchy with a total
// function over a closed set of kinds.
package operator

// Kind identifies an operator variant.
type Kind int

const (
	Conv Kind = iota
	Matmul
	Pad
	Slice
	Activation
	MaxPool
	AvgPool
	Add
	Mul
	Transpose
	Gather
	Split
	Concat
	Extend
	Reshape
	Softmax
)

func (k Kind) String() string {
	switch k {
	case Conv:
		return "Conv"
	case Matmul:
		return "Matmul"
	case Pad:
		return "Pad"
	case Slice:
		return "Slice"
	case Activation:
		return "Activation"
	case MaxPool:
		return "MaxPool"
	case AvgPool:
		return "AvgPool"
	case Add:
		return "Add"
	case Mul:
		return "Mul"
	case Transpose:
		return "Transpose"
	case Gather:
		return "Gather"
	case Split:
		return "Split"
	case Concat:
		return "Concat"
	case Extend:
		return "Extend"
	case Reshape:
		return "Reshape"
	case Softmax:
		return "Softmax"
	default:
		return "Unknown"
	}
}

// ActivationKind tags a fused or standalone activation function.
type ActivationKind int

const (
	NoActivation ActivationKind = iota
	Relu
	Sigmoid
)

func (a ActivationKind) String() string {
	switch a {
	case NoActivation:
		return "None"
	case Relu:
		return "Relu"
	case Sigmoid:
		return "Sigmoid"
	default:
		return "Unknown"
	}
}

// TransposeTag marks the role a Transpose plays in an emitted mutant, so
// downstream code generators can distinguish a transpose that precedes a
// compute op, one between two compute ops, and one that follows the last
// compute op.
type TransposeTag int

const (
	NoTransposeTag TransposeTag = iota
	Pre
	Mid
	Post
)

// TransposeSemantic names the axis-remapping intent of a Transpose
// candidate, as produced by the preprocess/candidates libraries (e.g. "move
// the batch dim into the height dim"). It carries no behavior of its own;
// it is metadata consumed by downstream code generators.
type TransposeSemantic int

const (
	NoSemantic TransposeSemantic = iota
	N2H
	H2N
	C2H
	C2W
	D2H
	D2W
)
