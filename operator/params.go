package operator

// ConvParams describes a (possibly strided/dilated) 2D convolution.
// Input layout [N, C, H, W]; weight layout [F, C, Kh, Kw].
type ConvParams struct {
	PadH, PadW         int
	StrideH, StrideW   int
	DilationH, DilationW int
	HasBias            bool
	Activation         ActivationKind
}

// MatmulParams describes a (possibly batched) matrix multiply.
// Input layout [..., M, K] x [..., K, N] (or transposed).
type MatmulParams struct {
	TransA, TransB bool
	HasBias        bool
	Activation     ActivationKind
}

// TransposeParams describes an axis permutation, optionally preceded by
// splitting one input axis into two (SplitAxis/SplitFactor, factor = size
// of the outer of the two new axes, the inner one gets size/factor) to
// express split/merge nested forms
// (e.g. N2H folds the batch dim into height). Perm is expressed over the
// (possibly split) axis list.
type TransposeParams struct {
	Perm        []int
	SplitAxis   int // -1 when no split precedes the permutation
	SplitFactor int
	Semantic    TransposeSemantic
	Tag         TransposeTag
}

// PadParams pads each dimension by Begin[d] at the front and End[d] at the
// back with zero fill.
type PadParams struct {
	Begin, End []int
}

// SliceParams extracts [Begin[d], End[d]) along each dimension.
type SliceParams struct {
	Begin, End []int
}

// SplitParams partitions the input along Axis into len(Sizes) outputs.
type SplitParams struct {
	Axis  int
	Sizes []int
}

// ConcatParams joins all inputs along Axis.
type ConcatParams struct {
	Axis int
	// GroupSize is nonzero for the DFS driver's "concat with a nonzero
	// group size" expansion rule: it records how many live tensors of each
	// role the expansion rule grouped together, purely for the driver's own
	// bookkeeping; shape inference ignores it.
	GroupSize int
}

// ExtendParams replicates the input Count times along Axis and concatenates
// the copies (used by preprocess builders to equalize channel counts before
// a fused group convolution).
type ExtendParams struct {
	Axis  int
	Count int
}

// ReshapeParams gives the target shape directly (size must match).
type ReshapeParams struct {
	Shape []int
}

// PoolParams describes a 2D max/average pool over [N, C, H, W].
type PoolParams struct {
	KernelH, KernelW     int
	PadH, PadW           int
	StrideH, StrideW     int
	DilationH, DilationW int
}

// GatherParams selects elements along Axis using a 1D Int32 index tensor
// given as the operator's second input.
type GatherParams struct {
	Axis int
}

// SoftmaxParams normalizes along Axis.
type SoftmaxParams struct {
	Axis int
}
