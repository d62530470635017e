// Package tensor implements the core's tensor model: shape, dtype and role
// tags, a lazily-filled integer data buffer backed by gorgonia.org/tensor,
// splitting-point annotations, and a grow-only arena (Pool) that the
// search driver pushes and pops tensors from by stable integer
// index rather than by pointer.
package tensor

import (
	"fmt"

	gt "gorgonia.org/tensor"
)

// Tensor is one node of a subgraph: a shape/dtype/role tagged value with a
// lazily-computed Int32 buffer, splitting-point annotations, a penalty
// vector propagated but not interpreted by the core, and a structural hash.
type Tensor struct {
	id       int
	shape    Shape
	dtype    DataType
	role     Role
	producer int // operator index that produced this tensor, -1 if none
	penalty  []int
	split    SplittingPoints
	hash     uint64

	buf    *gt.Dense // lazily allocated on first Fill; shares raw's backing array
	raw    []int32
	filled bool
}

// ID returns the tensor's stable arena index.
func (t *Tensor) ID() int { return t.id }

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape { return t.shape }

// DataType returns the tensor's dtype tag.
func (t *Tensor) DataType() DataType { return t.dtype }

// Role returns the tensor's role tag.
func (t *Tensor) Role() Role { return t.role }

// Producer returns the operator index that produced this tensor, or -1 for
// Input/Weight tensors.
func (t *Tensor) Producer() int { return t.producer }

// SetProducer records the operator index that produced this tensor.
func (t *Tensor) SetProducer(opIdx int) { t.producer = opIdx }

// Penalty returns the per-dimension virtual-padding vector. The core
// propagates this but never interprets it.
func (t *Tensor) Penalty() []int { return t.penalty }

// SetPenalty replaces the penalty vector.
func (t *Tensor) SetPenalty(p []int) { t.penalty = p }

// SplittingPoints returns the tensor's per-dimension discontinuity points.
func (t *Tensor) SplittingPoints() SplittingPoints { return t.split }

// SetSplittingPoints replaces the tensor's splitting points.
func (t *Tensor) SetSplittingPoints(sp SplittingPoints) { t.split = sp }

// Hash returns the tensor's stable structural hash.
func (t *Tensor) Hash() uint64 { return t.hash }

// SetHash sets the tensor's structural hash. Within this module only
// subgraph.CloneInto calls it, copying the source tensor's hash.
func (t *Tensor) SetHash(h uint64) { t.hash = h }

// Filled reports whether the reference-computation buffer has been
// populated.
func (t *Tensor) Filled() bool { return t.filled }

// Alloc (re)allocates the tensor's Int32 reference buffer for its current
// shape. The backing array is shared between the plain []int32 slice (Raw)
// used by the operator package's flat reference-compute functions and a
// gorgonia.org/tensor Dense view (used for strided, multi-dimensional At
// access), layering a Dense view over a plain backing slice.
func (t *Tensor) alloc() {
	size := t.shape.Size()
	t.raw = make([]int32, size)
	t.buf = gt.New(gt.WithShape([]int(t.shape)...), gt.Of(gt.Int32), gt.WithBacking(t.raw))
	t.filled = false
}

// Fill populates the buffer with values computed by data (called with the
// flat row-major index of each element) and marks the tensor filled.
func (t *Tensor) Fill(data func(flatIdx int) int32) {
	if t.buf == nil {
		t.alloc()
	}
	for i := range t.raw {
		t.raw[i] = data(i)
	}
	t.filled = true
}

// FillRaw installs a precomputed flat row-major Int32 buffer directly (used
// by the subgraph package after running an operator's reference Compute).
func (t *Tensor) FillRaw(data []int32) {
	if t.buf == nil {
		t.alloc()
	}
	copy(t.raw, data)
	t.filled = true
}

// Raw returns the tensor's flat row-major Int32 buffer. Requires Filled.
func (t *Tensor) Raw() []int32 {
	return t.raw
}

// At returns the Int32 value at the given multi-dimensional position.
// Requires the buffer to have been filled by a prior Fill call.
func (t *Tensor) At(position []int) (int32, error) {
	if !t.filled {
		return 0, fmt.Errorf("tensor: At: tensor %d not filled", t.id)
	}
	v, err := t.buf.At(position...)
	if err != nil {
		return 0, fmt.Errorf("tensor: At: %w", err)
	}
	iv, ok := v.(int32)
	if !ok {
		return 0, fmt.Errorf("tensor: At: unexpected element type %T", v)
	}
	return iv, nil
}

// Reset clears the tensor's buffer, ready for reuse by a later frame at the
// same arena slot.
func (t *Tensor) reset(shape Shape, dtype DataType, role Role) {
	t.shape = shape
	t.dtype = dtype
	t.role = role
	t.producer = -1
	t.penalty = nil
	t.split = NewSplittingPoints(shape.Rank())
	t.hash = 0
	t.buf = nil
	t.filled = false
}
