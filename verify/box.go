package verify

import (
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
)

// Box is one axis-aligned region of an output tensor's index space, formed
// by merging the reference and candidate splitting points for that output.
type Box struct {
	Lo []int // inclusive per-dim lower corner
	Hi []int // exclusive per-dim upper corner
}

// Size returns the number of elements the box covers.
func (b Box) Size() int {
	n := 1
	for d := range b.Lo {
		n *= b.Hi[d] - b.Lo[d]
	}
	return n
}

// Boxes partitions shape into axis-aligned boxes using merged per-dim
// splitting points.
func Boxes(shape tensor.Shape, merged tensor.SplittingPoints) []Box {
	bounds := make([][]int, shape.Rank())
	for d := 0; d < shape.Rank(); d++ {
		pts := []int{}
		if d < len(merged) {
			pts = merged[d]
		}
		b := make([]int, 0, len(pts)+2)
		b = append(b, 0)
		for _, p := range pts {
			if p > 0 && p < shape[d] {
				b = append(b, p)
			}
		}
		b = append(b, shape[d])
		bounds[d] = b
	}
	return cartesianBoxes(bounds)
}

func cartesianBoxes(bounds [][]int) []Box {
	rank := len(bounds)
	segCounts := make([]int, rank)
	total := 1
	for d := range bounds {
		segCounts[d] = len(bounds[d]) - 1
		total *= segCounts[d]
	}
	boxes := make([]Box, 0, total)
	idx := make([]int, rank)
	for n := 0; n < total; n++ {
		lo := make([]int, rank)
		hi := make([]int, rank)
		rem := n
		for d := rank - 1; d >= 0; d-- {
			idx[d] = rem % segCounts[d]
			rem /= segCounts[d]
			lo[d] = bounds[d][idx[d]]
			hi[d] = bounds[d][idx[d]+1]
		}
		boxes = append(boxes, Box{Lo: lo, Hi: hi})
	}
	return boxes
}

// probePositions returns the box's corner plus one neighbor along each
// unsplit axis (an axis whose box spans its tensor's full extent).
func probePositions(b Box, shape tensor.Shape) [][]int {
	corner := append([]int(nil), b.Lo...)
	positions := [][]int{corner}
	for d := 0; d < shape.Rank(); d++ {
		if b.Hi[d]-b.Lo[d] == shape[d] && shape[d] > 1 {
			p := append([]int(nil), corner...)
			p[d] = corner[d] + 1
			if p[d] < b.Hi[d] {
				positions = append(positions, p)
			}
		}
	}
	return positions
}

// BoxAccept verifies candidate against reference using the splitting-point
// box method for each output in outputMap (reference idx -> candidate
// idx), accepting when the size-weighted passing fraction across all
// outputs exceeds threshold.
func BoxAccept(reference, candidate *subgraph.Subgraph, outputMap map[int]int, threshold float64) bool {
	if len(outputMap) == 0 {
		return false
	}
	var passing, total int
	for refOut, candOut := range outputMap {
		refShape := reference.Pool().Get(refOut).Shape()
		candShape := candidate.Pool().Get(candOut).Shape()
		if !refShape.Equal(candShape) {
			return false
		}
		refPoints := reference.Pool().Get(refOut).SplittingPoints()
		candPoints := candidate.Pool().Get(candOut).SplittingPoints()
		merged := tensor.Merge(refPoints, candPoints)

		for _, box := range Boxes(refShape, merged) {
			size := box.Size()
			total += size
			if boxPasses(reference, candidate, refOut, candOut, box, refShape) {
				passing += size
			}
		}
	}
	if total == 0 {
		return false
	}
	return float64(passing)/float64(total) > threshold
}

func boxPasses(reference, candidate *subgraph.Subgraph, refOut, candOut int, box Box, shape tensor.Shape) bool {
	for _, pos := range probePositions(box, shape) {
		refV, ok1 := reference.Compute(refOut, pos)
		candV, ok2 := candidate.Compute(candOut, pos)
		if !ok1 || !ok2 || refV != candV {
			return false
		}
	}
	return true
}
