package verify

import (
	"testing"

	"github.com/itohio/subgraphopt/tensor"
	"github.com/stretchr/testify/assert"
)

func TestBoxesPartitionWithNoPoints(t *testing.T) {
	shape := tensor.NewShape(4, 4)
	boxes := Boxes(shape, tensor.NewSplittingPoints(2))
	assert.Len(t, boxes, 1)
	assert.Equal(t, 16, boxes[0].Size())
}

func TestBoxesPartitionWithPoints(t *testing.T) {
	shape := tensor.NewShape(4, 4)
	pts := tensor.SplittingPoints{{2}, {}}
	boxes := Boxes(shape, pts)
	assert.Len(t, boxes, 2)
	total := 0
	for _, b := range boxes {
		total += b.Size()
	}
	assert.Equal(t, 16, total)
}

func TestProbePositionsIncludesCornerAndNeighbors(t *testing.T) {
	shape := tensor.NewShape(4, 4)
	box := Box{Lo: []int{0, 0}, Hi: []int{4, 4}}
	positions := probePositions(box, shape)
	assert.GreaterOrEqual(t, len(positions), 1)
	assert.Equal(t, []int{0, 0}, positions[0])
	assert.Contains(t, positions, []int{1, 0})
	assert.Contains(t, positions, []int{0, 1})
}
