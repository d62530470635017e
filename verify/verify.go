// Package verify implements the two equivalence-checking strategies used
// to decide whether a candidate subgraph may be emitted as a mutant of the
// input subgraph: the point-sampling verifier (always on) and the
// stricter splitting-point box verifier (optional).
package verify

import (
	"math/rand"

	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
)

// SamplesPerOutput is how many probe positions the sampling verifier picks
// per output tensor of the input subgraph.
const SamplesPerOutput = 8

// Sample is one pre-computed reference probe: a position within an output
// tensor and the value the input subgraph produces there.
type Sample struct {
	OutputIdx int
	Position  []int
	Value     int32
}

// Reference holds the samples computed once, before DFS begins, against
// the input subgraph. It is frame-local and built with a random source
// seeded once per run invocation.
type Reference struct {
	samples []Sample
	rng     *rand.Rand
}

// BuildReference picks SamplesPerOutput positions per output of input,
// computes input fully at each, and stores the (position, value) pairs. It
// returns ok=false if computing the reference subgraph at any sampled
// position fails (a sampling collision) — callers must treat that as
// "run returns an empty result".
func BuildReference(input *subgraph.Subgraph, rng *rand.Rand) (*Reference, bool) {
	ref := &Reference{rng: rng}
	for _, outIdx := range input.Outputs() {
		shape := input.Pool().Get(outIdx).Shape()
		for i := 0; i < SamplesPerOutput; i++ {
			pos := samplePosition(shape, rng)
			v, ok := input.Compute(outIdx, pos)
			if !ok {
				return nil, false
			}
			ref.samples = append(ref.samples, Sample{OutputIdx: outIdx, Position: pos, Value: v})
		}
	}
	return ref, true
}

// samplePosition derives a per-dim probe index via
// ((rand()%2)+1)*dim/3, the formula the original sampler uses.
func samplePosition(shape tensor.Shape, rng *rand.Rand) []int {
	pos := make([]int, shape.Rank())
	for d, dim := range shape {
		factor := rng.Intn(2) + 1
		idx := factor * dim / 3
		if idx >= dim {
			idx = dim - 1
		}
		if idx < 0 {
			idx = 0
		}
		pos[d] = idx
	}
	return pos
}

// Accept recomputes candidate at every stored reference sample and reports
// whether, for every output, the matching fraction exceeds threshold.
// outputMap maps each reference output index to the candidate tensor it is
// compared against; a reference output missing from outputMap rejects the
// candidate. Accept does not compare shapes itself: a sample position the
// candidate cannot compute counts as a mismatch.
func (r *Reference) Accept(candidate *subgraph.Subgraph, outputMap map[int]int, threshold float64) bool {
	if len(r.samples) == 0 {
		return false
	}
	counts := make(map[int][2]int) // outputIdx -> (equal, total)
	for _, s := range r.samples {
		candOut, ok := outputMap[s.OutputIdx]
		if !ok {
			return false
		}
		v, ok := candidate.Compute(candOut, s.Position)
		c := counts[s.OutputIdx]
		c[1]++
		if ok && v == s.Value {
			c[0]++
		}
		counts[s.OutputIdx] = c
	}
	for _, c := range counts {
		equal, total := c[0], c[1]
		if total == 0 || float64(equal)/float64(total) <= threshold {
			return false
		}
	}
	return true
}
