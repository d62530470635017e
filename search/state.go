// Package search implements the depth-bounded DFS mutation driver: given
// an input subgraph, a candidate-op template list, and an acceptance
// threshold, it explores operator insertions and emits every subgraph that
// passes verification. Run is the package's only exported entry point.
package search

import (
	"hash/fnv"
	"math/rand"

	"github.com/itohio/subgraphopt/candidates"
	"github.com/itohio/subgraphopt/config"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/reciprocity"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
	"github.com/itohio/subgraphopt/verify"
)

// frameState tags where a search frame sits in its lifecycle. It exists
// for observability (logged at transitions) rather than being branched on
// directly.
type frameState int

const (
	stateFresh frameState = iota
	statePreprocessed
	stateExpanding
	stateEmitting
	statePruned
	stateCleaned
)

func (s frameState) String() string {
	switch s {
	case stateFresh:
		return "fresh"
	case statePreprocessed:
		return "preprocessed"
	case stateExpanding:
		return "expanding"
	case stateEmitting:
		return "emitting"
	case statePruned:
		return "pruned"
	case stateCleaned:
		return "cleaned"
	default:
		return "unknown"
	}
}

// state carries everything one invocation of Run threads through its DFS:
// the mutable subgraph frame (pool owned by it, op list grown/shrunk in
// place), the fixed search parameters, and the frame-local bookkeeping:
// visited set, sample reference, random source.
type state struct {
	sg            *subgraph.Subgraph
	opList        []operator.Operator
	cfg           config.Config
	templates     []candidates.Template
	threshold     float64
	maxDepth      int
	numReserveOps int

	inputCount  int           // live tensor count of the original input, the Cleaned invariant target
	origOutputs []int         // output tensor indices of the pristine input subgraph, captured before preprocessing
	origShapes  map[int]tensor.Shape

	visited         map[uint64]bool
	recipStore      *reciprocity.Store
	ref             *verify.Reference
	computeAncestor []bool // per pool-capacity slot: does this tensor's producer chain include a compute op?
	tensorHash      []uint64

	rng     *rand.Rand
	results []*subgraph.Subgraph
}

func (st *state) ensureCapacity(n int) {
	for len(st.computeAncestor) < n {
		st.computeAncestor = append(st.computeAncestor, false)
		st.tensorHash = append(st.tensorHash, 0)
	}
}

func tensorHashOf(opHash uint64, inputHashes []uint64) uint64 {
	h := fnv.New64a()
	var b [8]byte
	write := func(v uint64) {
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	write(opHash)
	for _, v := range inputHashes {
		write(v)
	}
	return h.Sum64()
}

