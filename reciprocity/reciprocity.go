// Package reciprocity detects Transpose chains that compose to the
// identity permutation and prunes op lists whose tail matches one. The
// finder runs its own small DFS over a trivial identity subgraph
// restricted to Transpose candidates before the main mutation search
// begins.
package reciprocity

import (
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
)

// MaxReciprocityDetectDepth bounds the identity-chain search.
const MaxReciprocityDetectDepth = 3

// Threshold is the strict acceptance threshold the identity search verifies
// candidate chains against.
const Threshold = 0.99

// predecessorIndex is the input slot the tail-match walks when following an
// operator's producer chain. Only input 0 is ever followed, even for
// operators with more than one input, since operators with multiple
// predecessors (Concat, Add) never appear inside a pure-Transpose chain
// anyway.
const predecessorIndex = 0

// Chain is an ordered sequence of operator hashes that composes to the
// identity permutation.
type Chain []uint64

// Store holds every known reciprocity chain discovered for the current
// process, and answers tail-match queries during DFS expansion.
type Store struct {
	chains []Chain
	maxLen int
}

// NewStore returns an empty chain store.
func NewStore() *Store {
	return &Store{}
}

// Add records chain, extending the store's tracked maximum chain length.
func (s *Store) Add(chain Chain) {
	if len(chain) == 0 {
		return
	}
	cp := append(Chain(nil), chain...)
	s.chains = append(s.chains, cp)
	if len(cp) > s.maxLen {
		s.maxLen = len(cp)
	}
}

// Chains returns every chain currently tracked.
func (s *Store) Chains() []Chain {
	return s.chains
}

// MatchesTail reports whether the contiguous run of Transpose operators at
// the end of ops (walking backward from the latest producer, following
// only predecessorIndex) matches any known chain exactly.
func (s *Store) MatchesTail(ops []operator.Operator, producerOp map[int]int) bool {
	if len(s.chains) == 0 || len(ops) == 0 {
		return false
	}
	tail := transposeTail(ops, producerOp, s.maxLen)
	for _, chain := range s.chains {
		if chainsEqual(tail, chain) {
			return true
		}
	}
	return false
}

// transposeTail walks backward from the last operator in ops along
// predecessorIndex, collecting operator hashes while each visited operator
// is a Transpose, stopping after maxLen steps or at the first non-Transpose
// predecessor (or a tensor with no producer).
func transposeTail(ops []operator.Operator, producerOp map[int]int, maxLen int) []uint64 {
	if maxLen <= 0 {
		maxLen = len(ops)
	}
	hashes := make([]uint64, 0, maxLen)
	opIdx := len(ops) - 1
	for steps := 0; steps < maxLen && opIdx >= 0; steps++ {
		op := &ops[opIdx]
		if op.Kind != operator.Transpose {
			break
		}
		hashes = append(hashes, op.Hash())
		if predecessorIndex >= len(op.Inputs) {
			break
		}
		predTensor := op.Inputs[predecessorIndex]
		prodIdx, ok := producerOp[predTensor]
		if !ok {
			break
		}
		opIdx = prodIdx
	}
	// hashes was collected latest-first; reverse to match chain order
	// (earliest operator first), matching how Chains are recorded by the
	// identity finder's DFS pre-order.
	for i, j := 0, len(hashes)-1; i < j; i, j = i+1, j-1 {
		hashes[i], hashes[j] = hashes[j], hashes[i]
	}
	return hashes
}

func chainsEqual(a []uint64, b Chain) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// identityPool builds a small 4-D tensor pool with a single input tensor,
// the trivial seed subgraph the finder runs its DFS against.
func identityPool() *tensor.Pool {
	pool := tensor.NewPool(1 + 2*MaxReciprocityDetectDepth)
	pool.Push(tensor.NewShape(1, 2, 3, 4), tensor.Int32, tensor.Input)
	return pool
}

// IdentityInput returns a fresh pool seeded with the small 4-D tensor the
// identity search explores Transpose chains against.
func IdentityInput() *tensor.Pool {
	return identityPool()
}
