// Package cache implements the mutation cache: a mapping from a
// single-compute-op's structural key to the mutants previously found for
// it. Injected into the search driver rather than held as a
// package-global, so concurrent searches can each own their own cache.
package cache

import (
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
)

// primes weight input/output dims when mixing the cache key, so that
// permuted dim sequences of the same multiset rarely collide.
var primes = []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

// Key identifies a cacheable single-compute-op input subgraph: its
// operator's structural hash mixed with a prime-weighted dot product of
// its input and output dims.
type Key uint64

// KeyFor computes the cache key for a subgraph consisting of exactly one
// Conv or Matmul operator. ok is false for subgraphs the cache does not
// apply to.
func KeyFor(sg *subgraph.Subgraph) (Key, bool) {
	ops := sg.Ops()
	if len(ops) != 1 {
		return 0, false
	}
	op := &ops[0]
	if op.Kind != operator.Conv && op.Kind != operator.Matmul {
		return 0, false
	}

	h := op.Hash()
	pool := sg.Pool()
	var mix uint64
	pi := 0
	for _, in := range op.Inputs {
		mix += dimDot(pool.Get(in).Shape(), &pi)
	}
	for _, out := range op.Outputs {
		mix += dimDot(pool.Get(out).Shape(), &pi)
	}
	return Key(h ^ (mix * 1099511628211)), true
}

func dimDot(shape tensor.Shape, pi *int) uint64 {
	var sum uint64
	for _, d := range shape {
		p := primes[*pi%len(primes)]
		sum += p * uint64(d)
		*pi++
	}
	return sum
}

// Cache maps a single-compute-op key to the mutants previously found for
// it. Not safe for concurrent use; callers running multiple search frames
// concurrently must serialize access externally.
type Cache struct {
	entries map[Key][]*subgraph.Subgraph
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[Key][]*subgraph.Subgraph)}
}

// Lookup returns cloned copies of the cached mutants for key, or ok=false
// on a miss. Clones are returned so callers can freely mutate the result
// without corrupting the cache.
func (c *Cache) Lookup(key Key) (results []*subgraph.Subgraph, ok bool) {
	entries, found := c.entries[key]
	if !found {
		return nil, false
	}
	out := make([]*subgraph.Subgraph, len(entries))
	for i, sg := range entries {
		out[i] = sg.CloneInto()
	}
	return out, true
}

// Store records results for key, to be returned by future Lookup calls.
func (c *Cache) Store(key Key, results []*subgraph.Subgraph) {
	stored := make([]*subgraph.Subgraph, len(results))
	for i, sg := range results {
		stored[i] = sg.CloneInto()
	}
	c.entries[key] = stored
}
