// Package subgraph implements the Subgraph type: a tensor pool plus an
// ordered operator list, with derived inputs/outputs, topological order,
// and a whole-graph structural hash, using a reverse-post-order DFS over
// successor edges for the connectivity walk.
package subgraph

import (
	"fmt"
	"hash/fnv"

	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
)

// Subgraph owns a tensor pool and an ordered operator list, deriving
// connectivity (inputs, outputs, topological order, whole-graph hash) every
// time ResetOps is called.
type Subgraph struct {
	pool *tensor.Pool
	ops  []operator.Operator

	producerOp map[int]int // tensor idx -> operator idx that produced it
	consumed   map[int]bool
	order      []int // topological order over ops indices
	outputs    []int // tensor indices
	hash       uint64
}

// New creates an empty Subgraph over the given pool.
func New(pool *tensor.Pool) *Subgraph {
	return &Subgraph{pool: pool}
}

// Pool returns the subgraph's tensor arena.
func (sg *Subgraph) Pool() *tensor.Pool { return sg.pool }

// Ops returns the current operator list, in append order.
func (sg *Subgraph) Ops() []operator.Operator { return sg.ops }

// Order returns the topological order (operator indices into Ops()).
func (sg *Subgraph) Order() []int { return sg.order }

// Outputs returns the tensor indices that are outputs: no consumer and not
// tagged NotCounted.
func (sg *Subgraph) Outputs() []int { return sg.outputs }

// Hash returns the whole-graph structural hash computed by the last
// ResetOps call.
func (sg *Subgraph) Hash() uint64 { return sg.hash }

// ResetOps rebuilds connectivity over ops against the pool's first numValid
// tensors. It rejects dangling tensor references, cycles, and multiple
// producers for one tensor.
func (sg *Subgraph) ResetOps(ops []operator.Operator, numValid int) error {
	if numValid > sg.pool.NumValid() {
		return fmt.Errorf("subgraph: ResetOps: numValid %d exceeds pool live count %d", numValid, sg.pool.NumValid())
	}

	producerOp := make(map[int]int, len(ops))
	consumed := make(map[int]bool)

	for opIdx, op := range ops {
		for _, in := range op.Inputs {
			if in < 0 || in >= numValid {
				return fmt.Errorf("subgraph: ResetOps: operator %d references dangling tensor %d", opIdx, in)
			}
			consumed[in] = true
		}
		for _, out := range op.Outputs {
			if out < 0 || out >= numValid {
				return fmt.Errorf("subgraph: ResetOps: operator %d produces dangling tensor %d", opIdx, out)
			}
			if prev, dup := producerOp[out]; dup {
				return fmt.Errorf("subgraph: ResetOps: tensor %d has multiple producers (%d and %d)", out, prev, opIdx)
			}
			producerOp[out] = opIdx
		}
	}

	order, err := topoSort(ops, producerOp)
	if err != nil {
		return err
	}

	outputs := make([]int, 0)
	for idx := 0; idx < numValid; idx++ {
		t := sg.pool.Get(idx)
		if t.Role() == tensor.NotCounted {
			continue
		}
		if consumed[idx] {
			continue
		}
		outputs = append(outputs, idx)
	}

	sg.ops = ops
	sg.producerOp = producerOp
	sg.consumed = consumed
	sg.order = order
	sg.outputs = outputs
	sg.hash = wholeGraphHash(ops, producerOp)
	return nil
}

// topoSort returns a topological order of ops (by index) using a reverse
// DFS post-order over successor edges: an edge from op A to op B exists
// when one of A's outputs is an input of B.
func topoSort(ops []operator.Operator, producerOp map[int]int) ([]int, error) {
	n := len(ops)
	successors := make([][]int, n)
	for opIdx, op := range ops {
		for _, in := range op.Inputs {
			if prodIdx, ok := producerOp[in]; ok {
				successors[prodIdx] = append(successors[prodIdx], opIdx)
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, n)
	order := make([]int, 0, n)

	var visit func(int) error
	visit = func(u int) error {
		color[u] = gray
		for _, v := range successors[u] {
			switch color[v] {
			case gray:
				return fmt.Errorf("subgraph: topoSort: cycle detected at operator %d", v)
			case white:
				if err := visit(v); err != nil {
					return err
				}
			}
		}
		color[u] = black
		order = append(order, u)
		return nil
	}

	for i := 0; i < n; i++ {
		if color[i] == white {
			if err := visit(i); err != nil {
				return nil, err
			}
		}
	}

	// visit appends in post-order (successors-first); reverse to get a
	// valid execution order (producers before consumers).
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

func wholeGraphHash(ops []operator.Operator, producerOp map[int]int) uint64 {
	h := fnv.New64a()
	var b [8]byte
	writeU64 := func(v uint64) {
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	for i := range ops {
		op := &ops[i]
		writeU64(op.Hash())
		for _, in := range op.Inputs {
			writeU64(uint64(in))
		}
		for _, out := range op.Outputs {
			writeU64(uint64(out))
		}
	}
	return h.Sum64()
}
