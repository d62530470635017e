package search

import (
	"github.com/itohio/subgraphopt/candidates"
	"github.com/itohio/subgraphopt/internal/logx"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
)

// maxExpandIndex is the tensor-index safety cap DFS expansion never goes
// past once the pool grows large.
const maxExpandIndex = 10

// dfs explores one search frame: it rebuilds connectivity, checks the
// visited set and reciprocity pruning, considers emission, and — depth
// permitting — expands every candidate template's legal bindings.
func (st *state) dfs(depth int) {
	if err := st.sg.ResetOps(st.opList, st.sg.Pool().NumValid()); err != nil {
		return // rejected expansion: dangling tensor, cycle, or duplicate producer
	}

	h := st.sg.Hash()
	if st.visited[h] {
		return
	}
	if st.recipStore.MatchesTail(st.sg.Ops(), producerMap(st.sg.Ops())) {
		logx.Log.Trace().Int("depth", depth).Str("frame", statePruned.String()).Msg("search: reciprocity tail match, pruning frame")
		return
	}
	st.visited[h] = true

	if len(st.opList) > st.numReserveOps {
		logx.Log.Trace().Int("depth", depth).Str("frame", stateEmitting.String()).Msg("search: considering emission")
		st.tryEmit()
	}

	if depth >= st.maxDepth || len(st.opList)-st.numReserveOps >= st.maxDepth {
		logx.Log.Trace().Int("depth", depth).Str("frame", stateCleaned.String()).Msg("search: depth exhausted")
		return
	}

	logx.Log.Trace().Int("depth", depth).Str("frame", stateExpanding.String()).Msg("search: expanding candidate templates")
	groupOffset := 0
	for _, tmpl := range st.templates {
		st.expandTemplate(tmpl, depth, groupOffset)
	}
}

func producerMap(ops []operator.Operator) map[int]int {
	pm := make(map[int]int, len(ops))
	for i, op := range ops {
		for _, out := range op.Outputs {
			pm[out] = i
		}
	}
	return pm
}

func (st *state) expandTemplate(tmpl candidates.Template, depth, groupOffset int) {
	pool := st.sg.Pool()
	limit := pool.NumValid()
	if limit > maxExpandIndex {
		limit = maxExpandIndex
	}

	switch tmpl.Arity {
	case candidates.Unary, candidates.SplitArity:
		for i := groupOffset; i < limit; i++ {
			st.tryBind(tmpl, depth, []int{i})
		}
	case candidates.Binary:
		for i := groupOffset; i < limit; i++ {
			for j := groupOffset; j < limit; j++ {
				st.tryBind(tmpl, depth, []int{i, j})
			}
		}
	case candidates.ConcatArity:
		if group := st.collectConcatGroup(tmpl.GroupSize, groupOffset); group != nil {
			st.tryBind(tmpl, depth, group)
		}
	}
}

// collectConcatGroup gathers one operand group for a Concat template from
// the live tensors at or after groupOffset, trying Input-role tensors first
// and Weight-role tensors second: the first role with exactly groupSize
// members is used as the group, or, if it has a single member, that member
// replicated groupSize times. If neither role qualifies, the template does
// not apply here.
func (st *state) collectConcatGroup(groupSize, groupOffset int) []int {
	pool := st.sg.Pool()
	var inputs, weights []int
	for i := groupOffset; i < pool.NumValid(); i++ {
		switch pool.Get(i).Role() {
		case tensor.Input:
			inputs = append(inputs, i)
		case tensor.Weight:
			weights = append(weights, i)
		}
	}
	for _, group := range [][]int{inputs, weights} {
		if len(group) == groupSize {
			return append([]int(nil), group...)
		}
		if len(group) == 1 {
			out := make([]int, groupSize)
			for i := range out {
				out[i] = group[0]
			}
			return out
		}
	}
	return nil
}

func (st *state) tryBind(tmpl candidates.Template, depth int, inputs []int) {
	pool := st.sg.Pool()

	shapes := make([]tensor.Shape, len(inputs))
	hashes := make([]uint64, len(inputs))
	for i, idx := range inputs {
		shapes[i] = pool.Get(idx).Shape()
		st.ensureCapacity(idx + 1)
		hashes[i] = st.tensorHash[idx]
	}

	params, err := tmpl.NewParams(st.baseParamsFor(tmpl.OpKind), shapes)
	if err != nil {
		return
	}
	op := operator.Operator{Kind: tmpl.OpKind, Inputs: append([]int(nil), inputs...), Params: params}

	if st.isComputeOp(op.Kind) && st.anyComputeAncestor(inputs) {
		return // compute-stacking pruning
	}
	if st.sameOpExists(op, hashes) {
		return // same-op pruning
	}

	outShapes, err := operator.InferShape(&op, shapes)
	if err != nil {
		return // rejected expansion: shape-inference mismatch
	}

	outIdx := make([]int, len(outShapes))
	for i, s := range outShapes {
		outIdx[i] = pool.Push(s.Clone(), tensor.Int32, tensor.Intermediate)
		st.ensureCapacity(outIdx[i] + 1)
	}
	op.Outputs = outIdx

	oHash := op.Hash()
	hasAncestor := st.isComputeOp(op.Kind) || st.anyComputeAncestor(inputs)
	for _, out := range outIdx {
		st.computeAncestor[out] = hasAncestor
		st.tensorHash[out] = tensorHashOf(oHash, hashes)
	}

	savedValid := pool.NumValid() - len(outIdx)
	st.opList = append(st.opList, op)
	st.dfs(depth + 1)
	st.opList = st.opList[:len(st.opList)-1]
	pool.Truncate(savedValid)
}

// baseParamsFor returns the Params of the most recently bound operator of
// kind in the current frame's op list, letting templates that vary an
// existing operator (stride variants, transA/transB flips, same-params
// clones) see what they are varying. Returns nil if no such op exists yet.
func (st *state) baseParamsFor(kind operator.Kind) any {
	for i := len(st.opList) - 1; i >= 0; i-- {
		if st.opList[i].Kind == kind {
			return st.opList[i].Params
		}
	}
	return nil
}

func (st *state) isComputeOp(k operator.Kind) bool {
	return k == operator.Conv || k == operator.Matmul
}

func (st *state) anyComputeAncestor(inputs []int) bool {
	for _, idx := range inputs {
		st.ensureCapacity(idx + 1)
		if st.computeAncestor[idx] {
			return true
		}
	}
	return false
}

func (st *state) sameOpExists(op operator.Operator, inputHashes []uint64) bool {
	h := op.Hash()
	for i := range st.opList {
		existing := &st.opList[i]
		if existing.Hash() != h {
			continue
		}
		if len(existing.Inputs) != len(inputHashes) {
			continue
		}
		same := true
		for k, in := range existing.Inputs {
			st.ensureCapacity(in + 1)
			if st.tensorHash[in] != inputHashes[k] {
				same = false
				break
			}
		}
		if same {
			return true
		}
	}
	return false
}
