package search

// tryEmit verifies the current frame against the sampled reference and, on
// acceptance, clones it into an independent result subgraph. Output
// correspondence between the original input and the current frame is
// positional-by-index: CloneInto preserves tensor indices 1:1, so an
// original output tensor index is also the candidate's output tensor
// index whenever that tensor is still live and uncounted-free in the
// frame.
func (st *state) tryEmit() {
	candidatePool := st.sg.Pool()
	outputMap := make(map[int]int, len(st.origOutputs))
	for _, origOut := range st.origOutputs {
		if origOut >= candidatePool.NumValid() {
			return
		}
		outputMap[origOut] = origOut
	}

	for origOut := range outputMap {
		origShape := st.origShapes[origOut]
		candShape := candidatePool.Get(origOut).Shape()
		if origShape.Rank() != candShape.Rank() || !origShape.Equal(candShape) {
			return
		}
	}

	if !st.ref.Accept(st.sg, outputMap, st.threshold) {
		return
	}

	mutant := st.sg.CloneInto()
	st.results = append(st.results, mutant)
}
