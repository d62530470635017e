package search

import (
	"fmt"
	"math/rand"

	"github.com/itohio/subgraphopt/candidates"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/reciprocity"
	"github.com/itohio/subgraphopt/subgraph"
	"github.com/itohio/subgraphopt/tensor"
	"github.com/itohio/subgraphopt/verify"
	"gonum.org/v1/gonum/stat/combin"
)

// discoverReciprocityChains runs the identity-subgraph DFS restricted to
// Transpose candidates, recording every accepted chain's operator-hash
// sequence into a fresh Store.
func discoverReciprocityChains(rng *rand.Rand) *reciprocity.Store {
	store := reciprocity.NewStore()

	pool := reciprocity.IdentityInput()
	pool.Get(0).Fill(func(i int) int32 { return int32(i + 1) })
	sg := subgraph.New(pool)
	if err := sg.ResetOps(nil, pool.NumValid()); err != nil {
		return store
	}

	ref, ok := verify.BuildReference(sg, rng)
	if !ok {
		return store
	}

	templates := identityTransposeTemplates(pool.Get(0).Shape().Rank())

	sub := &state{
		sg:            sg,
		opList:        nil,
		threshold:     reciprocity.Threshold,
		maxDepth:      reciprocity.MaxReciprocityDetectDepth,
		numReserveOps: 0,
		origOutputs:   sg.Outputs(),
		origShapes:    shapesOf(sg, sg.Outputs()),
		visited:       make(map[uint64]bool),
		recipStore:    reciprocity.NewStore(), // empty: the identity search itself is unpruned
		ref:           ref,
		templates:     templates,
		rng:           rng,
	}
	sub.dfs(0)

	for _, mutant := range sub.results {
		chain := make(reciprocity.Chain, 0, len(mutant.Ops()))
		for _, opIdx := range mutant.Order() {
			chain = append(chain, mutant.Ops()[opIdx].Hash())
		}
		store.Add(chain)
	}
	return store
}

// identityTransposeTemplates builds one fixed-permutation Transpose
// template per non-identity permutation of rank, the candidate set the
// reciprocity search expands with: any such permutation, followed later by
// its inverse, is a 2-step chain the DFS can find within
// reciprocity.MaxReciprocityDetectDepth.
func identityTransposeTemplates(rank int) []candidates.Template {
	perms := combin.Permutations(rank, rank)
	templates := make([]candidates.Template, 0, len(perms))
	for i, perm := range perms {
		if isIdentityPerm(perm) {
			continue
		}
		perm := perm
		templates = append(templates, candidates.Template{
			Name:     fmt.Sprintf("reciprocity_perm_%d", i),
			OpKind:   operator.Transpose,
			Arity:    candidates.Unary,
			MaxDepth: reciprocity.MaxReciprocityDetectDepth,
			NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
				if shapes[0].Rank() != len(perm) {
					return nil, fmt.Errorf("search: reciprocity template: rank mismatch")
				}
				return operator.TransposeParams{Perm: append([]int(nil), perm...), SplitAxis: -1}, nil
			},
		})
	}
	return templates
}

func isIdentityPerm(perm []int) bool {
	for i, p := range perm {
		if p != i {
			return false
		}
	}
	return true
}

func shapesOf(sg *subgraph.Subgraph, outs []int) map[int]tensor.Shape {
	m := make(map[int]tensor.Shape, len(outs))
	for _, idx := range outs {
		m[idx] = sg.Pool().Get(idx).Shape()
	}
	return m
}
