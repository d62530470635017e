// Package candidates supplies, for each classify.Kind, the fixed list of
// operator templates the search driver tries to append during DFS
// expansion. A template names an operator kind, its binding arity, a
// recommended max depth, and a factory that derives concrete Params from
// the shapes of the tensors the driver is about to bind as
// inputs (and, where one exists, the original operator's Params being
// varied).
package candidates

import (
	"fmt"

	"github.com/itohio/subgraphopt/classify"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
	"gonum.org/v1/gonum/stat/combin"
)

// Arity describes how the search driver enumerates bindings for a template.
type Arity int

const (
	Unary Arity = iota
	Binary
	SplitArity
	ConcatArity
)

// ParamsFactory derives concrete operator Params from the shapes of the
// tensors bound as inputs. base is the original operator's Params when the
// template varies an existing operator (e.g. a stride variant of the
// original Conv), or nil when the template introduces fresh Params.
type ParamsFactory func(base any, shapes []tensor.Shape) (any, error)

// Template is one entry in a shape-kind's candidate-op library.
type Template struct {
	Name      string
	OpKind    operator.Kind
	Arity     Arity
	GroupSize int // only meaningful for ConcatArity
	MaxDepth  int
	NewParams ParamsFactory
}

// Library returns the candidate-op templates for kind.
func Library(kind classify.Kind) []Template {
	switch kind {
	case classify.NormalConv:
		return normalConvLibrary()
	case classify.Conv1x1:
		return conv1x1Library()
	case classify.NormalOddConv:
		return normalOddConvLibrary()
	case classify.DilatedConv:
		return normalConvLibrary()
	case classify.TransKernelConv:
		return transKernelConvLibrary()
	case classify.GroupConv:
		return groupConvLibrary()
	case classify.TransposeGroupConv:
		return groupConvLibrary()
	case classify.NormalMatmul:
		return normalMatmulLibrary()
	case classify.BatchMatmul:
		return normalMatmulLibrary()
	default:
		return nil
	}
}

// transposeTemplate builds a Transpose template whose permutation swaps the
// last two axes of its input. semantic and tag are attached to the params as
// metadata only; they do not change the permutation, so every template built
// here (N2H, C2W, ...) performs the same last-two-axes swap.
func transposeTemplate(name string, semantic operator.TransposeSemantic, tag operator.TransposeTag, maxDepth int) Template {
	return Template{
		Name:     name,
		OpKind:   operator.Transpose,
		Arity:    Unary,
		MaxDepth: maxDepth,
		NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
			if len(shapes) != 1 {
				return nil, fmt.Errorf("candidates: %s: expected 1 shape, got %d", name, len(shapes))
			}
			rank := shapes[0].Rank()
			if rank < 2 {
				return nil, fmt.Errorf("candidates: %s: rank %d too small for transpose", name, rank)
			}
			perm := make([]int, rank)
			for i := range perm {
				perm[i] = i
			}
			perm[rank-2], perm[rank-1] = perm[rank-1], perm[rank-2]
			return operator.TransposeParams{
				Perm:        perm,
				SplitAxis:   -1,
				SplitFactor: 0,
				Semantic:    semantic,
				Tag:         tag,
			}, nil
		},
	}
}

func convStrideVariant(name string, strideH, strideW int) Template {
	return Template{
		Name:     name,
		OpKind:   operator.Conv,
		Arity:    Binary,
		MaxDepth: 3,
		NewParams: func(base any, shapes []tensor.Shape) (any, error) {
			p, ok := base.(operator.ConvParams)
			if !ok {
				return nil, fmt.Errorf("candidates: %s: base params are not ConvParams", name)
			}
			p.StrideH, p.StrideW = strideH, strideW
			return p, nil
		},
	}
}

func normalConvLibrary() []Template {
	return []Template{
		transposeTemplate("N2H", operator.N2H, operator.Pre, 3),
		transposeTemplate("H2N", operator.H2N, operator.Post, 3),
		transposeTemplate("C2H", operator.C2H, operator.Pre, 3),
		transposeTemplate("C2W", operator.C2W, operator.Post, 3),
		convStrideVariant("stride_2_1", 2, 1),
		convStrideVariant("stride_1_2", 1, 2),
		convStrideVariant("stride_2_2", 2, 2),
		{
			Name:     "original_conv",
			OpKind:   operator.Conv,
			Arity:    Binary,
			MaxDepth: 3,
			NewParams: func(base any, _ []tensor.Shape) (any, error) {
				p, ok := base.(operator.ConvParams)
				if !ok {
					return nil, fmt.Errorf("candidates: original_conv: base params are not ConvParams")
				}
				return p, nil
			},
		},
	}
}

func conv1x1Library() []Template {
	return []Template{
		{
			Name:     "original_conv",
			OpKind:   operator.Conv,
			Arity:    Binary,
			MaxDepth: 3,
			NewParams: func(base any, _ []tensor.Shape) (any, error) {
				p, ok := base.(operator.ConvParams)
				if !ok {
					return nil, fmt.Errorf("candidates: conv1x1: base params are not ConvParams")
				}
				return p, nil
			},
		},
		transposeTemplate("C2H", operator.C2H, operator.Pre, 3),
		transposeTemplate("C2W", operator.C2W, operator.Post, 3),
	}
}

func normalOddConvLibrary() []Template {
	return []Template{
		{
			Name:     "pad_plus1",
			OpKind:   operator.Pad,
			Arity:    Unary,
			MaxDepth: 4,
			NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
				rank := shapes[0].Rank()
				begin := make([]int, rank)
				end := make([]int, rank)
				end[rank-2] = 1
				end[rank-1] = 1
				return operator.PadParams{Begin: begin, End: end}, nil
			},
		},
		{
			Name:     "slice_plus1",
			OpKind:   operator.Slice,
			Arity:    Unary,
			MaxDepth: 4,
			NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
				rank := shapes[0].Rank()
				begin := make([]int, rank)
				end := make([]int, rank)
				for d := 0; d < rank; d++ {
					end[d] = shapes[0][d]
				}
				end[rank-2]++
				end[rank-1]++
				return operator.SliceParams{Begin: begin, End: end}, nil
			},
		},
		{
			Name:     "original_conv",
			OpKind:   operator.Conv,
			Arity:    Binary,
			MaxDepth: 4,
			NewParams: func(base any, _ []tensor.Shape) (any, error) {
				p, ok := base.(operator.ConvParams)
				if !ok {
					return nil, fmt.Errorf("candidates: normal_odd_conv: base params are not ConvParams")
				}
				return p, nil
			},
		},
	}
}

func transKernelConvLibrary() []Template {
	return []Template{
		transposeTemplate("swap_last_two", operator.NoSemantic, operator.Pre, 3),
		{
			Name:     "original_conv",
			OpKind:   operator.Conv,
			Arity:    Binary,
			MaxDepth: 3,
			NewParams: func(base any, _ []tensor.Shape) (any, error) {
				p, ok := base.(operator.ConvParams)
				if !ok {
					return nil, fmt.Errorf("candidates: trans_kernel_conv: base params are not ConvParams")
				}
				return p, nil
			},
		},
	}
}

func groupConvLibrary() []Template {
	return []Template{
		{
			Name:     "original_conv_clone",
			OpKind:   operator.Conv,
			Arity:    Binary,
			MaxDepth: 3,
			NewParams: func(base any, _ []tensor.Shape) (any, error) {
				p, ok := base.(operator.ConvParams)
				if !ok {
					return nil, fmt.Errorf("candidates: group_conv: base params are not ConvParams")
				}
				return p, nil
			},
		},
		{
			Name:      "concat_axis0",
			OpKind:    operator.Concat,
			Arity:     ConcatArity,
			GroupSize: 2,
			MaxDepth:  3,
			NewParams: func(_ any, _ []tensor.Shape) (any, error) {
				return operator.ConcatParams{Axis: 0, GroupSize: 2}, nil
			},
		},
		{
			Name:      "concat_axis1",
			OpKind:    operator.Concat,
			Arity:     ConcatArity,
			GroupSize: 2,
			MaxDepth:  3,
			NewParams: func(_ any, _ []tensor.Shape) (any, error) {
				return operator.ConcatParams{Axis: 1, GroupSize: 2}, nil
			},
		},
		{
			Name:     "split_axis1_gcd",
			OpKind:   operator.Split,
			Arity:    SplitArity,
			MaxDepth: 3,
			NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
				if len(shapes) != 1 {
					return nil, fmt.Errorf("candidates: split_axis1_gcd: expected 1 shape, got %d", len(shapes))
				}
				total := shapes[0][1]
				g := gcdInt(total, total/2)
				if g <= 0 || total%g != 0 {
					g = total
				}
				n := total / g
				sizes := make([]int, n)
				for i := range sizes {
					sizes[i] = g
				}
				return operator.SplitParams{Axis: 1, Sizes: sizes}, nil
			},
		},
	}
}

func normalMatmulLibrary() []Template {
	templates := make([]Template, 0, 5)
	for _, ta := range []bool{false, true} {
		for _, tb := range []bool{false, true} {
			ta, tb := ta, tb
			name := fmt.Sprintf("matmul_transA_%v_transB_%v", ta, tb)
			templates = append(templates, Template{
				Name:     name,
				OpKind:   operator.Matmul,
				Arity:    Binary,
				MaxDepth: 3,
				NewParams: func(base any, _ []tensor.Shape) (any, error) {
					p, ok := base.(operator.MatmulParams)
					if !ok {
						p = operator.MatmulParams{}
					}
					p.TransA, p.TransB = ta, tb
					return p, nil
				},
			})
		}
	}
	templates = append(templates, Template{
		Name:     "transpose_last_two",
		OpKind:   operator.Transpose,
		Arity:    Unary,
		MaxDepth: 3,
		NewParams: func(_ any, shapes []tensor.Shape) (any, error) {
			if len(shapes) != 1 {
				return nil, fmt.Errorf("candidates: transpose_last_two: expected 1 shape, got %d", len(shapes))
			}
			rank := shapes[0].Rank()
			if rank < 2 {
				return nil, fmt.Errorf("candidates: transpose_last_two: rank %d too small", rank)
			}
			// gonum's combin enumerates every full permutation of the rank;
			// keep only the one swapping the last two axes (all leading
			// axes fixed).
			perms := combin.Permutations(rank, rank)
			for _, perm := range perms {
				if matchesLastTwoSwap(perm, rank) {
					return operator.TransposeParams{Perm: perm, SplitAxis: -1}, nil
				}
			}
			return nil, fmt.Errorf("candidates: transpose_last_two: no matching permutation found")
		},
	})
	return templates
}

func matchesLastTwoSwap(perm []int, rank int) bool {
	for i := 0; i < rank-2; i++ {
		if perm[i] != i {
			return false
		}
	}
	return perm[rank-2] == rank-1 && perm[rank-1] == rank-2
}

func gcdInt(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
