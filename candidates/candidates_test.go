package candidates

import (
	"testing"

	"github.com/itohio/subgraphopt/classify"
	"github.com/itohio/subgraphopt/operator"
	"github.com/itohio/subgraphopt/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryReturnsNilForEmptyAndOthers(t *testing.T) {
	assert.Nil(t, Library(classify.Empty))
	assert.Nil(t, Library(classify.Others))
}

func TestLibraryCoversEveryNonTrivialKind(t *testing.T) {
	kinds := []classify.Kind{
		classify.NormalConv, classify.Conv1x1, classify.NormalOddConv,
		classify.DilatedConv, classify.TransKernelConv, classify.GroupConv,
		classify.TransposeGroupConv, classify.NormalMatmul, classify.BatchMatmul,
	}
	for _, k := range kinds {
		assert.NotEmpty(t, Library(k), "kind %s should have a non-empty template library", k)
	}
}

func TestTransposeTemplateSwapsLastTwoAxes(t *testing.T) {
	tmpl := transposeTemplate("swap", operator.NoSemantic, operator.Pre, 3)
	params, err := tmpl.NewParams(nil, []tensor.Shape{tensor.NewShape(1, 2, 3, 4)})
	require.NoError(t, err)
	tp := params.(operator.TransposeParams)
	assert.Equal(t, []int{0, 1, 3, 2}, tp.Perm)
	assert.Equal(t, -1, tp.SplitAxis)
}

func TestConvStrideVariantOverridesStrideOnly(t *testing.T) {
	tmpl := convStrideVariant("stride_2_1", 2, 1)
	base := operator.ConvParams{PadH: 1, PadW: 1, StrideH: 1, StrideW: 1, DilationH: 1, DilationW: 1, HasBias: true}
	params, err := tmpl.NewParams(base, nil)
	require.NoError(t, err)
	cp := params.(operator.ConvParams)
	assert.Equal(t, 2, cp.StrideH)
	assert.Equal(t, 1, cp.StrideW)
	assert.Equal(t, 1, cp.PadH)
	assert.True(t, cp.HasBias)
}

func TestConvStrideVariantRejectsWrongBaseType(t *testing.T) {
	tmpl := convStrideVariant("stride_2_1", 2, 1)
	_, err := tmpl.NewParams("not conv params", nil)
	assert.Error(t, err)
}

func TestNormalMatmulLibraryTransAandTransBCombinations(t *testing.T) {
	lib := normalMatmulLibrary()
	seen := map[[2]bool]bool{}
	for _, tmpl := range lib {
		if tmpl.OpKind != operator.Matmul {
			continue
		}
		params, err := tmpl.NewParams(nil, nil)
		require.NoError(t, err)
		mp := params.(operator.MatmulParams)
		seen[[2]bool{mp.TransA, mp.TransB}] = true
	}
	assert.Len(t, seen, 4)
}

func TestNormalMatmulLibraryTransposeLastTwoFindsValidPermutation(t *testing.T) {
	lib := normalMatmulLibrary()
	var found bool
	for _, tmpl := range lib {
		if tmpl.Name != "transpose_last_two" {
			continue
		}
		found = true
		params, err := tmpl.NewParams(nil, []tensor.Shape{tensor.NewShape(2, 3, 4, 5)})
		require.NoError(t, err)
		tp := params.(operator.TransposeParams)
		assert.True(t, matchesLastTwoSwap(tp.Perm, 4))
	}
	assert.True(t, found)
}

func TestGroupConvLibrarySplitAxis1GCD(t *testing.T) {
	lib := groupConvLibrary()
	for _, tmpl := range lib {
		if tmpl.Name != "split_axis1_gcd" {
			continue
		}
		params, err := tmpl.NewParams(nil, []tensor.Shape{tensor.NewShape(1, 8, 4, 4)})
		require.NoError(t, err)
		sp := params.(operator.SplitParams)
		sum := 0
		for _, s := range sp.Sizes {
			sum += s
		}
		assert.Equal(t, 8, sum)
	}
}

func TestGcdInt(t *testing.T) {
	assert.Equal(t, 4, gcdInt(8, 12))
	assert.Equal(t, 1, gcdInt(7, 3))
	assert.Equal(t, 5, gcdInt(5, 0))
}
