package evaluation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmoon-ch/unchain/pkg/models"
)

func TestAllocateVariant_Deterministic(t *testing.T) {
	variants := []models.Variant{
		{Name: "control", Weight: 500},
		{Name: "treatment", Weight: 500},
	}

	first := AllocateVariant(variants, "checkout", "user-42")
	require.NotNil(t, first)
	for i := 0; i < 100; i++ {
		got := AllocateVariant(variants, "checkout", "user-42")
		require.NotNil(t, got)
		assert.Equal(t, first.Name, got.Name)
	}
}

func TestAllocateVariant_EvenSplit(t *testing.T) {
	// 500/500 permille: across many users both variants must be hit and the
	// split should be roughly even.
	variants := []models.Variant{
		{Name: "control", Weight: 500},
		{Name: "treatment", Weight: 500},
	}

	counts := map[string]int{}
	total := 2000
	for i := 0; i < total; i++ {
		v := AllocateVariant(variants, "checkout", fmt.Sprintf("user-%d", i))
		require.NotNil(t, v)
		counts[v.Name]++
	}

	assert.Len(t, counts, 2)
	for name, n := range counts {
		assert.Greater(t, n, total*35/100, "variant %s under-allocated", name)
		assert.Less(t, n, total*65/100, "variant %s over-allocated", name)
	}
}

func TestAllocateVariant_ProportionalWithoutNormalization(t *testing.T) {
	// Weights 300/100 do not sum to 1000; allocation is proportional over
	// the actual total, so roughly 75/25.
	variants := []models.Variant{
		{Name: "big", Weight: 300},
		{Name: "small", Weight: 100},
	}

	counts := map[string]int{}
	total := 2000
	for i := 0; i < total; i++ {
		v := AllocateVariant(variants, "g", fmt.Sprintf("user-%d", i))
		require.NotNil(t, v)
		counts[v.Name]++
	}

	assert.Greater(t, counts["big"], counts["small"])
	assert.Greater(t, counts["small"], 0)
}

func TestAllocateVariant_Edges(t *testing.T) {
	assert.Nil(t, AllocateVariant(nil, "g", "user-1"))
	assert.Nil(t, AllocateVariant([]models.Variant{}, "g", "user-1"))
	assert.Nil(t, AllocateVariant([]models.Variant{{Name: "a", Weight: 0}}, "g", "user-1"))
	assert.Nil(t, AllocateVariant([]models.Variant{{Name: "a", Weight: 100}}, "g", ""))

	only := AllocateVariant([]models.Variant{{Name: "a", Weight: 1}}, "g", "user-1")
	require.NotNil(t, only)
	assert.Equal(t, "a", only.Name)
}

func TestAllocateVariant_ZeroWeightNeverAllocated(t *testing.T) {
	variants := []models.Variant{
		{Name: "dead", Weight: 0},
		{Name: "live", Weight: 100},
	}

	for i := 0; i < 500; i++ {
		v := AllocateVariant(variants, "g", fmt.Sprintf("user-%d", i))
		require.NotNil(t, v)
		assert.Equal(t, "live", v.Name)
	}
}

func TestVariantStickiness(t *testing.T) {
	assert.Equal(t, DefaultStickiness, VariantStickiness(nil))
	assert.Equal(t, DefaultStickiness, VariantStickiness([]models.Variant{{Name: "a"}}))
	assert.Equal(t, "customerId", VariantStickiness([]models.Variant{
		{Name: "a"},
		{Name: "b", Stickiness: "customerId"},
	}))
}
