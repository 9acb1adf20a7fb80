package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
)

func variants(vs ...models.Variant) database.JSONB[[]models.Variant] {
	return database.JSONB[[]models.Variant]{Data: vs}
}

func TestEvaluateFeature_DisabledEnvironment(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: false,
		Strategies: []models.Strategy{
			{StrategyName: StrategyDefault},
		},
	}

	result := EvaluateFeature(snap, &Context{UserID: "u1"})
	assert.False(t, result.Enabled)
	assert.Nil(t, result.Variant)
}

func TestEvaluateFeature_ArchivedNeverEnabled(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout", Archived: true},
		Enabled: true,
	}

	assert.False(t, EvaluateFeature(snap, &Context{}).Enabled)
}

func TestEvaluateFeature_NoStrategiesMeansFullRollout(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: true,
	}

	assert.True(t, EvaluateFeature(snap, &Context{}).Enabled)
}

func TestEvaluateFeature_FirstMatchWins(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: true,
		Strategies: []models.Strategy{
			{
				StrategyName: StrategyUserWithID,
				Parameters:   params(map[string]string{"userIds": "alice"}),
				Variants:     variants(models.Variant{Name: "vip", Weight: 1000}),
			},
			{
				StrategyName: StrategyDefault,
				Variants:     variants(models.Variant{Name: "everyone", Weight: 1000}),
			},
		},
	}

	alice := EvaluateFeature(snap, &Context{UserID: "alice"})
	require.True(t, alice.Enabled)
	require.NotNil(t, alice.Variant)
	assert.Equal(t, "vip", alice.Variant.Name)

	bob := EvaluateFeature(snap, &Context{UserID: "bob"})
	require.True(t, bob.Enabled)
	require.NotNil(t, bob.Variant)
	assert.Equal(t, "everyone", bob.Variant.Name)
}

func TestEvaluateFeature_DisabledStrategySkipped(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: true,
		Strategies: []models.Strategy{
			{StrategyName: StrategyDefault, Disabled: true},
		},
	}

	// The only strategy is disabled, so no strategy matches.
	assert.False(t, EvaluateFeature(snap, &Context{UserID: "u1"}).Enabled)
}

func TestEvaluateFeature_NoMatchNoVariant(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{
			Name:     "checkout",
			Variants: variants(models.Variant{Name: "v", Weight: 1000}),
		},
		Enabled: true,
		Strategies: []models.Strategy{
			{
				StrategyName: StrategyUserWithID,
				Parameters:   params(map[string]string{"userIds": "alice"}),
			},
		},
	}

	result := EvaluateFeature(snap, &Context{UserID: "bob"})
	assert.False(t, result.Enabled)
	assert.Nil(t, result.Variant)
}

func TestEvaluateFeature_FeatureVariantsFallback(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{
			Name:     "checkout",
			Variants: variants(models.Variant{Name: "feature-default", Weight: 1000}),
		},
		Enabled: true,
		Strategies: []models.Strategy{
			{StrategyName: StrategyDefault},
		},
	}

	result := EvaluateFeature(snap, &Context{UserID: "u1"})
	require.True(t, result.Enabled)
	require.NotNil(t, result.Variant)
	assert.Equal(t, "feature-default", result.Variant.Name)
}

func TestEvaluateFeature_NoVariantsConfigured(t *testing.T) {
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: true,
		Strategies: []models.Strategy{
			{StrategyName: StrategyDefault},
		},
	}

	result := EvaluateFeature(snap, &Context{UserID: "u1"})
	assert.True(t, result.Enabled)
	assert.Nil(t, result.Variant)
}

func TestEvaluateFeature_MissingStickinessStillAllocates(t *testing.T) {
	// No userId or sessionId: variant allocation falls back to a random
	// per-request key instead of returning no variant.
	snap := FeatureSnapshot{
		Feature: models.Feature{
			Name: "checkout",
			Variants: variants(
				models.Variant{Name: "a", Weight: 500},
				models.Variant{Name: "b", Weight: 500},
			),
		},
		Enabled: true,
	}

	result := EvaluateFeature(snap, &Context{})
	assert.True(t, result.Enabled)
	assert.NotNil(t, result.Variant)
}

func TestEvaluateFeature_Impression(t *testing.T) {
	on := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout", ImpressionData: true},
		Enabled: true,
	}
	off := FeatureSnapshot{
		Feature: models.Feature{Name: "checkout"},
		Enabled: true,
	}

	assert.True(t, EvaluateFeature(on, &Context{}).Impression)
	assert.False(t, EvaluateFeature(off, &Context{}).Impression)
}

func TestEvaluateFeature_RegionScenario(t *testing.T) {
	// Gradual rollout at 100% constrained to region apac: apac users get the
	// feature, others do not, and a missing region stays off.
	snap := FeatureSnapshot{
		Feature: models.Feature{Name: "new-pricing"},
		Enabled: true,
		Strategies: []models.Strategy{
			{
				StrategyName: StrategyFlexibleRollout,
				Parameters:   params(map[string]string{"percentage": "100"}),
				Constraints: constraints(models.Constraint{
					ContextName: "region",
					Operator:    models.OperatorIn,
					Values:      []string{"apac"},
				}),
			},
		},
	}

	apac := Context{UserID: "u1", Properties: map[string]string{"region": "apac"}}
	emea := Context{UserID: "u1", Properties: map[string]string{"region": "emea"}}
	none := Context{UserID: "u1"}

	assert.True(t, EvaluateFeature(snap, &apac).Enabled)
	assert.False(t, EvaluateFeature(snap, &emea).Enabled)
	assert.False(t, EvaluateFeature(snap, &none).Enabled)
}
