package evaluation

import (
	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/models"
)

// FeatureSnapshot is the immutable view of a feature in one environment that
// the evaluator consumes. The read path builds snapshots and never mutates
// them, so evaluation needs no locks.
type FeatureSnapshot struct {
	Feature    models.Feature    `json:"feature"`
	Enabled    bool              `json:"enabled"`
	Strategies []models.Strategy `json:"strategies"`
}

// Result is the outcome of evaluating one feature against one context.
type Result struct {
	FeatureName string          `json:"feature"`
	Enabled     bool            `json:"enabled"`
	Variant     *models.Variant `json:"variant,omitempty"`
	Impression  bool            `json:"impression"`
}

// EvaluateFeature evaluates a feature snapshot against a context. Strategies
// run in their stored order and the first satisfied one wins; a feature with
// no strategies in an enabled environment is enabled for everyone. All edge
// cases resolve to no variant, never a panic.
func EvaluateFeature(snap FeatureSnapshot, ctx *Context) Result {
	result := Result{
		FeatureName: snap.Feature.Name,
		Impression:  snap.Feature.ImpressionData,
	}

	if snap.Feature.Archived || !snap.Enabled {
		return result
	}

	var matched *models.Strategy
	if len(snap.Strategies) == 0 {
		result.Enabled = true
	} else {
		for i := range snap.Strategies {
			if StrategySatisfied(snap.Strategies[i], snap.Feature.Name, ctx) {
				result.Enabled = true
				matched = &snap.Strategies[i]
				break
			}
		}
	}

	if !result.Enabled {
		return result
	}

	variants := snap.Feature.Variants.GetValue()
	if matched != nil && len(matched.Variants.GetValue()) > 0 {
		variants = matched.Variants.GetValue()
	}
	if len(variants) == 0 {
		return result
	}

	stickiness := VariantStickiness(variants)
	key, ok := ctx.StickinessValue(stickiness)
	if !ok {
		// No sticky key available: allocate on a random per-request key so
		// the distribution still holds, just without stickiness.
		key = uuid.New().String()
	}

	result.Variant = AllocateVariant(variants, snap.Feature.Name, key)
	return result
}
