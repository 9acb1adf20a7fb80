package evaluation

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/redmoon-ch/unchain/pkg/models"
)

// AllocateVariant deterministically picks a variant for a stickiness key.
// Weights are proportional over the actual total; they do not have to sum to
// 1000. A nil return means no variant: empty set, all-zero weights, or an
// empty key.
func AllocateVariant(variants []models.Variant, groupID, stickinessKey string) *models.Variant {
	if len(variants) == 0 || stickinessKey == "" {
		return nil
	}

	total := 0
	for _, v := range variants {
		if v.Weight > 0 {
			total += v.Weight
		}
	}
	if total <= 0 {
		return nil
	}

	hash := murmur3.Sum32([]byte(fmt.Sprintf("%s:%s", groupID, stickinessKey)))
	target := int(hash % uint32(total))

	// Walk variants in declared order; the key lands in the first variant
	// whose cumulative weight exceeds the target.
	acc := 0
	for i := range variants {
		if variants[i].Weight <= 0 {
			continue
		}
		acc += variants[i].Weight
		if target < acc {
			return &variants[i]
		}
	}
	return nil
}

// VariantStickiness returns the stickiness field configured on a variant
// set. The first explicit stickiness wins; otherwise the default applies.
func VariantStickiness(variants []models.Variant) string {
	for _, v := range variants {
		if v.Stickiness != "" {
			return v.Stickiness
		}
	}
	return DefaultStickiness
}
