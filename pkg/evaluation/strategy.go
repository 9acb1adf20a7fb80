package evaluation

import (
	"fmt"

	"github.com/spaolacci/murmur3"

	"github.com/redmoon-ch/unchain/pkg/models"
)

// Built-in rollout rule names.
const (
	StrategyDefault         = "default"
	StrategyUserWithID      = "userWithId"
	StrategyGradualRollout  = "gradualRollout"
	StrategyFlexibleRollout = "flexibleRollout"
)

// StrategySatisfied reports whether a strategy instance matches the context:
// every constraint holds and the rollout rule for the strategy name is
// satisfied. Unknown strategy names fail closed.
func StrategySatisfied(s models.Strategy, featureName string, ctx *Context) bool {
	if s.Disabled {
		return false
	}
	if !EvaluateConstraints(s.Constraints.GetValue(), ctx) {
		return false
	}
	return rolloutSatisfied(s.StrategyName, s.Parameters.GetValue(), featureName, ctx)
}

func rolloutSatisfied(name string, params map[string]string, featureName string, ctx *Context) bool {
	switch name {
	case StrategyDefault:
		return true
	case StrategyUserWithID:
		if ctx.UserID == "" {
			return false
		}
		for _, id := range ParamList(params, "userIds") {
			if id == ctx.UserID {
				return true
			}
		}
		return false
	case StrategyGradualRollout, StrategyFlexibleRollout:
		percentage := ParamPercentage(params, "percentage")
		if percentage == 0 {
			return false
		}
		if percentage >= 100 {
			return true
		}

		stickiness := ParamString(params, "stickiness", DefaultStickiness)
		value, ok := ctx.StickinessValue(stickiness)
		if !ok {
			// No hashing key means no stable bucket; stay off.
			return false
		}

		groupID := ParamString(params, "groupId", featureName)
		return RolloutBucket(groupID, value) <= percentage
	}
	return false
}

// RolloutBucket buckets a stickiness value into [1, 100] for a group. The
// same (group, value) pair always lands in the same bucket, so a user kept
// at 30% stays enabled when the rollout grows to 50%.
func RolloutBucket(groupID, value string) int {
	hash := murmur3.Sum32([]byte(fmt.Sprintf("%s:%s", groupID, value)))
	return int(hash%100) + 1
}
