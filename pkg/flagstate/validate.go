package flagstate

import (
	"fmt"
	"strconv"

	"github.com/redmoon-ch/unchain/pkg/models"
)

// ValidateStrategy checks a strategy instance against its catalog definition
// and the context field registry. contextFields maps registered field names
// to their registry entries.
func ValidateStrategy(strategy *models.Strategy, def *models.StrategyDefinition, contextFields map[string]models.ContextField) error {
	params := strategy.Parameters.GetValue()

	for _, pd := range def.Parameters.GetValue() {
		value, present := params[pd.Name]
		if !present || value == "" {
			if pd.Required {
				return fmt.Errorf("strategy %s: required parameter %s is missing", strategy.StrategyName, pd.Name)
			}
			continue
		}
		if err := validateParameterValue(pd, value); err != nil {
			return fmt.Errorf("strategy %s: %w", strategy.StrategyName, err)
		}
	}

	if err := ValidateConstraints(strategy.Constraints.GetValue(), contextFields); err != nil {
		return err
	}

	return ValidateVariants(strategy.Variants.GetValue())
}

func validateParameterValue(pd models.ParameterDefinition, value string) error {
	switch pd.Type {
	case models.ParameterTypePercentage:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 || n > 100 {
			return fmt.Errorf("parameter %s must be a percentage between 0 and 100, got %q", pd.Name, value)
		}
	case models.ParameterTypeNumber:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("parameter %s must be a number, got %q", pd.Name, value)
		}
	case models.ParameterTypeBoolean:
		if value != "true" && value != "false" {
			return fmt.Errorf("parameter %s must be true or false, got %q", pd.Name, value)
		}
	}
	// string and list values accept any string
	return nil
}

// ValidateConstraints checks that every constraint references a registered
// context field and a known operator.
func ValidateConstraints(constraints []models.Constraint, contextFields map[string]models.ContextField) error {
	for _, c := range constraints {
		if c.ContextName == "" {
			return fmt.Errorf("constraint is missing a context field name")
		}
		if _, ok := contextFields[c.ContextName]; !ok {
			return fmt.Errorf("constraint references unknown context field %s", c.ContextName)
		}
		if !models.ValidOperator(c.Operator) {
			return fmt.Errorf("constraint on %s uses unknown operator %s", c.ContextName, c.Operator)
		}
		if len(c.Values) == 0 {
			return fmt.Errorf("constraint on %s has no values", c.ContextName)
		}
	}
	return nil
}

// ValidateVariants checks variant names and weights. Weights are permille
// values; allocation is proportional over the actual total, so the total
// does not have to reach 1000.
func ValidateVariants(variants []models.Variant) error {
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if v.Name == "" {
			return fmt.Errorf("variant is missing a name")
		}
		if seen[v.Name] {
			return fmt.Errorf("duplicate variant name %s", v.Name)
		}
		seen[v.Name] = true
		if v.Weight < 0 || v.Weight > 1000 {
			return fmt.Errorf("variant %s weight must be between 0 and 1000, got %d", v.Name, v.Weight)
		}
	}
	return nil
}
