package flagstate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
)

func registry(names ...string) map[string]models.ContextField {
	m := make(map[string]models.ContextField, len(names))
	for _, n := range names {
		m[n] = models.ContextField{Name: n}
	}
	return m
}

func rolloutDefinition() *models.StrategyDefinition {
	return &models.StrategyDefinition{
		Name: "flexibleRollout",
		Parameters: database.JSONB[[]models.ParameterDefinition]{Data: []models.ParameterDefinition{
			{Name: "percentage", Type: models.ParameterTypePercentage, Required: true},
			{Name: "stickiness", Type: models.ParameterTypeString},
			{Name: "groupId", Type: models.ParameterTypeString},
		}},
	}
}

func TestValidateStrategy(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]string
		wantErr string
	}{
		{
			name:   "valid",
			params: map[string]string{"percentage": "25", "stickiness": "userId"},
		},
		{
			name:    "missing required parameter",
			params:  map[string]string{"stickiness": "userId"},
			wantErr: "required parameter percentage is missing",
		},
		{
			name:    "percentage out of range",
			params:  map[string]string{"percentage": "150"},
			wantErr: "percentage between 0 and 100",
		},
		{
			name:    "percentage not a number",
			params:  map[string]string{"percentage": "lots"},
			wantErr: "percentage between 0 and 100",
		},
		{
			name:   "optional parameter absent",
			params: map[string]string{"percentage": "100"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := &models.Strategy{
				StrategyName: "flexibleRollout",
				Parameters:   database.JSONB[map[string]string]{Data: tt.params},
			}
			err := ValidateStrategy(strategy, rolloutDefinition(), registry("userId"))
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateParameterTypes(t *testing.T) {
	def := &models.StrategyDefinition{
		Name: "custom",
		Parameters: database.JSONB[[]models.ParameterDefinition]{Data: []models.ParameterDefinition{
			{Name: "threshold", Type: models.ParameterTypeNumber},
			{Name: "active", Type: models.ParameterTypeBoolean},
			{Name: "hosts", Type: models.ParameterTypeList},
		}},
	}

	valid := &models.Strategy{
		StrategyName: "custom",
		Parameters: database.JSONB[map[string]string]{Data: map[string]string{
			"threshold": "0.75",
			"active":    "true",
			"hosts":     "a,b,c",
		}},
	}
	assert.NoError(t, ValidateStrategy(valid, def, registry()))

	badNumber := &models.Strategy{
		StrategyName: "custom",
		Parameters:   database.JSONB[map[string]string]{Data: map[string]string{"threshold": "high"}},
	}
	assert.ErrorContains(t, ValidateStrategy(badNumber, def, registry()), "must be a number")

	badBool := &models.Strategy{
		StrategyName: "custom",
		Parameters:   database.JSONB[map[string]string]{Data: map[string]string{"active": "yes"}},
	}
	assert.ErrorContains(t, ValidateStrategy(badBool, def, registry()), "must be true or false")
}

func TestValidateConstraints(t *testing.T) {
	fields := registry("userId", "region")

	assert.NoError(t, ValidateConstraints([]models.Constraint{
		{ContextName: "region", Operator: models.OperatorIn, Values: []string{"emea"}},
	}, fields))

	err := ValidateConstraints([]models.Constraint{
		{ContextName: "tenant", Operator: models.OperatorIn, Values: []string{"x"}},
	}, fields)
	assert.ErrorContains(t, err, "unknown context field tenant")

	err = ValidateConstraints([]models.Constraint{
		{ContextName: "region", Operator: "MATCHES", Values: []string{"x"}},
	}, fields)
	assert.ErrorContains(t, err, "unknown operator MATCHES")

	err = ValidateConstraints([]models.Constraint{
		{ContextName: "region", Operator: models.OperatorIn},
	}, fields)
	assert.ErrorContains(t, err, "no values")
}

func TestValidateVariants(t *testing.T) {
	assert.NoError(t, ValidateVariants([]models.Variant{
		{Name: "control", Weight: 500},
		{Name: "treatment", Weight: 500},
	}))

	assert.ErrorContains(t, ValidateVariants([]models.Variant{
		{Name: "control", Weight: 500},
		{Name: "control", Weight: 500},
	}), "duplicate variant name")

	assert.ErrorContains(t, ValidateVariants([]models.Variant{
		{Name: "control", Weight: 1500},
	}), "between 0 and 1000")

	assert.ErrorContains(t, ValidateVariants([]models.Variant{
		{Weight: 100},
	}), "missing a name")
}
