package evaluation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/redmoon-ch/unchain/pkg/models"
)

func TestEvaluateConstraint_In(t *testing.T) {
	tests := []struct {
		name       string
		constraint models.Constraint
		ctx        Context
		want       bool
	}{
		{
			name: "value in list",
			constraint: models.Constraint{
				ContextName: "region",
				Operator:    models.OperatorIn,
				Values:      []string{"apac", "emea"},
			},
			ctx:  Context{Properties: map[string]string{"region": "apac"}},
			want: true,
		},
		{
			name: "value not in list",
			constraint: models.Constraint{
				ContextName: "region",
				Operator:    models.OperatorIn,
				Values:      []string{"apac"},
			},
			ctx:  Context{Properties: map[string]string{"region": "emea"}},
			want: false,
		},
		{
			name: "missing value fails",
			constraint: models.Constraint{
				ContextName: "region",
				Operator:    models.OperatorIn,
				Values:      []string{"apac"},
			},
			ctx:  Context{},
			want: false,
		},
		{
			name: "missing value with inverted matches",
			constraint: models.Constraint{
				ContextName: "region",
				Operator:    models.OperatorIn,
				Values:      []string{"apac"},
				Inverted:    true,
			},
			ctx:  Context{},
			want: true,
		},
		{
			name: "case insensitive match",
			constraint: models.Constraint{
				ContextName:     "region",
				Operator:        models.OperatorIn,
				Values:          []string{"APAC"},
				CaseInsensitive: true,
			},
			ctx:  Context{Properties: map[string]string{"region": "apac"}},
			want: true,
		},
		{
			name: "case sensitive mismatch",
			constraint: models.Constraint{
				ContextName: "region",
				Operator:    models.OperatorIn,
				Values:      []string{"APAC"},
			},
			ctx:  Context{Properties: map[string]string{"region": "apac"}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateConstraint(tt.constraint, &tt.ctx))
		})
	}
}

func TestEvaluateConstraint_NotIn(t *testing.T) {
	c := models.Constraint{
		ContextName: "userId",
		Operator:    models.OperatorNotIn,
		Values:      []string{"blocked-1", "blocked-2"},
	}

	assert.True(t, EvaluateConstraint(c, &Context{UserID: "user-7"}))
	assert.False(t, EvaluateConstraint(c, &Context{UserID: "blocked-1"}))
	// Missing value: operator result is false even for NOT_IN
	assert.False(t, EvaluateConstraint(c, &Context{}))
}

func TestEvaluateConstraint_InversionProperty(t *testing.T) {
	// For any context WITH a value present, inverting flips the result.
	constraints := []models.Constraint{
		{ContextName: "region", Operator: models.OperatorIn, Values: []string{"apac"}},
		{ContextName: "region", Operator: models.OperatorStrStartsWith, Values: []string{"ap"}},
		{ContextName: "region", Operator: models.OperatorStrContains, Values: []string{"pa"}},
	}
	contexts := []Context{
		{Properties: map[string]string{"region": "apac"}},
		{Properties: map[string]string{"region": "emea"}},
	}

	for _, c := range constraints {
		for _, ctx := range contexts {
			plain := EvaluateConstraint(c, &ctx)
			inverted := c
			inverted.Inverted = true
			assert.Equal(t, !plain, EvaluateConstraint(inverted, &ctx), "operator %s", c.Operator)
		}
	}
}

func TestEvaluateConstraint_StringOperators(t *testing.T) {
	ctx := Context{AppName: "checkout-service"}

	tests := []struct {
		name     string
		operator string
		values   []string
		want     bool
	}{
		{"starts with match", models.OperatorStrStartsWith, []string{"checkout"}, true},
		{"starts with any of several", models.OperatorStrStartsWith, []string{"billing", "checkout"}, true},
		{"starts with mismatch", models.OperatorStrStartsWith, []string{"billing"}, false},
		{"ends with match", models.OperatorStrEndsWith, []string{"-service"}, true},
		{"ends with mismatch", models.OperatorStrEndsWith, []string{"-worker"}, false},
		{"contains match", models.OperatorStrContains, []string{"out-se"}, true},
		{"contains mismatch", models.OperatorStrContains, []string{"payments"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.Constraint{ContextName: "appName", Operator: tt.operator, Values: tt.values}
			assert.Equal(t, tt.want, EvaluateConstraint(c, &ctx))
		})
	}
}

func TestEvaluateConstraint_NumericOperators(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		ctxValue string
		values   []string
		want     bool
	}{
		{"eq match", models.OperatorNumEq, "42", []string{"42"}, true},
		{"eq mismatch", models.OperatorNumEq, "42", []string{"43"}, false},
		{"gt", models.OperatorNumGt, "10.5", []string{"10"}, true},
		{"gt equal is false", models.OperatorNumGt, "10", []string{"10"}, false},
		{"gte equal", models.OperatorNumGte, "10", []string{"10"}, true},
		{"lt", models.OperatorNumLt, "9", []string{"10"}, true},
		{"lte equal", models.OperatorNumLte, "10", []string{"10"}, true},
		{"unparsable context value fails closed", models.OperatorNumGt, "not-a-number", []string{"10"}, false},
		{"unparsable constraint value fails closed", models.OperatorNumGt, "10", []string{"ten"}, false},
		{"empty values fails closed", models.OperatorNumGt, "10", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.Constraint{ContextName: "build", Operator: tt.operator, Values: tt.values}
			ctx := Context{Properties: map[string]string{"build": tt.ctxValue}}
			assert.Equal(t, tt.want, EvaluateConstraint(c, &ctx))
		})
	}
}

func TestEvaluateConstraint_DateOperators(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	ctx := Context{CurrentTime: now}

	after := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorDateAfter,
		Values:      []string{"2026-03-01T00:00:00Z"},
	}
	assert.True(t, EvaluateConstraint(after, &ctx))

	before := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorDateBefore,
		Values:      []string{"2026-03-01T00:00:00Z"},
	}
	assert.False(t, EvaluateConstraint(before, &ctx))

	malformed := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorDateAfter,
		Values:      []string{"yesterday"},
	}
	assert.False(t, EvaluateConstraint(malformed, &ctx))
}

func TestEvaluateConstraint_SemverOperators(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		ctxValue string
		value    string
		want     bool
	}{
		{"eq", models.OperatorSemverEq, "1.2.3", "1.2.3", true},
		{"gt", models.OperatorSemverGt, "1.10.0", "1.9.9", true},
		{"lt", models.OperatorSemverLt, "2.0.0-beta.1", "2.0.0", true},
		{"prerelease below release", models.OperatorSemverGt, "2.0.0-beta.1", "2.0.0", false},
		{"invalid context version fails closed", models.OperatorSemverGt, "v1.x", "1.0.0", false},
		{"invalid constraint version fails closed", models.OperatorSemverGt, "1.0.0", "latest", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := models.Constraint{ContextName: "appVersion", Operator: tt.operator, Values: []string{tt.value}}
			ctx := Context{Properties: map[string]string{"appVersion": tt.ctxValue}}
			assert.Equal(t, tt.want, EvaluateConstraint(c, &ctx))
		})
	}
}

func TestEvaluateConstraint_TimeWindow(t *testing.T) {
	c := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorInTimeWindow,
		Values:      []string{"09:00-17:00"},
	}

	inside := Context{CurrentTime: time.Date(2026, 3, 15, 12, 30, 0, 0, time.UTC)}
	outside := Context{CurrentTime: time.Date(2026, 3, 15, 20, 0, 0, 0, time.UTC)}
	assert.True(t, EvaluateConstraint(c, &inside))
	assert.False(t, EvaluateConstraint(c, &outside))
}

func TestEvaluateConstraint_TimeWindowWrapsMidnight(t *testing.T) {
	c := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorInTimeWindow,
		Values:      []string{"22:00-06:00"},
	}

	lateNight := Context{CurrentTime: time.Date(2026, 3, 15, 23, 30, 0, 0, time.UTC)}
	earlyMorning := Context{CurrentTime: time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)}
	midday := Context{CurrentTime: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)}

	assert.True(t, EvaluateConstraint(c, &lateNight))
	assert.True(t, EvaluateConstraint(c, &earlyMorning))
	assert.False(t, EvaluateConstraint(c, &midday))
}

func TestEvaluateConstraint_TimeWindowTimezone(t *testing.T) {
	c := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorInTimeWindow,
		Values:      []string{"09:00-17:00|Europe/Zurich"},
	}

	// 08:00 UTC is 09:00 or 10:00 in Zurich depending on DST; mid-March is
	// still CET (UTC+1), so this lands exactly on the window start.
	ctx := Context{CurrentTime: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)}
	assert.True(t, EvaluateConstraint(c, &ctx))

	bad := models.Constraint{
		ContextName: FieldCurrentTime,
		Operator:    models.OperatorInTimeWindow,
		Values:      []string{"09:00-17:00|Mars/Olympus"},
	}
	assert.False(t, EvaluateConstraint(bad, &ctx))
}

func TestEvaluateConstraint_UnknownOperator(t *testing.T) {
	c := models.Constraint{
		ContextName: "region",
		Operator:    "REGEX_MATCH",
		Values:      []string{".*"},
	}
	ctx := Context{Properties: map[string]string{"region": "apac"}}
	assert.False(t, EvaluateConstraint(c, &ctx))
}

func TestEvaluateConstraints_All(t *testing.T) {
	constraints := []models.Constraint{
		{ContextName: "region", Operator: models.OperatorIn, Values: []string{"apac"}},
		{ContextName: "appName", Operator: models.OperatorStrStartsWith, Values: []string{"checkout"}},
	}

	match := Context{AppName: "checkout-service", Properties: map[string]string{"region": "apac"}}
	partial := Context{AppName: "billing-service", Properties: map[string]string{"region": "apac"}}

	assert.True(t, EvaluateConstraints(constraints, &match))
	assert.False(t, EvaluateConstraints(constraints, &partial))
	assert.True(t, EvaluateConstraints(nil, &partial))
}
