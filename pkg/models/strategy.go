package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// Constraint operators.
const (
	OperatorIn            = "IN"
	OperatorNotIn         = "NOT_IN"
	OperatorStrStartsWith = "STR_STARTS_WITH"
	OperatorStrEndsWith   = "STR_ENDS_WITH"
	OperatorStrContains   = "STR_CONTAINS"
	OperatorNumEq         = "NUM_EQ"
	OperatorNumGt         = "NUM_GT"
	OperatorNumGte        = "NUM_GTE"
	OperatorNumLt         = "NUM_LT"
	OperatorNumLte        = "NUM_LTE"
	OperatorDateAfter     = "DATE_AFTER"
	OperatorDateBefore    = "DATE_BEFORE"
	OperatorSemverEq      = "SEMVER_EQ"
	OperatorSemverGt      = "SEMVER_GT"
	OperatorSemverLt      = "SEMVER_LT"
	OperatorInTimeWindow  = "IN_TIME_WINDOW"
)

var operators = map[string]bool{
	OperatorIn:            true,
	OperatorNotIn:         true,
	OperatorStrStartsWith: true,
	OperatorStrEndsWith:   true,
	OperatorStrContains:   true,
	OperatorNumEq:         true,
	OperatorNumGt:         true,
	OperatorNumGte:        true,
	OperatorNumLt:         true,
	OperatorNumLte:        true,
	OperatorDateAfter:     true,
	OperatorDateBefore:    true,
	OperatorSemverEq:      true,
	OperatorSemverGt:      true,
	OperatorSemverLt:      true,
	OperatorInTimeWindow:  true,
}

// ValidOperator reports whether op is a known constraint operator
func ValidOperator(op string) bool {
	return operators[op]
}

// Constraint restricts a strategy to contexts matching an operator over a
// registered context field.
type Constraint struct {
	ContextName     string   `json:"contextName"`
	Operator        string   `json:"operator"`
	Values          []string `json:"values"`
	CaseInsensitive bool     `json:"caseInsensitive,omitempty"`
	Inverted        bool     `json:"inverted,omitempty"`
}

// VariantPayload is the payload delivered with an allocated variant.
type VariantPayload struct {
	Type  string `json:"type"` // "string", "json" or "number"
	Value string `json:"value"`
}

// Variant is a weighted payload option. Weight is permille (0..1000);
// allocation is proportional over the actual total.
type Variant struct {
	Name       string          `json:"name"`
	Weight     int             `json:"weight"`
	Stickiness string          `json:"stickiness,omitempty"` // context field name, or "default" for userId
	Payload    *VariantPayload `json:"payload,omitempty"`
}

// Strategy is an activation strategy instance attached to one
// (feature, environment). Strategies are evaluated in SortOrder; the first
// satisfied strategy wins.
type Strategy struct {
	ID           uuid.UUID                         `db:"id" json:"id"`
	FeatureID    uuid.UUID                         `db:"feature_id" json:"-"`
	Environment  string                            `db:"environment" json:"environment"`
	StrategyName string                            `db:"strategy_name" json:"name"`
	Parameters   database.JSONB[map[string]string] `db:"parameters" json:"parameters"`
	Constraints  database.JSONB[[]Constraint]      `db:"constraints" json:"constraints"`
	Variants     database.JSONB[[]Variant]         `db:"variants" json:"variants"`
	Disabled     bool                              `db:"disabled" json:"disabled"`
	SortOrder    int                               `db:"sort_order" json:"sortOrder"`
	CreatedAt    time.Time                         `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time                         `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (Strategy) TableName() string {
	return "feature_strategies"
}
