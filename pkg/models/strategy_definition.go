package models

import (
	"time"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// Strategy parameter types accepted by the definition catalog.
const (
	ParameterTypeString     = "string"
	ParameterTypePercentage = "percentage"
	ParameterTypeList       = "list"
	ParameterTypeNumber     = "number"
	ParameterTypeBoolean    = "boolean"
)

// ParameterDefinition describes one parameter a strategy instance must supply.
type ParameterDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// StrategyDefinition is a global catalog entry that strategy instances
// reference by name. Built-in definitions are not editable.
type StrategyDefinition struct {
	Name        string                                `db:"name" json:"name"`
	Description string                                `db:"description" json:"description,omitempty"`
	Editable    bool                                  `db:"editable" json:"editable"`
	Parameters  database.JSONB[[]ParameterDefinition] `db:"parameters" json:"parameters"`
	CreatedAt   time.Time                             `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time                             `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (StrategyDefinition) TableName() string {
	return "strategy_definitions"
}

// ValidParameterType reports whether t is a known parameter type.
func ValidParameterType(t string) bool {
	switch t {
	case ParameterTypeString, ParameterTypePercentage, ParameterTypeList, ParameterTypeNumber, ParameterTypeBoolean:
		return true
	}
	return false
}
