package models

import (
	"time"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// ContextField is a registry entry describing a context attribute that
// constraints may reference. Stickiness marks fields eligible as hashing
// keys for gradual rollouts and variant allocation.
type ContextField struct {
	Name        string                   `db:"name" json:"name"`
	Description string                   `db:"description" json:"description,omitempty"`
	Stickiness  bool                     `db:"stickiness" json:"stickiness"`
	SortOrder   int                      `db:"sort_order" json:"sortOrder"`
	LegalValues database.JSONB[[]string] `db:"legal_values" json:"legalValues,omitempty"`
	CreatedAt   time.Time                `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time                `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (ContextField) TableName() string {
	return "context_fields"
}
