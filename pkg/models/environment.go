package models

import (
	"time"
)

// Environment types mirror the standard deployment stages.
const (
	EnvironmentTypeDevelopment   = "development"
	EnvironmentTypeTest          = "test"
	EnvironmentTypePreproduction = "preproduction"
	EnvironmentTypeProduction    = "production"
)

// Environment is a global evaluation environment. Protected environments
// reject direct flag mutations and require the change request flow.
type Environment struct {
	Name              string    `db:"name" json:"name"`
	Type              string    `db:"type" json:"type"`
	Enabled           bool      `db:"enabled" json:"enabled"`
	Protected         bool      `db:"protected" json:"protected"`
	RequiredApprovals int       `db:"required_approvals" json:"requiredApprovals"`
	SortOrder         int       `db:"sort_order" json:"sortOrder"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (Environment) TableName() string {
	return "environments"
}

// ValidEnvironmentType reports whether t is one of the known environment types.
func ValidEnvironmentType(t string) bool {
	switch t {
	case EnvironmentTypeDevelopment, EnvironmentTypeTest, EnvironmentTypePreproduction, EnvironmentTypeProduction:
		return true
	}
	return false
}
