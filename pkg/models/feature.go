package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// Feature flag types.
const (
	FeatureTypeRelease     = "release"
	FeatureTypeExperiment  = "experiment"
	FeatureTypeOperational = "operational"
	FeatureTypeKillSwitch  = "kill-switch"
	FeatureTypePermission  = "permission"
)

// Feature is a project-scoped flag. Per-environment enablement lives in
// FeatureEnvironment; Variants here are the feature-level defaults used when
// a matched strategy carries no variants of its own.
type Feature struct {
	ID             uuid.UUID                 `db:"id" json:"id"`
	ProjectID      string                    `db:"project_id" json:"project"`
	Name           string                    `db:"name" json:"name"`
	Type           string                    `db:"type" json:"type"`
	Description    string                    `db:"description" json:"description,omitempty"`
	Stale          bool                      `db:"stale" json:"stale"`
	ImpressionData bool                      `db:"impression_data" json:"impressionData"`
	Archived       bool                      `db:"archived" json:"archived"`
	Variants       database.JSONB[[]Variant] `db:"variants" json:"variants"`
	CreatedAt      time.Time                 `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time                 `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (Feature) TableName() string {
	return "features"
}

// FeatureEnvironment is the per-environment state of a feature. Version is
// bumped on every mutation for optimistic concurrency.
type FeatureEnvironment struct {
	FeatureID   uuid.UUID `db:"feature_id" json:"-"`
	Environment string    `db:"environment" json:"environment"`
	Enabled     bool      `db:"enabled" json:"enabled"`
	Version     int64     `db:"version" json:"version"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// TableName returns the database table name
func (FeatureEnvironment) TableName() string {
	return "feature_environments"
}
