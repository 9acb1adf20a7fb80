package models

import (
	"time"

	"github.com/google/uuid"
)

// FeatureMetric is one aggregated evaluation bucket reported by a client SDK:
// yes/no counts for a feature in an environment over a time window.
type FeatureMetric struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ProjectID   string    `db:"project_id" json:"project"`
	FeatureName string    `db:"feature_name" json:"feature"`
	Environment string    `db:"environment" json:"environment"`
	AppName     string    `db:"app_name" json:"appName"`
	Yes         int64     `db:"yes" json:"yes"`
	No          int64     `db:"no" json:"no"`
	BucketStart time.Time `db:"bucket_start" json:"bucketStart"`
	BucketEnd   time.Time `db:"bucket_end" json:"bucketEnd"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// TableName returns the database table name
func (FeatureMetric) TableName() string {
	return "feature_metrics"
}
