package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const featureMetricsTable = "feature_metrics"

// FeatureMetricSummary is an aggregate over reported metric buckets
type FeatureMetricSummary struct {
	FeatureName string `db:"feature_name" json:"feature"`
	Environment string `db:"environment" json:"environment"`
	Yes         int64  `db:"yes" json:"yes"`
	No          int64  `db:"no" json:"no"`
}

// FeatureMetricRepository handles database operations for SDK-reported
// evaluation metrics
type FeatureMetricRepository struct {
	*Repository
}

// NewFeatureMetricRepository creates a new feature metric repository
func NewFeatureMetricRepository(db database.DB, logger ectologger.Logger) *FeatureMetricRepository {
	return &FeatureMetricRepository{
		Repository: NewRepository(db, logger),
	}
}

// Insert records one reported metric bucket
func (r *FeatureMetricRepository) Insert(ctx context.Context, metric *models.FeatureMetric) error {
	ctx, span := tracing.StartSpan(ctx, "FeatureMetricRepository.Insert")
	defer span.End()

	if metric.ID == uuid.Nil {
		metric.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(featureMetricsTable).
		Cols("id", "project_id", "feature_name", "environment", "app_name", "yes", "no", "bucket_start", "bucket_end", "created_at").
		Values(metric.ID, metric.ProjectID, metric.FeatureName, metric.Environment, metric.AppName,
			metric.Yes, metric.No, metric.BucketStart, metric.BucketEnd, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&metric.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature":     metric.FeatureName,
			"environment": metric.Environment,
		}).Error("failed to insert feature metric")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert feature metric")
	}

	return nil
}

// Summarize aggregates yes/no counts per feature and environment for a project
func (r *FeatureMetricRepository) Summarize(ctx context.Context, projectID string) ([]FeatureMetricSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureMetricRepository.Summarize")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("feature_name", "environment", "SUM(yes) AS yes", "SUM(no) AS no").From(featureMetricsTable)
	sb.Where(sb.Equal("project_id", projectID))
	sb.GroupBy("feature_name", "environment")
	sb.OrderBy("feature_name", "environment")

	query, args := sb.Build()
	var summaries []FeatureMetricSummary
	err := r.DB().SelectContext(ctx, &summaries, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project": projectID,
		}).Error("failed to summarize feature metrics")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to summarize feature metrics")
	}

	return summaries, nil
}
