package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const (
	featuresTable            = "features"
	featureEnvironmentsTable = "feature_environments"
)

var (
	featureStruct            = database.NewStruct(new(models.Feature))
	featureEnvironmentStruct = database.NewStruct(new(models.FeatureEnvironment))
)

// FeatureRepository handles database operations for features and their
// per-environment state
type FeatureRepository struct {
	*Repository
}

// NewFeatureRepository creates a new feature repository
func NewFeatureRepository(db database.DB, logger ectologger.Logger) *FeatureRepository {
	return &FeatureRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new feature
func (r *FeatureRepository) Create(ctx context.Context, feature *models.Feature) error {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.Create")
	defer span.End()

	if feature.ID == uuid.Nil {
		feature.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(featuresTable).
		Cols("id", "project_id", "name", "type", "description", "stale", "impression_data", "archived", "variants", "created_at", "updated_at").
		Values(feature.ID, feature.ProjectID, feature.Name, feature.Type, feature.Description,
			feature.Stale, feature.ImpressionData, feature.Archived, feature.Variants,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&feature.CreatedAt, &feature.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflict("feature %s already exists in project %s", feature.Name, feature.ProjectID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature": feature.Name,
			"project": feature.ProjectID,
		}).Error("failed to create feature")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create feature")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"feature": feature.Name,
		"project": feature.ProjectID,
	}).Debugf("Created %s", featuresTable)
	return nil
}

// GetByName retrieves a feature by project and name. The lookup is
// case-insensitive and joins an open transaction when the context carries
// one, so change request applies see their own uncommitted writes.
func (r *FeatureRepository) GetByName(ctx context.Context, projectID, name string) (*models.Feature, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.GetByName")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := featureStruct.SelectFrom(featuresTable)
	sb.Where(
		sb.Equal("project_id", projectID),
		"LOWER(name) = LOWER("+sb.Var(name)+")",
	)

	query, args := sb.Build()
	var feature models.Feature
	err = tx.GetContext(txCtx, &feature, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "feature %s does not exist in project %s", name, projectID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature": name,
			"project": projectID,
		}).Error("failed to get feature")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get feature")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &feature, nil
}

// ListByProject retrieves features for a project
func (r *FeatureRepository) ListByProject(ctx context.Context, projectID string, includeArchived bool) ([]models.Feature, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.ListByProject")
	defer span.End()

	sb := featureStruct.SelectFrom(featuresTable)
	sb.Where(sb.Equal("project_id", projectID))
	if !includeArchived {
		sb.Where(sb.Equal("archived", false))
	}
	sb.OrderBy("name")

	query, args := sb.Build()
	var features []models.Feature
	err := r.DB().SelectContext(ctx, &features, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project": projectID,
		}).Error("failed to list features")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list features")
	}

	return features, nil
}

// Update updates feature metadata and feature-level variants
func (r *FeatureRepository) Update(ctx context.Context, feature *models.Feature) error {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(featuresTable).
		Set(
			ub.Assign("type", feature.Type),
			ub.Assign("description", feature.Description),
			ub.Assign("stale", feature.Stale),
			ub.Assign("impression_data", feature.ImpressionData),
			ub.Assign("variants", feature.Variants),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", feature.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&feature.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "feature %s does not exist", feature.Name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature": feature.Name,
		}).Error("failed to update feature")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update feature")
	}

	return nil
}

// SetArchived archives or restores a feature
func (r *FeatureRepository) SetArchived(ctx context.Context, featureID uuid.UUID, archived bool) error {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.SetArchived")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(featuresTable).
		Set(
			ub.Assign("archived", archived),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", featureID))

	query, args := ub.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id": featureID,
		}).Error("failed to archive feature")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive feature")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive feature")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "feature %s does not exist", featureID)
	}

	return tx.Commit(ctx)
}

// GetEnvironmentState retrieves the per-environment state of a feature.
// A feature with no row for the environment is disabled at version 1.
func (r *FeatureRepository) GetEnvironmentState(ctx context.Context, featureID uuid.UUID, environment string) (*models.FeatureEnvironment, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.GetEnvironmentState")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := featureEnvironmentStruct.SelectFrom(featureEnvironmentsTable)
	sb.Where(sb.Equal("feature_id", featureID), sb.Equal("environment", environment))

	query, args := sb.Build()
	var state models.FeatureEnvironment
	err = tx.GetContext(txCtx, &state, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return &models.FeatureEnvironment{
			FeatureID:   featureID,
			Environment: environment,
			Enabled:     false,
			Version:     1,
		}, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id":  featureID,
			"environment": environment,
		}).Error("failed to get feature environment state")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get feature environment state")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &state, nil
}

// ListEnvironmentStates retrieves all per-environment states of a feature
func (r *FeatureRepository) ListEnvironmentStates(ctx context.Context, featureID uuid.UUID) ([]models.FeatureEnvironment, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.ListEnvironmentStates")
	defer span.End()

	sb := featureEnvironmentStruct.SelectFrom(featureEnvironmentsTable)
	sb.Where(sb.Equal("feature_id", featureID))
	sb.OrderBy("environment")

	query, args := sb.Build()
	var states []models.FeatureEnvironment
	err := r.DB().SelectContext(ctx, &states, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id": featureID,
		}).Error("failed to list feature environment states")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list feature environment states")
	}

	return states, nil
}

// SetEnvironmentEnabled upserts the enabled flag for a feature environment,
// bumping the optimistic version on every write.
func (r *FeatureRepository) SetEnvironmentEnabled(ctx context.Context, featureID uuid.UUID, environment string, enabled bool) (*models.FeatureEnvironment, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.SetEnvironmentEnabled")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(featureEnvironmentsTable).
		Cols("feature_id", "environment", "enabled", "version", "updated_at").
		Values(featureID, environment, enabled, 1, sqlbuilder.Raw("NOW()"))
	ib.SQL("ON CONFLICT (feature_id, environment) DO UPDATE SET enabled = EXCLUDED.enabled, version = " +
		featureEnvironmentsTable + ".version + 1, updated_at = NOW()")
	ib.SQL("RETURNING enabled, version, updated_at")

	query, args := ib.Build()
	state := models.FeatureEnvironment{
		FeatureID:   featureID,
		Environment: environment,
	}
	err = tx.QueryRowContext(txCtx, query, args...).Scan(&state.Enabled, &state.Version, &state.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id":  featureID,
			"environment": environment,
		}).Error("failed to set feature environment enabled")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to set feature environment enabled")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"feature_id":  featureID,
		"environment": environment,
		"enabled":     enabled,
	}).Debugf("Updated %s", featureEnvironmentsTable)
	return &state, nil
}

// CountEnabledProtected counts protected environments in which the feature
// is currently enabled. Used as an archive guard.
func (r *FeatureRepository) CountEnabledProtected(ctx context.Context, featureID uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "FeatureRepository.CountEnabledProtected")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From("feature_environments fe")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "environments e", "e.name = fe.environment")
	sb.Where(
		sb.Equal("fe.feature_id", featureID),
		sb.Equal("fe.enabled", true),
		sb.Equal("e.protected", true),
	)

	query, args := sb.Build()
	var count int
	err := r.DB().GetContext(ctx, &count, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id": featureID,
		}).Error("failed to count enabled protected environments")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count enabled protected environments")
	}

	return count, nil
}
