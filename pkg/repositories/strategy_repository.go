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

const strategiesTable = "feature_strategies"

var strategyStruct = database.NewStruct(new(models.Strategy))

// StrategyRepository handles database operations for strategy instances
type StrategyRepository struct {
	*Repository
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db database.DB, logger ectologger.Logger) *StrategyRepository {
	return &StrategyRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new strategy instance
func (r *StrategyRepository) Create(ctx context.Context, strategy *models.Strategy) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.Create")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if strategy.ID == uuid.Nil {
		strategy.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(strategiesTable).
		Cols("id", "feature_id", "environment", "strategy_name", "parameters", "constraints", "variants", "disabled", "sort_order", "created_at", "updated_at").
		Values(strategy.ID, strategy.FeatureID, strategy.Environment, strategy.StrategyName,
			strategy.Parameters, strategy.Constraints, strategy.Variants, strategy.Disabled, strategy.SortOrder,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = tx.QueryRowContext(txCtx, query, args...).Scan(&strategy.CreatedAt, &strategy.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy_id": strategy.ID,
			"feature_id":  strategy.FeatureID,
		}).Error("failed to create strategy")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create strategy")
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy_id": strategy.ID,
	}).Debugf("Created %s", strategiesTable)
	return nil
}

// GetByID retrieves a strategy instance by ID
func (r *StrategyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.GetByID")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := strategyStruct.SelectFrom(strategiesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var strategy models.Strategy
	err = tx.GetContext(txCtx, &strategy, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy_id": id,
		}).Error("failed to get strategy")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get strategy")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &strategy, nil
}

// ListForFeatureEnvironment retrieves strategy instances for a feature in an
// environment, ordered by sort order
func (r *StrategyRepository) ListForFeatureEnvironment(ctx context.Context, featureID uuid.UUID, environment string) ([]models.Strategy, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.ListForFeatureEnvironment")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := strategyStruct.SelectFrom(strategiesTable)
	sb.Where(sb.Equal("feature_id", featureID), sb.Equal("environment", environment))
	sb.OrderBy("sort_order", "created_at")

	query, args := sb.Build()
	var strategies []models.Strategy
	err = tx.SelectContext(txCtx, &strategies, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id":  featureID,
			"environment": environment,
		}).Error("failed to list strategies")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list strategies")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return strategies, nil
}

// Update replaces the mutable fields of a strategy instance
func (r *StrategyRepository) Update(ctx context.Context, strategy *models.Strategy) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.Update")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(strategiesTable).
		Set(
			ub.Assign("strategy_name", strategy.StrategyName),
			ub.Assign("parameters", strategy.Parameters),
			ub.Assign("constraints", strategy.Constraints),
			ub.Assign("variants", strategy.Variants),
			ub.Assign("disabled", strategy.Disabled),
			ub.Assign("sort_order", strategy.SortOrder),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", strategy.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err = tx.QueryRowContext(txCtx, query, args...).Scan(&strategy.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist", strategy.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy_id": strategy.ID,
		}).Error("failed to update strategy")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update strategy")
	}

	return tx.Commit(ctx)
}

// Delete deletes a strategy instance
func (r *StrategyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.Delete")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	db := database.NewDeleteBuilder()
	db.DeleteFrom(strategiesTable).
		Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy_id": id,
		}).Error("failed to delete strategy")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete strategy")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete strategy")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy_id": id,
	}).Debugf("Deleted %s", strategiesTable)
	return nil
}

// Reorder rewrites the sort order of the given strategies in one transaction
func (r *StrategyRepository) Reorder(ctx context.Context, featureID uuid.UUID, environment string, orderedIDs []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.Reorder")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, id := range orderedIDs {
		ub := database.NewUpdateBuilder()
		ub.Update(strategiesTable).
			Set(
				ub.Assign("sort_order", i),
				ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
			).
			Where(
				ub.Equal("id", id),
				ub.Equal("feature_id", featureID),
				ub.Equal("environment", environment),
			)

		query, args := ub.Build()
		result, err := tx.ExecContext(txCtx, query, args...)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"strategy_id": id,
			}).Error("failed to reorder strategies")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reorder strategies")
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reorder strategies")
		}
		if rows == 0 {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist for this feature environment", id)
		}
	}

	return tx.Commit(ctx)
}

// MaxSortOrder returns the highest sort order in use for a feature environment
func (r *StrategyRepository) MaxSortOrder(ctx context.Context, featureID uuid.UUID, environment string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyRepository.MaxSortOrder")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	sb := database.NewSelectBuilder()
	sb.Select("COALESCE(MAX(sort_order), -1)").From(strategiesTable)
	sb.Where(sb.Equal("feature_id", featureID), sb.Equal("environment", environment))

	query, args := sb.Build()
	var max int
	err = tx.GetContext(txCtx, &max, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature_id": featureID,
		}).Error("failed to get max sort order")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get max sort order")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return max, nil
}
