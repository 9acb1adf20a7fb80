package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const strategyDefinitionsTable = "strategy_definitions"

var strategyDefinitionStruct = database.NewStruct(new(models.StrategyDefinition))

// StrategyDefinitionRepository handles database operations for the global
// strategy catalog
type StrategyDefinitionRepository struct {
	*Repository
}

// NewStrategyDefinitionRepository creates a new strategy definition repository
func NewStrategyDefinitionRepository(db database.DB, logger ectologger.Logger) *StrategyDefinitionRepository {
	return &StrategyDefinitionRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new strategy definition
func (r *StrategyDefinitionRepository) Create(ctx context.Context, def *models.StrategyDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyDefinitionRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(strategyDefinitionsTable).
		Cols("name", "description", "editable", "parameters", "created_at", "updated_at").
		Values(def.Name, def.Description, def.Editable, def.Parameters,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflict("strategy %s already exists", def.Name)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy": def.Name,
		}).Error("failed to create strategy definition")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create strategy definition")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy": def.Name,
	}).Debugf("Created %s", strategyDefinitionsTable)
	return nil
}

// GetByName retrieves a strategy definition by name
func (r *StrategyDefinitionRepository) GetByName(ctx context.Context, name string) (*models.StrategyDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyDefinitionRepository.GetByName")
	defer span.End()

	sb := strategyDefinitionStruct.SelectFrom(strategyDefinitionsTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var def models.StrategyDefinition
	err := r.DB().GetContext(ctx, &def, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy": name,
		}).Error("failed to get strategy definition")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get strategy definition")
	}

	return &def, nil
}

// List retrieves all strategy definitions
func (r *StrategyDefinitionRepository) List(ctx context.Context) ([]models.StrategyDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyDefinitionRepository.List")
	defer span.End()

	sb := strategyDefinitionStruct.SelectFrom(strategyDefinitionsTable)
	sb.OrderBy("name")

	query, args := sb.Build()
	var defs []models.StrategyDefinition
	err := r.DB().SelectContext(ctx, &defs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list strategy definitions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list strategy definitions")
	}

	return defs, nil
}

// CountInstances counts live strategy instances referencing the definition
func (r *StrategyDefinitionRepository) CountInstances(ctx context.Context, name string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "StrategyDefinitionRepository.CountInstances")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From("feature_strategies fs")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "features f", "f.id = fs.feature_id")
	sb.Where(
		sb.Equal("fs.strategy_name", name),
		sb.Equal("f.archived", false),
	)

	query, args := sb.Build()
	var count int
	err := r.DB().GetContext(ctx, &count, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy": name,
		}).Error("failed to count strategy instances")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count strategy instances")
	}

	return count, nil
}

// Update updates a strategy definition. Parameter changes are rejected with
// 409 while live instances reference the definition; the description can
// always change.
func (r *StrategyDefinitionRepository) Update(ctx context.Context, def *models.StrategyDefinition, parametersChanged bool) error {
	ctx, span := tracing.StartSpan(ctx, "StrategyDefinitionRepository.Update")
	defer span.End()

	if parametersChanged {
		count, err := r.CountInstances(ctx, def.Name)
		if err != nil {
			return err
		}
		if count > 0 {
			return Conflict("strategy %s is used by %d strategy instances", def.Name, count)
		}
	}

	ub := database.NewUpdateBuilder()
	ub.Update(strategyDefinitionsTable).
		Set(
			ub.Assign("description", def.Description),
			ub.Assign("parameters", def.Parameters),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("name", def.Name), ub.Equal("editable", true))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&def.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "strategy %s does not exist or is not editable", def.Name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"strategy": def.Name,
		}).Error("failed to update strategy definition")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update strategy definition")
	}

	return nil
}
