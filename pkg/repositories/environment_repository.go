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

const environmentsTable = "environments"

var environmentStruct = database.NewStruct(new(models.Environment))

// EnvironmentRepository handles database operations for environments
type EnvironmentRepository struct {
	*Repository
}

// NewEnvironmentRepository creates a new environment repository
func NewEnvironmentRepository(db database.DB, logger ectologger.Logger) *EnvironmentRepository {
	return &EnvironmentRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new environment
func (r *EnvironmentRepository) Create(ctx context.Context, env *models.Environment) error {
	ctx, span := tracing.StartSpan(ctx, "EnvironmentRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(environmentsTable).
		Cols("name", "type", "enabled", "protected", "required_approvals", "sort_order", "created_at", "updated_at").
		Values(env.Name, env.Type, env.Enabled, env.Protected, env.RequiredApprovals, env.SortOrder,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflict("environment %s already exists", env.Name)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"environment": env.Name,
		}).Error("failed to create environment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create environment")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"environment": env.Name,
	}).Debugf("Created %s", environmentsTable)
	return nil
}

// GetByName retrieves an environment by name. Reads through an open
// transaction when the context carries one.
func (r *EnvironmentRepository) GetByName(ctx context.Context, name string) (*models.Environment, error) {
	ctx, span := tracing.StartSpan(ctx, "EnvironmentRepository.GetByName")
	defer span.End()

	sb := environmentStruct.SelectFrom(environmentsTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var env models.Environment
	err := r.DB().GetContext(ctx, &env, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "environment %s does not exist", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"environment": name,
		}).Error("failed to get environment")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get environment")
	}

	return &env, nil
}

// List retrieves all environments ordered by sort order
func (r *EnvironmentRepository) List(ctx context.Context) ([]models.Environment, error) {
	ctx, span := tracing.StartSpan(ctx, "EnvironmentRepository.List")
	defer span.End()

	sb := environmentStruct.SelectFrom(environmentsTable)
	sb.OrderBy("sort_order", "name")

	query, args := sb.Build()
	var envs []models.Environment
	err := r.DB().SelectContext(ctx, &envs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list environments")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list environments")
	}

	return envs, nil
}

// Update updates an existing environment
func (r *EnvironmentRepository) Update(ctx context.Context, env *models.Environment) error {
	ctx, span := tracing.StartSpan(ctx, "EnvironmentRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(environmentsTable).
		Set(
			ub.Assign("type", env.Type),
			ub.Assign("enabled", env.Enabled),
			ub.Assign("protected", env.Protected),
			ub.Assign("required_approvals", env.RequiredApprovals),
			ub.Assign("sort_order", env.SortOrder),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("name", env.Name))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&env.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "environment %s does not exist", env.Name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"environment": env.Name,
		}).Error("failed to update environment")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update environment")
	}

	return nil
}
