package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const contextFieldsTable = "context_fields"

var contextFieldStruct = database.NewStruct(new(models.ContextField))

// ContextFieldRepository handles database operations for the context registry
type ContextFieldRepository struct {
	*Repository
}

// NewContextFieldRepository creates a new context field repository
func NewContextFieldRepository(db database.DB, logger ectologger.Logger) *ContextFieldRepository {
	return &ContextFieldRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new context field
func (r *ContextFieldRepository) Create(ctx context.Context, field *models.ContextField) error {
	ctx, span := tracing.StartSpan(ctx, "ContextFieldRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(contextFieldsTable).
		Cols("name", "description", "stickiness", "sort_order", "legal_values", "created_at", "updated_at").
		Values(field.Name, field.Description, field.Stickiness, field.SortOrder, field.LegalValues,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&field.CreatedAt, &field.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflict("context field %s already exists", field.Name)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"context_field": field.Name,
		}).Error("failed to create context field")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create context field")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"context_field": field.Name,
	}).Debugf("Created %s", contextFieldsTable)
	return nil
}

// GetByName retrieves a context field by name
func (r *ContextFieldRepository) GetByName(ctx context.Context, name string) (*models.ContextField, error) {
	ctx, span := tracing.StartSpan(ctx, "ContextFieldRepository.GetByName")
	defer span.End()

	sb := contextFieldStruct.SelectFrom(contextFieldsTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var field models.ContextField
	err := r.DB().GetContext(ctx, &field, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "context field %s does not exist", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"context_field": name,
		}).Error("failed to get context field")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get context field")
	}

	return &field, nil
}

// List retrieves all context fields ordered by sort order
func (r *ContextFieldRepository) List(ctx context.Context) ([]models.ContextField, error) {
	ctx, span := tracing.StartSpan(ctx, "ContextFieldRepository.List")
	defer span.End()

	sb := contextFieldStruct.SelectFrom(contextFieldsTable)
	sb.OrderBy("sort_order", "name")

	query, args := sb.Build()
	var fields []models.ContextField
	err := r.DB().SelectContext(ctx, &fields, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list context fields")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list context fields")
	}

	return fields, nil
}

// CountConstraintUsages counts live strategy instances whose constraints
// reference the context field. Archived features do not count.
func (r *ContextFieldRepository) CountConstraintUsages(ctx context.Context, name string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ContextFieldRepository.CountConstraintUsages")
	defer span.End()

	match, err := json.Marshal([]map[string]string{{"contextName": name}})
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count context field usages")
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From("feature_strategies fs")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "features f", "f.id = fs.feature_id")
	sb.Where(
		"fs.constraints @> "+sb.Var(string(match))+"::jsonb",
		sb.Equal("f.archived", false),
	)

	query, args := sb.Build()
	var count int
	err = r.DB().GetContext(ctx, &count, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"context_field": name,
		}).Error("failed to count context field usages")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count context field usages")
	}

	return count, nil
}

// Delete deletes a context field. Fails with 409 while any live strategy
// constraint references it.
func (r *ContextFieldRepository) Delete(ctx context.Context, name string) error {
	ctx, span := tracing.StartSpan(ctx, "ContextFieldRepository.Delete")
	defer span.End()

	count, err := r.CountConstraintUsages(ctx, name)
	if err != nil {
		return err
	}
	if count > 0 {
		return Conflict("context field %s is referenced by %d strategy constraints", name, count)
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(contextFieldsTable).
		Where(db.Equal("name", name))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"context_field": name,
		}).Error("failed to delete context field")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete context field")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete context field")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "context field %s does not exist", name)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"context_field": name,
	}).Debugf("Deleted %s", contextFieldsTable)
	return nil
}
