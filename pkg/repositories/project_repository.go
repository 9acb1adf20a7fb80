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

const projectsTable = "projects"

var projectStruct = database.NewStruct(new(models.Project))

// ProjectRepository handles database operations for projects
type ProjectRepository struct {
	*Repository
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db database.DB, logger ectologger.Logger) *ProjectRepository {
	return &ProjectRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new project
func (r *ProjectRepository) Create(ctx context.Context, project *models.Project) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.Create")
	defer span.End()

	ib := database.NewInsertBuilder()
	ib.InsertInto(projectsTable).
		Cols("id", "name", "description", "created_at", "updated_at").
		Values(project.ID, project.Name, project.Description,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Conflict("project %s already exists", project.ID)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": project.ID,
		}).Error("failed to create project")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create project")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": project.ID,
	}).Debugf("Created %s", projectsTable)
	return nil
}

// GetByID retrieves a project by ID
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.GetByID")
	defer span.End()

	sb := projectStruct.SelectFrom(projectsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var project models.Project
	err := r.DB().GetContext(ctx, &project, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "project %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": id,
		}).Error("failed to get project")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get project")
	}

	return &project, nil
}

// List retrieves all projects
func (r *ProjectRepository) List(ctx context.Context) ([]models.Project, error) {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.List")
	defer span.End()

	sb := projectStruct.SelectFrom(projectsTable)
	sb.OrderBy("name")

	query, args := sb.Build()
	var projects []models.Project
	err := r.DB().SelectContext(ctx, &projects, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list projects")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list projects")
	}

	return projects, nil
}

// Update updates an existing project
func (r *ProjectRepository) Update(ctx context.Context, project *models.Project) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(projectsTable).
		Set(
			ub.Assign("name", project.Name),
			ub.Assign("description", project.Description),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", project.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&project.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "project %s does not exist", project.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": project.ID,
		}).Error("failed to update project")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update project")
	}

	return nil
}

// Delete deletes a project by ID
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "ProjectRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(projectsTable).
		Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project_id": id,
		}).Error("failed to delete project")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete project")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete project")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "project %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"project_id": id,
	}).Debugf("Deleted %s", projectsTable)
	return nil
}
