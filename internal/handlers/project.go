package handlers

import (
	"regexp"

	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// Project ids double as URL path segments and kafka partition keys.
var projectIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,99}$`)

// ProjectHandler handles project API requests
type ProjectHandler struct {
	repo repositories.ProjectRepo
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(repo repositories.ProjectRepo) *ProjectHandler {
	return &ProjectHandler{repo: repo}
}

// CreateProjectRequest is the request body for creating a project
type CreateProjectRequest struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

// RegisterRoutes registers the project routes
func (h *ProjectHandler) RegisterRoutes(g *echo.Group) {
	projects := g.Group("/projects")
	projects.GET("", h.List)
	projects.POST("", h.Create)
	projects.GET("/:projectId", h.Get)
	projects.DELETE("/:projectId", h.Delete)
}

// List handles GET /projects
func (h *ProjectHandler) List(c echo.Context) error {
	projects, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, projects)
}

// Create handles POST /projects
func (h *ProjectHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if !projectIDPattern.MatchString(req.ID) {
		return BadRequest("project id must be a lowercase slug")
	}

	project := &models.Project{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := h.repo.Create(ctx, project); err != nil {
		return err
	}

	return CreatedResponse(c, project)
}

// Get handles GET /projects/:projectId
func (h *ProjectHandler) Get(c echo.Context) error {
	project, err := h.repo.GetByID(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, project)
}

// Delete handles DELETE /projects/:projectId
func (h *ProjectHandler) Delete(c echo.Context) error {
	if err := h.repo.Delete(c.Request().Context(), c.Param("projectId")); err != nil {
		return err
	}
	return NoContentResponse(c)
}
