package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// EnvironmentHandler handles environment API requests
type EnvironmentHandler struct {
	repo repositories.EnvironmentRepo
}

// NewEnvironmentHandler creates a new environment handler
func NewEnvironmentHandler(repo repositories.EnvironmentRepo) *EnvironmentHandler {
	return &EnvironmentHandler{repo: repo}
}

// CreateEnvironmentRequest is the request body for creating an environment
type CreateEnvironmentRequest struct {
	Name              string `json:"name" validate:"required"`
	Type              string `json:"type" validate:"required"`
	Enabled           bool   `json:"enabled"`
	Protected         bool   `json:"protected"`
	RequiredApprovals int    `json:"requiredApprovals"`
	SortOrder         int    `json:"sortOrder"`
}

// UpdateEnvironmentRequest is the request body for updating an environment
type UpdateEnvironmentRequest struct {
	Type              string `json:"type"`
	Enabled           *bool  `json:"enabled"`
	Protected         *bool  `json:"protected"`
	RequiredApprovals *int   `json:"requiredApprovals"`
	SortOrder         *int   `json:"sortOrder"`
}

// RegisterRoutes registers the environment routes
func (h *EnvironmentHandler) RegisterRoutes(g *echo.Group) {
	envs := g.Group("/environments")
	envs.GET("", h.List)
	envs.POST("", h.Create)
	envs.GET("/:name", h.Get)
	envs.PUT("/update/:name", h.Update)
}

// List handles GET /environments
func (h *EnvironmentHandler) List(c echo.Context) error {
	envs, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, envs)
}

// Create handles POST /environments
func (h *EnvironmentHandler) Create(c echo.Context) error {
	var req CreateEnvironmentRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if !models.ValidEnvironmentType(req.Type) {
		return BadRequest("unknown environment type " + req.Type)
	}
	if req.Protected && req.RequiredApprovals < 1 {
		return BadRequest("protected environments require at least one approval")
	}

	env := &models.Environment{
		Name:              req.Name,
		Type:              req.Type,
		Enabled:           req.Enabled,
		Protected:         req.Protected,
		RequiredApprovals: req.RequiredApprovals,
		SortOrder:         req.SortOrder,
	}
	if err := h.repo.Create(c.Request().Context(), env); err != nil {
		return err
	}

	return CreatedResponse(c, env)
}

// Get handles GET /environments/:name
func (h *EnvironmentHandler) Get(c echo.Context) error {
	env, err := h.repo.GetByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, env)
}

// Update handles PUT /environments/update/:name
func (h *EnvironmentHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	env, err := h.repo.GetByName(ctx, c.Param("name"))
	if err != nil {
		return err
	}

	var req UpdateEnvironmentRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Type != "" {
		if !models.ValidEnvironmentType(req.Type) {
			return BadRequest("unknown environment type " + req.Type)
		}
		env.Type = req.Type
	}
	if req.Enabled != nil {
		env.Enabled = *req.Enabled
	}
	if req.Protected != nil {
		env.Protected = *req.Protected
	}
	if req.RequiredApprovals != nil {
		env.RequiredApprovals = *req.RequiredApprovals
	}
	if req.SortOrder != nil {
		env.SortOrder = *req.SortOrder
	}
	if env.Protected && env.RequiredApprovals < 1 {
		return BadRequest("protected environments require at least one approval")
	}

	if err := h.repo.Update(ctx, env); err != nil {
		return err
	}
	return SuccessResponse(c, env)
}
