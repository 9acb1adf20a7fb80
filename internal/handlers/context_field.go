package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// ContextFieldHandler handles context registry API requests
type ContextFieldHandler struct {
	repo repositories.ContextFieldRepo
}

// NewContextFieldHandler creates a new context field handler
func NewContextFieldHandler(repo repositories.ContextFieldRepo) *ContextFieldHandler {
	return &ContextFieldHandler{repo: repo}
}

// CreateContextFieldRequest is the request body for registering a context field
type CreateContextFieldRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Stickiness  bool     `json:"stickiness"`
	SortOrder   int      `json:"sortOrder"`
	LegalValues []string `json:"legalValues"`
}

// RegisterRoutes registers the context registry routes
func (h *ContextFieldHandler) RegisterRoutes(g *echo.Group) {
	contexts := g.Group("/contexts")
	contexts.GET("", h.List)
	contexts.POST("", h.Create)
	contexts.GET("/:name", h.Get)
	contexts.DELETE("/:name", h.Delete)
}

// List handles GET /contexts
func (h *ContextFieldHandler) List(c echo.Context) error {
	fields, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, fields)
}

// Create handles POST /contexts
func (h *ContextFieldHandler) Create(c echo.Context) error {
	var req CreateContextFieldRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	field := &models.ContextField{
		Name:        req.Name,
		Description: req.Description,
		Stickiness:  req.Stickiness,
		SortOrder:   req.SortOrder,
	}
	if req.LegalValues != nil {
		field.LegalValues = database.JSONB[[]string]{Data: req.LegalValues}
	}
	if err := h.repo.Create(c.Request().Context(), field); err != nil {
		return err
	}

	return CreatedResponse(c, field)
}

// Get handles GET /contexts/:name
func (h *ContextFieldHandler) Get(c echo.Context) error {
	field, err := h.repo.GetByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, field)
}

// Delete handles DELETE /contexts/:name. Fields referenced by active
// constraints cannot be removed.
func (h *ContextFieldHandler) Delete(c echo.Context) error {
	if err := h.repo.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return err
	}
	return NoContentResponse(c)
}
