package handlers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/flagstate"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// FeatureHandler handles feature flag API requests. Reads go straight to the
// repositories; every mutation goes through the flag state service so it is
// guarded, serialized, audited and published.
type FeatureHandler struct {
	features   repositories.FeatureRepo
	strategies repositories.StrategyRepo
	flags      *flagstate.Service
}

// NewFeatureHandler creates a new feature handler
func NewFeatureHandler(features repositories.FeatureRepo, strategies repositories.StrategyRepo, flags *flagstate.Service) *FeatureHandler {
	return &FeatureHandler{
		features:   features,
		strategies: strategies,
		flags:      flags,
	}
}

// CreateFeatureRequest is the request body for creating a feature
type CreateFeatureRequest struct {
	Name           string           `json:"name" validate:"required"`
	Type           string           `json:"type"`
	Description    string           `json:"description"`
	ImpressionData bool             `json:"impressionData"`
	Variants       []models.Variant `json:"variants"`
}

// UpdateFeatureRequest is the request body for updating feature metadata
type UpdateFeatureRequest struct {
	Type           *string          `json:"type"`
	Description    *string          `json:"description"`
	Stale          *bool            `json:"stale"`
	ImpressionData *bool            `json:"impressionData"`
	Variants       []models.Variant `json:"variants"`
}

// StrategyRequest is the request body for adding or updating a strategy
type StrategyRequest struct {
	Name        string              `json:"name" validate:"required"`
	Parameters  map[string]string   `json:"parameters"`
	Constraints []models.Constraint `json:"constraints"`
	Variants    []models.Variant    `json:"variants"`
	Disabled    bool                `json:"disabled"`
}

// ReorderRequest is the request body for reordering strategies
type ReorderRequest struct {
	Order []uuid.UUID `json:"order" validate:"required"`
}

// FeatureResponse is a feature plus its per-environment state
type FeatureResponse struct {
	models.Feature
	Environments []models.FeatureEnvironment `json:"environments"`
}

// RegisterRoutes registers the feature routes
func (h *FeatureHandler) RegisterRoutes(g *echo.Group) {
	features := g.Group("/projects/:projectId/features")
	features.GET("", h.List)
	features.POST("", h.Create)
	features.GET("/:featureName", h.Get)
	features.PATCH("/:featureName", h.Update)
	features.DELETE("/:featureName", h.Archive)
	features.POST("/:featureName/environments/:environment/on", h.Enable)
	features.POST("/:featureName/environments/:environment/off", h.Disable)
	features.GET("/:featureName/environments/:environment/strategies", h.ListStrategies)
	features.POST("/:featureName/environments/:environment/strategies", h.AddStrategy)
	features.POST("/:featureName/environments/:environment/strategies/reorder", h.ReorderStrategies)
	features.GET("/:featureName/environments/:environment/strategies/:strategyId", h.GetStrategy)
	features.PUT("/:featureName/environments/:environment/strategies/:strategyId", h.UpdateStrategy)
	features.DELETE("/:featureName/environments/:environment/strategies/:strategyId", h.DeleteStrategy)
}

// List handles GET /projects/:projectId/features
func (h *FeatureHandler) List(c echo.Context) error {
	includeArchived := c.QueryParam("archived") == "true"
	features, err := h.features.ListByProject(c.Request().Context(), c.Param("projectId"), includeArchived)
	if err != nil {
		return err
	}
	return SuccessResponse(c, features)
}

// Create handles POST /projects/:projectId/features
func (h *FeatureHandler) Create(c echo.Context) error {
	var req CreateFeatureRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if req.Type == "" {
		req.Type = models.FeatureTypeRelease
	}

	feature := &models.Feature{
		ProjectID:      c.Param("projectId"),
		Name:           req.Name,
		Type:           req.Type,
		Description:    req.Description,
		ImpressionData: req.ImpressionData,
	}
	if req.Variants != nil {
		feature.Variants = database.JSONB[[]models.Variant]{Data: req.Variants}
	}

	created, err := h.flags.CreateFeature(c.Request().Context(), feature)
	if err != nil {
		return err
	}
	return CreatedResponse(c, created)
}

// Get handles GET /projects/:projectId/features/:featureName
func (h *FeatureHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	feature, err := h.features.GetByName(ctx, c.Param("projectId"), c.Param("featureName"))
	if err != nil {
		return err
	}
	states, err := h.features.ListEnvironmentStates(ctx, feature.ID)
	if err != nil {
		return err
	}
	return SuccessResponse(c, FeatureResponse{Feature: *feature, Environments: states})
}

// Update handles PATCH /projects/:projectId/features/:featureName
func (h *FeatureHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	feature, err := h.features.GetByName(ctx, c.Param("projectId"), c.Param("featureName"))
	if err != nil {
		return err
	}

	var req UpdateFeatureRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	if req.Type != nil {
		feature.Type = *req.Type
	}
	if req.Description != nil {
		feature.Description = *req.Description
	}
	if req.Stale != nil {
		feature.Stale = *req.Stale
	}
	if req.ImpressionData != nil {
		feature.ImpressionData = *req.ImpressionData
	}
	if req.Variants != nil {
		feature.Variants = database.JSONB[[]models.Variant]{Data: req.Variants}
	}

	updated, err := h.flags.UpdateFeature(ctx, feature)
	if err != nil {
		return err
	}
	return SuccessResponse(c, updated)
}

// Archive handles DELETE /projects/:projectId/features/:featureName
func (h *FeatureHandler) Archive(c echo.Context) error {
	err := h.flags.ArchiveFeature(c.Request().Context(), c.Param("projectId"), c.Param("featureName"))
	if err != nil {
		return err
	}
	return NoContentResponse(c)
}

// Enable handles POST .../environments/:environment/on
func (h *FeatureHandler) Enable(c echo.Context) error {
	return h.setEnabled(c, true)
}

// Disable handles POST .../environments/:environment/off
func (h *FeatureHandler) Disable(c echo.Context) error {
	return h.setEnabled(c, false)
}

func (h *FeatureHandler) setEnabled(c echo.Context, enabled bool) error {
	state, err := h.flags.SetEnabled(c.Request().Context(),
		c.Param("projectId"), c.Param("featureName"), c.Param("environment"), enabled)
	if err != nil {
		return err
	}
	return SuccessResponse(c, state)
}

// ListStrategies handles GET .../environments/:environment/strategies
func (h *FeatureHandler) ListStrategies(c echo.Context) error {
	ctx := c.Request().Context()

	feature, err := h.features.GetByName(ctx, c.Param("projectId"), c.Param("featureName"))
	if err != nil {
		return err
	}
	strategies, err := h.strategies.ListForFeatureEnvironment(ctx, feature.ID, c.Param("environment"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, strategies)
}

// GetStrategy handles GET .../strategies/:strategyId
func (h *FeatureHandler) GetStrategy(c echo.Context) error {
	id, err := ParseUUID(c, "strategyId")
	if err != nil {
		return err
	}
	strategy, err := h.strategies.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, strategy)
}

// AddStrategy handles POST .../environments/:environment/strategies
func (h *FeatureHandler) AddStrategy(c echo.Context) error {
	var req StrategyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	created, err := h.flags.AddStrategy(c.Request().Context(),
		c.Param("projectId"), c.Param("featureName"), c.Param("environment"), req.toModel(uuid.Nil))
	if err != nil {
		return err
	}
	return CreatedResponse(c, created)
}

// UpdateStrategy handles PUT .../strategies/:strategyId
func (h *FeatureHandler) UpdateStrategy(c echo.Context) error {
	id, err := ParseUUID(c, "strategyId")
	if err != nil {
		return err
	}

	var req StrategyRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	updated, err := h.flags.UpdateStrategy(c.Request().Context(),
		c.Param("projectId"), c.Param("featureName"), c.Param("environment"), req.toModel(id))
	if err != nil {
		return err
	}
	return SuccessResponse(c, updated)
}

// DeleteStrategy handles DELETE .../strategies/:strategyId
func (h *FeatureHandler) DeleteStrategy(c echo.Context) error {
	id, err := ParseUUID(c, "strategyId")
	if err != nil {
		return err
	}

	err = h.flags.DeleteStrategy(c.Request().Context(),
		c.Param("projectId"), c.Param("featureName"), c.Param("environment"), id)
	if err != nil {
		return err
	}
	return NoContentResponse(c)
}

// ReorderStrategies handles POST .../strategies/reorder
func (h *FeatureHandler) ReorderStrategies(c echo.Context) error {
	var req ReorderRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	err := h.flags.ReorderStrategies(c.Request().Context(),
		c.Param("projectId"), c.Param("featureName"), c.Param("environment"), req.Order)
	if err != nil {
		return err
	}
	return NoContentResponse(c)
}

func (r *StrategyRequest) toModel(id uuid.UUID) *models.Strategy {
	strategy := &models.Strategy{
		ID:           id,
		StrategyName: r.Name,
		Disabled:     r.Disabled,
	}
	if r.Parameters != nil {
		strategy.Parameters = database.JSONB[map[string]string]{Data: r.Parameters}
	}
	if r.Constraints != nil {
		strategy.Constraints = database.JSONB[[]models.Constraint]{Data: r.Constraints}
	}
	if r.Variants != nil {
		strategy.Variants = database.JSONB[[]models.Variant]{Data: r.Variants}
	}
	return strategy
}
