package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// StrategyDefinitionHandler handles the strategy catalog API
type StrategyDefinitionHandler struct {
	repo repositories.StrategyDefinitionRepo
}

// NewStrategyDefinitionHandler creates a new strategy definition handler
func NewStrategyDefinitionHandler(repo repositories.StrategyDefinitionRepo) *StrategyDefinitionHandler {
	return &StrategyDefinitionHandler{repo: repo}
}

// StrategyDefinitionRequest is the request body for catalog writes
type StrategyDefinitionRequest struct {
	Name        string                       `json:"name" validate:"required"`
	Description string                       `json:"description"`
	Parameters  []models.ParameterDefinition `json:"parameters"`
}

// RegisterRoutes registers the strategy catalog routes
func (h *StrategyDefinitionHandler) RegisterRoutes(g *echo.Group) {
	strategies := g.Group("/strategies")
	strategies.GET("", h.List)
	strategies.POST("", h.Create)
	strategies.GET("/:name", h.Get)
	strategies.PUT("/:name", h.Update)
}

// List handles GET /strategies
func (h *StrategyDefinitionHandler) List(c echo.Context) error {
	defs, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, defs)
}

// Get handles GET /strategies/:name
func (h *StrategyDefinitionHandler) Get(c echo.Context) error {
	def, err := h.repo.GetByName(c.Request().Context(), c.Param("name"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, def)
}

// Create handles POST /strategies
func (h *StrategyDefinitionHandler) Create(c echo.Context) error {
	var req StrategyDefinitionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if err := validateParameterDefinitions(req.Parameters); err != nil {
		return err
	}

	def := &models.StrategyDefinition{
		Name:        req.Name,
		Description: req.Description,
		Editable:    true,
		Parameters:  database.JSONB[[]models.ParameterDefinition]{Data: req.Parameters},
	}
	if err := h.repo.Create(c.Request().Context(), def); err != nil {
		return err
	}

	return CreatedResponse(c, def)
}

// Update handles PUT /strategies/:name. Built-in definitions are not
// editable, and parameter changes are rejected while instances exist.
func (h *StrategyDefinitionHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	def, err := h.repo.GetByName(ctx, c.Param("name"))
	if err != nil {
		return err
	}

	var req StrategyDefinitionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validateParameterDefinitions(req.Parameters); err != nil {
		return err
	}

	parametersChanged := !parameterDefinitionsEqual(def.Parameters.GetValue(), req.Parameters)

	def.Description = req.Description
	if req.Parameters != nil {
		def.Parameters = database.JSONB[[]models.ParameterDefinition]{Data: req.Parameters}
	}
	if err := h.repo.Update(ctx, def, parametersChanged); err != nil {
		return err
	}

	return SuccessResponse(c, def)
}

func validateParameterDefinitions(params []models.ParameterDefinition) error {
	for _, p := range params {
		if p.Name == "" {
			return BadRequest("parameter definitions require a name")
		}
		if !models.ValidParameterType(p.Type) {
			return BadRequest("unknown parameter type " + p.Type)
		}
	}
	return nil
}

func parameterDefinitionsEqual(a, b []models.ParameterDefinition) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
