package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/changerequest"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// ChangeRequestHandler handles the change request workflow API
type ChangeRequestHandler struct {
	service      *changerequest.Service
	environments repositories.EnvironmentRepo
}

// NewChangeRequestHandler creates a new change request handler
func NewChangeRequestHandler(service *changerequest.Service, environments repositories.EnvironmentRepo) *ChangeRequestHandler {
	return &ChangeRequestHandler{service: service, environments: environments}
}

// StateRequest is the request body for a state transition
type StateRequest struct {
	State string `json:"state" validate:"required"`
}

// ScheduleRequest is the request body for rescheduling
type ScheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// EnvironmentConfig is one environment's change request settings
type EnvironmentConfig struct {
	Environment       string `json:"environment"`
	Protected         bool   `json:"changeRequestsEnabled"`
	RequiredApprovals int    `json:"requiredApprovals"`
}

// RegisterRoutes registers the change request routes
func (h *ChangeRequestHandler) RegisterRoutes(g *echo.Group) {
	crs := g.Group("/projects/:projectId/change-requests")
	crs.GET("", h.List)
	crs.POST("", h.Create)
	crs.GET("/config", h.Config)
	crs.GET("/:id", h.Get)
	crs.PATCH("/:id", h.Reschedule)
	crs.DELETE("/:id", h.Cancel)
	crs.POST("/:id/changes", h.AddChanges)
	crs.POST("/:id/approvals", h.Approve)
	crs.PUT("/:id/state", h.SetState)
}

// List handles GET /projects/:projectId/change-requests
func (h *ChangeRequestHandler) List(c echo.Context) error {
	crs, err := h.service.List(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, crs)
}

// Create handles POST /projects/:projectId/change-requests
func (h *ChangeRequestHandler) Create(c echo.Context) error {
	var req changerequest.CreateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	cr, err := h.service.Create(c.Request().Context(), c.Param("projectId"), req)
	if err != nil {
		return err
	}
	return CreatedResponse(c, cr)
}

// Config handles GET /projects/:projectId/change-requests/config: the
// per-environment change request settings the UI needs to decide which
// environments route edits through this flow.
func (h *ChangeRequestHandler) Config(c echo.Context) error {
	envs, err := h.environments.List(c.Request().Context())
	if err != nil {
		return err
	}

	configs := make([]EnvironmentConfig, 0, len(envs))
	for _, env := range envs {
		configs = append(configs, EnvironmentConfig{
			Environment:       env.Name,
			Protected:         env.Protected,
			RequiredApprovals: env.RequiredApprovals,
		})
	}
	return SuccessResponse(c, configs)
}

// Get handles GET /projects/:projectId/change-requests/:id
func (h *ChangeRequestHandler) Get(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}
	cr, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}

// AddChanges handles POST .../change-requests/:id/changes
func (h *ChangeRequestHandler) AddChanges(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var inputs []changerequest.ChangeInput
	if err := c.Bind(&inputs); err != nil {
		return BadRequest("invalid request body")
	}
	if len(inputs) == 0 {
		return BadRequest("at least one change is required")
	}

	cr, err := h.service.AddChanges(c.Request().Context(), id, inputs)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}

// Approve handles POST .../change-requests/:id/approvals
func (h *ChangeRequestHandler) Approve(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}
	if _, err := RequireUser(c); err != nil {
		return err
	}

	cr, err := h.service.Approve(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}

// SetState handles PUT .../change-requests/:id/state. The target state
// selects the transition; Approved is only reachable through approvals and
// Applied through this endpoint's apply path.
func (h *ChangeRequestHandler) SetState(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req StateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}

	ctx := c.Request().Context()
	var cr *models.ChangeRequest
	switch req.State {
	case models.ChangeRequestStateInReview:
		cr, err = h.service.Submit(ctx, id)
	case models.ChangeRequestStateRejected:
		cr, err = h.service.Reject(ctx, id)
	case models.ChangeRequestStateCancelled:
		cr, err = h.service.Cancel(ctx, id)
	case models.ChangeRequestStateApplied:
		cr, err = h.service.Apply(ctx, id)
	default:
		return BadRequest("cannot transition to state " + req.State)
	}
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}

// Reschedule handles PATCH .../change-requests/:id
func (h *ChangeRequestHandler) Reschedule(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}

	cr, err := h.service.UpdateSchedule(c.Request().Context(), id, req.ScheduledAt)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}

// Cancel handles DELETE .../change-requests/:id
func (h *ChangeRequestHandler) Cancel(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	cr, err := h.service.Cancel(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cr)
}
