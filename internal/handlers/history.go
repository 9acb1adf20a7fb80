package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/audit"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// HistoryHandler serves the audit history API
type HistoryHandler struct {
	audit *audit.Service
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(auditService *audit.Service) *HistoryHandler {
	return &HistoryHandler{audit: auditService}
}

// HistoryResponse is the audit entries plus the verification summary for
// the returned span of the chain.
type HistoryResponse struct {
	Entries []models.AuditLogEntry `json:"entries"`
	Summary audit.ChainSummary     `json:"summary"`
}

// RegisterRoutes registers the history routes
func (h *HistoryHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/projects/:projectId/history", h.List)
}

// List handles GET /projects/:projectId/history
func (h *HistoryHandler) List(c echo.Context) error {
	filter := repositories.AuditLogFilter{
		ProjectID:   c.Param("projectId"),
		Environment: c.QueryParam("environment"),
		Feature:     c.QueryParam("feature"),
	}
	if from := c.QueryParam("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return BadRequest("from must be an RFC3339 timestamp")
		}
		filter.From = &t
	}

	entries, summary, err := h.audit.History(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	return SuccessResponse(c, HistoryResponse{Entries: entries, Summary: summary})
}
