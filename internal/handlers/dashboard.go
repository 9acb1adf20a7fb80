package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/appcontext"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// DashboardHandler serves the admin overview endpoints
type DashboardHandler struct {
	projects     repositories.ProjectRepo
	environments repositories.EnvironmentRepo
	features     repositories.FeatureRepo
	crs          repositories.ChangeRequestRepo
	metrics      repositories.FeatureMetricRepo
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(
	projects repositories.ProjectRepo,
	environments repositories.EnvironmentRepo,
	features repositories.FeatureRepo,
	crs repositories.ChangeRequestRepo,
	metrics repositories.FeatureMetricRepo,
) *DashboardHandler {
	return &DashboardHandler{
		projects:     projects,
		environments: environments,
		features:     features,
		crs:          crs,
		metrics:      metrics,
	}
}

// ProjectOverview summarizes one project on the dashboard
type ProjectOverview struct {
	Project        models.Project `json:"project"`
	Features       int            `json:"features"`
	OpenChangeReqs int            `json:"openChangeRequests"`
}

// DashboardResponse is the admin landing page payload
type DashboardResponse struct {
	Projects     []ProjectOverview    `json:"projects"`
	Environments []models.Environment `json:"environments"`
}

// RegisterRoutes registers the dashboard routes
func (h *DashboardHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/dashboard", h.Dashboard)
	g.GET("/me", h.Me)
	g.GET("/projects/:projectId/metrics", h.ProjectMetrics)
}

// Dashboard handles GET /dashboard
func (h *DashboardHandler) Dashboard(c echo.Context) error {
	ctx := c.Request().Context()

	projects, err := h.projects.List(ctx)
	if err != nil {
		return err
	}
	environments, err := h.environments.List(ctx)
	if err != nil {
		return err
	}

	overviews := make([]ProjectOverview, 0, len(projects))
	for _, project := range projects {
		features, err := h.features.ListByProject(ctx, project.ID, false)
		if err != nil {
			return err
		}
		crs, err := h.crs.ListByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		open := 0
		for i := range crs {
			if !crs[i].TerminalState() {
				open++
			}
		}
		overviews = append(overviews, ProjectOverview{
			Project:        project,
			Features:       len(features),
			OpenChangeReqs: open,
		})
	}

	return SuccessResponse(c, DashboardResponse{
		Projects:     overviews,
		Environments: environments,
	})
}

// Me handles GET /me
func (h *DashboardHandler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	return SuccessResponse(c, map[string]string{
		"id":   appcontext.GetUserID(ctx),
		"name": appcontext.GetUserName(ctx),
	})
}

// ProjectMetrics handles GET /projects/:projectId/metrics: yes/no
// evaluation counts per feature and environment, aggregated from client SDK
// reports.
func (h *DashboardHandler) ProjectMetrics(c echo.Context) error {
	summaries, err := h.metrics.Summarize(c.Request().Context(), c.Param("projectId"))
	if err != nil {
		return err
	}
	return SuccessResponse(c, summaries)
}
