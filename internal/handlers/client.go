package handlers

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/redmoon-ch/unchain/pkg/evaluation"
	"github.com/redmoon-ch/unchain/pkg/flagstate"
	"github.com/redmoon-ch/unchain/pkg/kafka"
	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
)

// ClientHandler serves the SDK-facing API: feature snapshots for client-side
// evaluation, server-side evaluation and metric ingestion.
type ClientHandler struct {
	flags         *flagstate.Service
	featureMetric repositories.FeatureMetricRepo
	producer      *kafka.Producer
}

// NewClientHandler creates a new client API handler
func NewClientHandler(flags *flagstate.Service, featureMetric repositories.FeatureMetricRepo, producer *kafka.Producer) *ClientHandler {
	return &ClientHandler{flags: flags, featureMetric: featureMetric, producer: producer}
}

// EvaluateRequest is the request body for server-side evaluation
type EvaluateRequest struct {
	Project     string             `json:"project" validate:"required"`
	Environment string             `json:"environment" validate:"required"`
	Context     evaluation.Context `json:"context"`
}

// MetricsRequest is an SDK metrics report: per-feature yes/no counts over
// one bucket interval.
type MetricsRequest struct {
	AppName     string                  `json:"appName" validate:"required"`
	Project     string                  `json:"project" validate:"required"`
	Environment string                  `json:"environment" validate:"required"`
	Bucket      MetricsBucket           `json:"bucket" validate:"required"`
	Toggles     map[string]ToggleCounts `json:"toggles"`
}

// MetricsBucket is the reporting interval of a metrics report
type MetricsBucket struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// ToggleCounts is the evaluation outcome tally for one feature
type ToggleCounts struct {
	Yes int64 `json:"yes"`
	No  int64 `json:"no"`
}

// RegisterRoutes registers the client API routes
func (h *ClientHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/features", h.Features)
	g.POST("/evaluate", h.Evaluate)
	g.POST("/metrics", h.Metrics)
}

// Features handles GET /features: the full snapshot of a project's features
// in one environment, for SDKs that evaluate locally.
func (h *ClientHandler) Features(c echo.Context) error {
	project := c.QueryParam("project")
	environment := c.QueryParam("environment")
	if project == "" || environment == "" {
		return BadRequest("project and environment query parameters are required")
	}

	snapshots, err := h.flags.Snapshot(c.Request().Context(), project, environment)
	if err != nil {
		return err
	}
	return SuccessResponse(c, snapshots)
}

// Evaluate handles POST /evaluate: server-side evaluation of every feature
// in the project against the supplied context.
func (h *ClientHandler) Evaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if req.Context.Environment == "" {
		req.Context.Environment = req.Environment
	}

	snapshots, err := h.flags.Snapshot(c.Request().Context(), req.Project, req.Environment)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	results := make([]evaluation.Result, 0, len(snapshots))
	for _, snap := range snapshots {
		start := time.Now()
		result := evaluation.EvaluateFeature(snap, &req.Context)
		metrics.RecordEvaluation(req.Project, req.Environment, result.Enabled, time.Since(start).Seconds())

		// Impression events are best effort: SDK analytics must not affect the
		// evaluation response.
		if result.Impression && h.producer != nil {
			data := map[string]any{"enabled": result.Enabled}
			if result.Variant != nil {
				data["variant"] = result.Variant.Name
			}
			_ = h.producer.Publish(ctx, &kafka.FlagEventMessage{
				Type:        "feature.impression",
				Project:     req.Project,
				Environment: req.Environment,
				FeatureName: result.FeatureName,
				Actor:       req.Context.UserID,
				Data:        data,
			})
		}
		results = append(results, result)
	}
	return SuccessResponse(c, results)
}

// Metrics handles POST /metrics: ingests one SDK metrics bucket
func (h *ClientHandler) Metrics(c echo.Context) error {
	ctx := c.Request().Context()

	var req MetricsRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return BadRequest(err.Error())
	}
	if req.Bucket.Stop.Before(req.Bucket.Start) {
		return BadRequest("bucket stop must not precede bucket start")
	}

	for featureName, counts := range req.Toggles {
		metric := &models.FeatureMetric{
			ProjectID:   req.Project,
			FeatureName: featureName,
			Environment: req.Environment,
			AppName:     req.AppName,
			Yes:         counts.Yes,
			No:          counts.No,
			BucketStart: req.Bucket.Start,
			BucketEnd:   req.Bucket.Stop,
		}
		if err := h.featureMetric.Insert(ctx, metric); err != nil {
			return err
		}
		metrics.MetricsIngestedTotal.Inc()
	}

	return NoContentResponse(c)
}
