// Package changerequest implements the approval workflow that gates flag
// mutations in protected environments: draft, review, approval counting,
// and atomic application of the approved change set.
package changerequest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/appcontext"
	"github.com/redmoon-ch/unchain/pkg/audit"
	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/flagstate"
	"github.com/redmoon-ch/unchain/pkg/kafka"
	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/redis"
	"github.com/redmoon-ch/unchain/pkg/repositories"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

// scheduleSkew tolerates clock drift between the caller and the server when
// validating a scheduled apply time.
const scheduleSkew = time.Minute

const applyLockTTL = 30 * time.Second

// Service drives the change request state machine
type Service struct {
	crs          repositories.ChangeRequestRepo
	environments repositories.EnvironmentRepo
	features     repositories.FeatureRepo
	flags        *flagstate.Service
	audit        *audit.Service
	locker       *redis.Locker
	producer     *kafka.Producer
	logger       ectologger.Logger
}

// NewService creates a new change request service
func NewService(
	crs repositories.ChangeRequestRepo,
	environments repositories.EnvironmentRepo,
	features repositories.FeatureRepo,
	flags *flagstate.Service,
	auditService *audit.Service,
	locker *redis.Locker,
	producer *kafka.Producer,
	logger ectologger.Logger,
) *Service {
	return &Service{
		crs:          crs,
		environments: environments,
		features:     features,
		flags:        flags,
		audit:        auditService,
		locker:       locker,
		producer:     producer,
		logger:       logger,
	}
}

// CreateRequest is the input for creating a change request
type CreateRequest struct {
	Environment string     `json:"environment" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// ChangeInput is one requested mutation inside a change request
type ChangeInput struct {
	FeatureName string          `json:"feature" validate:"required"`
	Action      string          `json:"action" validate:"required"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Create opens a Draft change request against a protected environment.
// The environment's required approval count is snapshotted onto the request
// so later environment edits never move the bar for in-flight requests.
func (s *Service) Create(ctx context.Context, projectID string, req CreateRequest) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.Create")
	defer span.End()

	env, err := s.environments.GetByName(ctx, req.Environment)
	if err != nil {
		return nil, err
	}
	if !env.Protected {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest,
			"environment %s is not protected: apply changes directly", req.Environment)
	}
	if err := validateSchedule(req.ScheduledAt); err != nil {
		return nil, err
	}

	cr := &models.ChangeRequest{
		ProjectID:    projectID,
		Environment:  req.Environment,
		Title:        req.Title,
		State:        models.ChangeRequestStateDraft,
		MinApprovals: env.RequiredApprovals,
		CreatedBy:    appcontext.GetUserName(ctx),
		ScheduledAt:  req.ScheduledAt,
	}
	if err := s.crs.Create(ctx, cr); err != nil {
		return nil, err
	}

	if err := s.appendAudit(ctx, cr, "change_request.created", map[string]any{"title": cr.Title}); err != nil {
		return nil, err
	}

	metrics.RecordChangeRequestTransition(cr.State)
	s.publishEvent(ctx, "change_request.created", cr, nil)
	return cr, nil
}

// Get loads one change request with its changes and approvals
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.crs.GetByID(ctx, id)
}

// List returns a project's change requests, newest first
func (s *Service) List(ctx context.Context, projectID string) ([]models.ChangeRequest, error) {
	return s.crs.ListByProject(ctx, projectID)
}

// AddChanges appends mutations to a Draft change request. Payload shapes are
// checked now; validation against live flag state happens at apply time.
// Duplicate changes (same feature, action and payload) are dropped.
func (s *Service) AddChanges(ctx context.Context, id uuid.UUID, inputs []ChangeInput) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.AddChanges")
	defer span.End()

	cr, err := s.crs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.State != models.ChangeRequestStateDraft {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change request %s is %s: changes can only be added in Draft", id, cr.State)
	}

	for _, input := range inputs {
		if err := s.validateChangeInput(ctx, cr.ProjectID, input); err != nil {
			return nil, err
		}
	}

	txCtx, tx, err := s.crs.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for _, input := range inputs {
		change := &models.ChangeRequestChange{
			ChangeRequestID: id,
			FeatureName:     input.FeatureName,
			Action:          input.Action,
		}
		if len(input.Payload) > 0 {
			change.Payload = database.JSONB[json.RawMessage]{Data: input.Payload}
		}
		if _, err := s.crs.AddChange(txCtx, change); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return s.crs.GetByID(ctx, id)
}

// Submit moves a Draft change request into review, freezing its change set
func (s *Service) Submit(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.transition(ctx, id,
		[]string{models.ChangeRequestStateDraft},
		models.ChangeRequestStateInReview, "change_request.submitted")
}

// Reject terminates a change request in review without touching flag state
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.transition(ctx, id,
		[]string{models.ChangeRequestStateInReview},
		models.ChangeRequestStateRejected, "change_request.rejected")
}

// Cancel terminates a Draft or in-review change request
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	return s.transition(ctx, id,
		[]string{models.ChangeRequestStateDraft, models.ChangeRequestStateInReview},
		models.ChangeRequestStateCancelled, "change_request.cancelled")
}

// Approve records one approval vote. Each approver counts once regardless of
// how often they approve, and the creator cannot approve their own request.
// When the vote count reaches the snapshotted minimum the request moves to
// Approved in the same transaction as the count.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.Approve")
	defer span.End()

	cr, err := s.crs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.State != models.ChangeRequestStateInReview {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change request %s is %s: approvals are only accepted in review", id, cr.State)
	}

	approver := appcontext.GetUserName(ctx)
	if approver == cr.CreatedBy {
		return nil, httperror.NewHTTPError(http.StatusForbidden,
			"change request authors cannot approve their own request")
	}

	txCtx, tx, err := s.crs.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	count, err := s.crs.Approve(txCtx, id, approver)
	if err != nil {
		return nil, err
	}

	approved := count >= cr.MinApprovals
	if approved {
		if err := s.crs.TransitionState(txCtx, id,
			[]string{models.ChangeRequestStateInReview}, models.ChangeRequestStateApproved); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if approved {
		metrics.RecordChangeRequestTransition(models.ChangeRequestStateApproved)
		if err := s.appendAudit(ctx, cr, "change_request.approved",
			map[string]any{"approvals": count, "minApprovals": cr.MinApprovals}); err != nil {
			s.logger.WithContext(ctx).WithError(err).Errorf("Failed to audit approval of change request %s", id)
		}
		s.publishEvent(ctx, "change_request.approved", cr, map[string]any{"approvals": count})
	}

	return s.crs.GetByID(ctx, id)
}

// UpdateSchedule changes when an approved change request is applied
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledAt *time.Time) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.UpdateSchedule")
	defer span.End()

	cr, err := s.crs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.TerminalState() {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change request %s is %s and can no longer be scheduled", id, cr.State)
	}
	if err := validateSchedule(scheduledAt); err != nil {
		return nil, err
	}

	if err := s.crs.UpdateScheduledAt(ctx, id, scheduledAt); err != nil {
		return nil, err
	}
	return s.crs.GetByID(ctx, id)
}

// Apply executes every change of an Approved change request in insertion
// order inside one database transaction, holding the same per-feature locks
// as interactive mutations. Any failure rolls back all changes, records the
// failure on the request and leaves it Approved for a retry.
func (s *Service) Apply(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.Apply")
	defer span.End()
	start := time.Now()

	cr, err := s.crs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.State != models.ChangeRequestStateApproved {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change request %s is %s: only approved requests can be applied", id, cr.State)
	}
	if cr.ScheduledAt != nil && cr.ScheduledAt.After(time.Now()) {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict,
			"change request %s is scheduled for %s", id, cr.ScheduledAt.Format(time.RFC3339))
	}

	locks, err := s.lockFeatures(ctx, cr)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, lock := range locks {
			lock.Release(ctx)
		}
	}()

	actor := appcontext.GetUserName(ctx)
	if err := s.applyChanges(ctx, cr, actor); err != nil {
		if failErr := s.crs.SetApplyFailure(ctx, id, err.Error()); failErr != nil {
			s.logger.WithContext(ctx).WithError(failErr).Errorf("Failed to record apply failure on change request %s", id)
		}
		return nil, httperror.NewHTTPErrorf(http.StatusUnprocessableEntity,
			"change request %s could not be applied: %v", id, err)
	}

	metrics.ChangeRequestApplyDuration.Observe(time.Since(start).Seconds())
	metrics.RecordChangeRequestTransition(models.ChangeRequestStateApplied)
	s.publishEvent(ctx, "change_request.applied", cr, map[string]any{"changes": len(cr.Changes)})
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"change_request_id": id,
		"project":           cr.ProjectID,
		"environment":       cr.Environment,
		"changes":           len(cr.Changes),
	}).Infof("Applied change request %s", id)

	return s.crs.GetByID(ctx, id)
}

// lockFeatures takes the per-feature mutation locks for every feature the
// change set touches. Keys are sorted so concurrent applies of overlapping
// requests fail fast instead of half-locking each other.
func (s *Service) lockFeatures(ctx context.Context, cr *models.ChangeRequest) ([]*redis.Lock, error) {
	seen := make(map[string]bool)
	keys := make([]string, 0, len(cr.Changes))
	for _, change := range cr.Changes {
		key := flagstate.LockKey(cr.ProjectID, change.FeatureName, cr.Environment)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	locks := make([]*redis.Lock, 0, len(keys))
	for _, key := range keys {
		lock, err := s.locker.Acquire(ctx, key, applyLockTTL)
		if err != nil {
			for _, held := range locks {
				held.Release(ctx)
			}
			if errors.Is(err, redis.ErrLockNotAcquired) {
				return nil, httperror.NewHTTPError(http.StatusConflict,
					"a feature in this change request is being modified, retry shortly")
			}
			return nil, err
		}
		locks = append(locks, lock)
	}
	return locks, nil
}

func (s *Service) applyChanges(ctx context.Context, cr *models.ChangeRequest, actor string) error {
	txCtx, tx, err := s.crs.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, change := range cr.Changes {
		err := s.flags.ApplyAction(txCtx, cr.ProjectID, cr.Environment,
			change.FeatureName, change.Action, change.Payload.GetValue(), actor)
		if err != nil {
			return fmt.Errorf("change %s on feature %s: %w", change.Action, change.FeatureName, err)
		}
	}

	if err := s.crs.MarkApplied(txCtx, cr.ID); err != nil {
		return err
	}

	if err := s.appendAudit(txCtx, cr, "change_request.applied",
		map[string]any{"changes": len(cr.Changes)}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// transition performs a guarded state transition plus its audit entry and
// event.
func (s *Service) transition(ctx context.Context, id uuid.UUID, fromStates []string, toState, eventType string) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestService.transition")
	defer span.End()

	cr, err := s.crs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.crs.TransitionState(ctx, id, fromStates, toState); err != nil {
		return nil, err
	}

	metrics.RecordChangeRequestTransition(toState)
	if err := s.appendAudit(ctx, cr, eventType, map[string]any{"from": cr.State, "to": toState}); err != nil {
		s.logger.WithContext(ctx).WithError(err).Errorf("Failed to audit transition of change request %s", id)
	}
	s.publishEvent(ctx, eventType, cr, map[string]any{"from": cr.State, "to": toState})

	return s.crs.GetByID(ctx, id)
}

// validateChangeInput checks the action, the target feature and the payload
// shape. Strategy payloads are fully validated against live state when the
// request is applied.
func (s *Service) validateChangeInput(ctx context.Context, projectID string, input ChangeInput) error {
	if !models.ValidChangeAction(input.Action) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown change action %s", input.Action)
	}

	feature, err := s.features.GetByName(ctx, projectID, input.FeatureName)
	if err != nil {
		return err
	}
	if feature.Archived {
		return httperror.NewHTTPErrorf(http.StatusConflict, "feature %s is archived", input.FeatureName)
	}

	return ValidatePayloadShape(input.Action, input.Payload)
}

// ValidatePayloadShape checks that a change payload has the fields its
// action requires.
func ValidatePayloadShape(action string, payload json.RawMessage) error {
	switch action {
	case models.ChangeActionEnable, models.ChangeActionDisable, models.ChangeActionArchiveFeature:
		if len(payload) > 0 && string(payload) != "null" && string(payload) != "{}" {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s changes take no payload", action)
		}
	case models.ChangeActionAddStrategy:
		var strategy models.Strategy
		if err := json.Unmarshal(payload, &strategy); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s payload: %v", action, err)
		}
		if strategy.StrategyName == "" {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s payload requires a strategy name", action)
		}
	case models.ChangeActionUpdateStrategy:
		var strategy models.Strategy
		if err := json.Unmarshal(payload, &strategy); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s payload: %v", action, err)
		}
		if strategy.ID == uuid.Nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s payload requires a strategy id", action)
		}
		if strategy.StrategyName == "" {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s payload requires a strategy name", action)
		}
	case models.ChangeActionDeleteStrategy:
		var body struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(payload, &body); err != nil || body.ID == uuid.Nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "%s payload requires a strategy id", action)
		}
	}
	return nil
}

func validateSchedule(scheduledAt *time.Time) error {
	if scheduledAt != nil && time.Since(*scheduledAt) > scheduleSkew {
		return httperror.NewHTTPError(http.StatusBadRequest, "scheduledAt must not be in the past")
	}
	return nil
}

func (s *Service) appendAudit(ctx context.Context, cr *models.ChangeRequest, action string, data map[string]any) error {
	entry := &models.AuditLogEntry{
		EntityType:  "change-request",
		EntityID:    cr.ID.String(),
		Action:      action,
		ChangedBy:   appcontext.GetUserName(ctx),
		ProjectID:   &cr.ProjectID,
		Environment: &cr.Environment,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		entry.Data = database.JSONB[json.RawMessage]{Data: raw}
	}
	return s.audit.Append(ctx, entry)
}

func (s *Service) publishEvent(ctx context.Context, eventType string, cr *models.ChangeRequest, data map[string]any) {
	if s.producer == nil {
		return
	}

	err := s.producer.Publish(ctx, &kafka.FlagEventMessage{
		Type:        eventType,
		Project:     cr.ProjectID,
		Environment: cr.Environment,
		EntityID:    cr.ID.String(),
		Actor:       appcontext.GetUserName(ctx),
		Timestamp:   time.Now().UTC(),
		TraceID:     tracing.GetTraceID(ctx),
		SpanID:      tracing.GetSpanID(ctx),
		Data:        data,
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %s event for change request %s", eventType, cr.ID)
	}
}
