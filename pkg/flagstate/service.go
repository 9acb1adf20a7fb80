// Package flagstate is the write side of the flag store: it serializes
// mutations per feature and environment, keeps the audit log in step with
// every change and publishes lifecycle events.
package flagstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/appcontext"
	"github.com/redmoon-ch/unchain/pkg/audit"
	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/evaluation"
	"github.com/redmoon-ch/unchain/pkg/kafka"
	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/redis"
	"github.com/redmoon-ch/unchain/pkg/repositories"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

// lockTTL bounds how long a crashed writer can hold a feature lock.
const lockTTL = 10 * time.Second

// LockKey is the redis lock key serializing writes to one feature in one
// environment. Change request application uses the same keys, so interactive
// edits and scheduled applies never interleave.
func LockKey(projectID, featureName, environment string) string {
	return fmt.Sprintf("flag:%s:%s:%s", projectID, featureName, environment)
}

// Service mutates feature flag state. Every operation checks environment
// protection, takes the per-feature redis lock, applies its writes in one
// database transaction with the audit entry, and publishes a kafka event
// after commit.
type Service struct {
	features     repositories.FeatureRepo
	strategies   repositories.StrategyRepo
	environments repositories.EnvironmentRepo
	definitions  repositories.StrategyDefinitionRepo
	contexts     repositories.ContextFieldRepo
	crs          repositories.ChangeRequestRepo
	audit        *audit.Service
	locker       *redis.Locker
	producer     *kafka.Producer
	logger       ectologger.Logger
}

// NewService creates a new flag state service
func NewService(
	features repositories.FeatureRepo,
	strategies repositories.StrategyRepo,
	environments repositories.EnvironmentRepo,
	definitions repositories.StrategyDefinitionRepo,
	contexts repositories.ContextFieldRepo,
	crs repositories.ChangeRequestRepo,
	auditService *audit.Service,
	locker *redis.Locker,
	producer *kafka.Producer,
	logger ectologger.Logger,
) *Service {
	return &Service{
		features:     features,
		strategies:   strategies,
		environments: environments,
		definitions:  definitions,
		contexts:     contexts,
		crs:          crs,
		audit:        auditService,
		locker:       locker,
		producer:     producer,
		logger:       logger,
	}
}

// CreateFeature creates a flag, disabled in every environment
func (s *Service) CreateFeature(ctx context.Context, feature *models.Feature) (*models.Feature, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.CreateFeature")
	defer span.End()

	if err := ValidateVariants(feature.Variants.GetValue()); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.features.Create(txCtx, feature); err != nil {
		metrics.RecordFlagMutation("create_feature", "error")
		return nil, err
	}
	if err := s.appendAudit(txCtx, feature, nil, "feature.created",
		map[string]any{"type": feature.Type}, appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("create_feature", "error")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("create_feature", "error")
		return nil, err
	}

	metrics.RecordFlagMutation("create_feature", "ok")
	s.publishEvent(ctx, "feature.created", feature.ProjectID, "", feature.Name, feature.ID.String(), nil)
	return feature, nil
}

// UpdateFeature updates flag metadata and default variants. Per-environment
// state is untouched, so no environment guard applies.
func (s *Service) UpdateFeature(ctx context.Context, feature *models.Feature) (*models.Feature, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.UpdateFeature")
	defer span.End()

	if err := ValidateVariants(feature.Variants.GetValue()); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.features.Update(txCtx, feature); err != nil {
		metrics.RecordFlagMutation("update_feature", "error")
		return nil, err
	}
	if err := s.appendAudit(txCtx, feature, nil, "feature.metadata-updated", nil,
		appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("update_feature", "error")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("update_feature", "error")
		return nil, err
	}

	metrics.RecordFlagMutation("update_feature", "ok")
	s.publishEvent(ctx, "feature.updated", feature.ProjectID, "", feature.Name, feature.ID.String(), nil)
	return feature, nil
}

// guardEnvironment rejects direct mutations in protected environments
func (s *Service) guardEnvironment(ctx context.Context, environment string) error {
	env, err := s.environments.GetByName(ctx, environment)
	if err != nil {
		return err
	}
	if env.Protected {
		return httperror.NewHTTPErrorf(http.StatusForbidden,
			"environment %s is protected: changes require an approved change request", environment)
	}
	return nil
}

func (s *Service) lock(ctx context.Context, projectID, featureName, environment string) (*redis.Lock, error) {
	lock, err := s.locker.Acquire(ctx, LockKey(projectID, featureName, environment), lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict,
				"feature %s is being modified by another request, retry shortly", featureName)
		}
		return nil, err
	}
	return lock, nil
}

// SetEnabled toggles a feature in one environment. Enabling a feature that
// has no strategies seeds a default strategy so it rolls out to everyone.
func (s *Service) SetEnabled(ctx context.Context, projectID, featureName, environment string, enabled bool) (*models.FeatureEnvironment, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.SetEnabled")
	defer span.End()

	operation := "disable"
	if enabled {
		operation = "enable"
	}

	if err := s.guardEnvironment(ctx, environment); err != nil {
		return nil, err
	}
	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return nil, err
	}

	lock, err := s.lock(ctx, projectID, featureName, environment)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	state, err := s.applyEnable(txCtx, feature, environment, enabled, appcontext.GetUserName(ctx))
	if err != nil {
		metrics.RecordFlagMutation(operation, "error")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation(operation, "error")
		return nil, err
	}

	metrics.RecordFlagMutation(operation, "ok")
	s.publishEvent(ctx, "feature.updated", projectID, environment, featureName, feature.ID.String(),
		map[string]any{"enabled": enabled})
	return state, nil
}

// AddStrategy appends a strategy to a feature in one environment
func (s *Service) AddStrategy(ctx context.Context, projectID, featureName, environment string, strategy *models.Strategy) (*models.Strategy, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.AddStrategy")
	defer span.End()

	if err := s.guardEnvironment(ctx, environment); err != nil {
		return nil, err
	}
	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return nil, err
	}

	lock, err := s.lock(ctx, projectID, featureName, environment)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.applyAddStrategy(txCtx, feature, environment, strategy, appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("add_strategy", "error")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("add_strategy", "error")
		return nil, err
	}

	metrics.RecordFlagMutation("add_strategy", "ok")
	s.publishEvent(ctx, "feature.updated", projectID, environment, featureName, strategy.ID.String(),
		map[string]any{"strategy": strategy.StrategyName})
	return strategy, nil
}

// UpdateStrategy replaces a strategy row. Strategy edits are whole-row: the
// given parameters, constraints and variants overwrite the stored ones.
func (s *Service) UpdateStrategy(ctx context.Context, projectID, featureName, environment string, strategy *models.Strategy) (*models.Strategy, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.UpdateStrategy")
	defer span.End()

	if err := s.guardEnvironment(ctx, environment); err != nil {
		return nil, err
	}
	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return nil, err
	}

	lock, err := s.lock(ctx, projectID, featureName, environment)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	updated, err := s.applyUpdateStrategy(txCtx, feature, environment, strategy, appcontext.GetUserName(ctx))
	if err != nil {
		metrics.RecordFlagMutation("update_strategy", "error")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("update_strategy", "error")
		return nil, err
	}

	metrics.RecordFlagMutation("update_strategy", "ok")
	s.publishEvent(ctx, "feature.updated", projectID, environment, featureName, updated.ID.String(),
		map[string]any{"strategy": updated.StrategyName})
	return updated, nil
}

// DeleteStrategy removes a strategy from a feature in one environment
func (s *Service) DeleteStrategy(ctx context.Context, projectID, featureName, environment string, strategyID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.DeleteStrategy")
	defer span.End()

	if err := s.guardEnvironment(ctx, environment); err != nil {
		return err
	}
	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return err
	}

	lock, err := s.lock(ctx, projectID, featureName, environment)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.applyDeleteStrategy(txCtx, feature, environment, strategyID, appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("delete_strategy", "error")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("delete_strategy", "error")
		return err
	}

	metrics.RecordFlagMutation("delete_strategy", "ok")
	s.publishEvent(ctx, "feature.updated", projectID, environment, featureName, strategyID.String(), nil)
	return nil
}

// ReorderStrategies rewrites the evaluation order of a feature's strategies
// in one environment. orderedIDs must list every strategy exactly once.
func (s *Service) ReorderStrategies(ctx context.Context, projectID, featureName, environment string, orderedIDs []uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.ReorderStrategies")
	defer span.End()

	if err := s.guardEnvironment(ctx, environment); err != nil {
		return err
	}
	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return err
	}

	lock, err := s.lock(ctx, projectID, featureName, environment)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	existing, err := s.strategies.ListForFeatureEnvironment(txCtx, feature.ID, environment)
	if err != nil {
		return err
	}
	if len(orderedIDs) != len(existing) {
		return httperror.NewHTTPErrorf(http.StatusBadRequest,
			"reorder must list all %d strategies, got %d", len(existing), len(orderedIDs))
	}

	if err := s.strategies.Reorder(txCtx, feature.ID, environment, orderedIDs); err != nil {
		metrics.RecordFlagMutation("reorder_strategies", "error")
		return err
	}

	if err := s.appendAudit(txCtx, feature, &environment, "strategies.reordered",
		map[string]any{"order": orderedIDs}, appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("reorder_strategies", "error")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("reorder_strategies", "error")
		return err
	}

	metrics.RecordFlagMutation("reorder_strategies", "ok")
	s.publishEvent(ctx, "feature.updated", projectID, environment, featureName, feature.ID.String(), nil)
	return nil
}

// ArchiveFeature archives a feature across all environments. A feature with
// pending change requests cannot be archived, and one still enabled in a
// protected environment must be disabled through the change request flow
// first.
func (s *Service) ArchiveFeature(ctx context.Context, projectID, featureName string) error {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.ArchiveFeature")
	defer span.End()

	feature, err := s.getActiveFeature(ctx, projectID, featureName)
	if err != nil {
		return err
	}

	pendingCRs, err := s.crs.CountPendingByFeature(ctx, projectID, featureName)
	if err != nil {
		return err
	}
	if pendingCRs > 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict,
			"feature %s has %d pending change requests", featureName, pendingCRs)
	}

	enabledProtected, err := s.features.CountEnabledProtected(ctx, feature.ID)
	if err != nil {
		return err
	}
	if enabledProtected > 0 {
		return httperror.NewHTTPErrorf(http.StatusForbidden,
			"feature %s is enabled in a protected environment: disable it via a change request first", featureName)
	}

	lock, err := s.locker.Acquire(ctx, fmt.Sprintf("flag:%s:%s", projectID, featureName), lockTTL)
	if err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return httperror.NewHTTPErrorf(http.StatusConflict,
				"feature %s is being modified by another request, retry shortly", featureName)
		}
		return err
	}
	defer lock.Release(ctx)

	txCtx, tx, err := s.features.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.applyArchive(txCtx, feature, appcontext.GetUserName(ctx)); err != nil {
		metrics.RecordFlagMutation("archive_feature", "error")
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordFlagMutation("archive_feature", "error")
		return err
	}

	metrics.RecordFlagMutation("archive_feature", "ok")
	s.publishEvent(ctx, "feature.archived", projectID, "", featureName, feature.ID.String(), nil)
	return nil
}

// ApplyAction performs one change request change inside the caller's
// transaction. The caller holds the feature locks and has already verified
// approvals, so protection checks are skipped here.
func (s *Service) ApplyAction(txCtx context.Context, projectID, environment, featureName, action string, payload json.RawMessage, actor string) error {
	feature, err := s.getActiveFeature(txCtx, projectID, featureName)
	if err != nil {
		return err
	}

	switch action {
	case models.ChangeActionEnable:
		_, err = s.applyEnable(txCtx, feature, environment, true, actor)
	case models.ChangeActionDisable:
		_, err = s.applyEnable(txCtx, feature, environment, false, actor)
	case models.ChangeActionAddStrategy:
		var strategy models.Strategy
		if err := json.Unmarshal(payload, &strategy); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid add-strategy payload: %v", err)
		}
		err = s.applyAddStrategy(txCtx, feature, environment, &strategy, actor)
	case models.ChangeActionUpdateStrategy:
		var strategy models.Strategy
		if err := json.Unmarshal(payload, &strategy); err != nil {
			return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid update-strategy payload: %v", err)
		}
		_, err = s.applyUpdateStrategy(txCtx, feature, environment, &strategy, actor)
	case models.ChangeActionDeleteStrategy:
		var body struct {
			ID uuid.UUID `json:"id"`
		}
		if err := json.Unmarshal(payload, &body); err != nil || body.ID == uuid.Nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "invalid delete-strategy payload")
		}
		err = s.applyDeleteStrategy(txCtx, feature, environment, body.ID, actor)
	case models.ChangeActionArchiveFeature:
		err = s.applyArchive(txCtx, feature, actor)
	default:
		return httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown change action %s", action)
	}
	return err
}

func (s *Service) getActiveFeature(ctx context.Context, projectID, featureName string) (*models.Feature, error) {
	feature, err := s.features.GetByName(ctx, projectID, featureName)
	if err != nil {
		return nil, err
	}
	if feature.Archived {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "feature %s is archived", featureName)
	}
	return feature, nil
}

func (s *Service) applyEnable(txCtx context.Context, feature *models.Feature, environment string, enabled bool, actor string) (*models.FeatureEnvironment, error) {
	if enabled {
		strategies, err := s.strategies.ListForFeatureEnvironment(txCtx, feature.ID, environment)
		if err != nil {
			return nil, err
		}
		if len(strategies) == 0 {
			seed := &models.Strategy{
				FeatureID:    feature.ID,
				Environment:  environment,
				StrategyName: evaluation.StrategyDefault,
			}
			if err := s.strategies.Create(txCtx, seed); err != nil {
				return nil, err
			}
		}
	}

	state, err := s.features.SetEnvironmentEnabled(txCtx, feature.ID, environment, enabled)
	if err != nil {
		return nil, err
	}

	action := "feature.disabled"
	if enabled {
		action = "feature.enabled"
	}
	if err := s.appendAudit(txCtx, feature, &environment, action,
		map[string]any{"enabled": enabled, "version": state.Version}, actor); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) applyAddStrategy(txCtx context.Context, feature *models.Feature, environment string, strategy *models.Strategy, actor string) error {
	strategy.FeatureID = feature.ID
	strategy.Environment = environment

	if err := s.validateStrategy(txCtx, strategy); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	maxOrder, err := s.strategies.MaxSortOrder(txCtx, feature.ID, environment)
	if err != nil {
		return err
	}
	strategy.SortOrder = maxOrder + 1

	if err := s.strategies.Create(txCtx, strategy); err != nil {
		return err
	}

	return s.appendAudit(txCtx, feature, &environment, "strategy.added",
		map[string]any{"strategyId": strategy.ID, "strategy": strategy.StrategyName}, actor)
}

func (s *Service) applyUpdateStrategy(txCtx context.Context, feature *models.Feature, environment string, strategy *models.Strategy, actor string) (*models.Strategy, error) {
	existing, err := s.strategies.GetByID(txCtx, strategy.ID)
	if err != nil {
		return nil, err
	}
	if existing.FeatureID != feature.ID || existing.Environment != environment {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound,
			"strategy %s does not belong to feature %s in %s", strategy.ID, feature.Name, environment)
	}

	existing.StrategyName = strategy.StrategyName
	existing.Parameters = strategy.Parameters
	existing.Constraints = strategy.Constraints
	existing.Variants = strategy.Variants
	existing.Disabled = strategy.Disabled

	if err := s.validateStrategy(txCtx, existing); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.strategies.Update(txCtx, existing); err != nil {
		return nil, err
	}

	if err := s.appendAudit(txCtx, feature, &environment, "strategy.updated",
		map[string]any{"strategyId": existing.ID, "strategy": existing.StrategyName}, actor); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) applyDeleteStrategy(txCtx context.Context, feature *models.Feature, environment string, strategyID uuid.UUID, actor string) error {
	existing, err := s.strategies.GetByID(txCtx, strategyID)
	if err != nil {
		return err
	}
	if existing.FeatureID != feature.ID || existing.Environment != environment {
		return httperror.NewHTTPErrorf(http.StatusNotFound,
			"strategy %s does not belong to feature %s in %s", strategyID, feature.Name, environment)
	}

	if err := s.strategies.Delete(txCtx, strategyID); err != nil {
		return err
	}

	return s.appendAudit(txCtx, feature, &environment, "strategy.deleted",
		map[string]any{"strategyId": strategyID}, actor)
}

func (s *Service) applyArchive(txCtx context.Context, feature *models.Feature, actor string) error {
	if err := s.features.SetArchived(txCtx, feature.ID, true); err != nil {
		return err
	}
	return s.appendAudit(txCtx, feature, nil, "feature.archived", nil, actor)
}

// validateStrategy checks the instance against the catalog definition and
// the context field registry.
func (s *Service) validateStrategy(ctx context.Context, strategy *models.Strategy) error {
	def, err := s.definitions.GetByName(ctx, strategy.StrategyName)
	if err != nil {
		return fmt.Errorf("unknown strategy %s", strategy.StrategyName)
	}

	fields, err := s.contexts.List(ctx)
	if err != nil {
		return err
	}
	registry := make(map[string]models.ContextField, len(fields))
	for _, f := range fields {
		registry[f.Name] = f
	}

	return ValidateStrategy(strategy, def, registry)
}

func (s *Service) appendAudit(txCtx context.Context, feature *models.Feature, environment *string, action string, data map[string]any, actor string) error {
	entry := &models.AuditLogEntry{
		EntityType:  "feature",
		EntityID:    feature.Name,
		Action:      action,
		ChangedBy:   actor,
		ProjectID:   &feature.ProjectID,
		Environment: environment,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		entry.Data = database.JSONB[json.RawMessage]{Data: raw}
	}
	return s.audit.Append(txCtx, entry)
}

func (s *Service) publishEvent(ctx context.Context, eventType, projectID, environment, featureName, entityID string, data map[string]any) {
	if s.producer == nil {
		return
	}

	err := s.producer.Publish(ctx, &kafka.FlagEventMessage{
		Type:        eventType,
		Project:     projectID,
		Environment: environment,
		FeatureName: featureName,
		EntityID:    entityID,
		Actor:       appcontext.GetUserName(ctx),
		Timestamp:   time.Now().UTC(),
		TraceID:     tracing.GetTraceID(ctx),
		SpanID:      tracing.GetSpanID(ctx),
		Data:        data,
	})
	if err != nil {
		// The mutation already committed; losing the event only delays
		// downstream cache invalidation.
		s.logger.WithContext(ctx).WithError(err).Warnf("Failed to publish %s event for %s", eventType, featureName)
	}
}

// Snapshot assembles the immutable per-environment view of every active
// feature in a project for the evaluation path.
func (s *Service) Snapshot(ctx context.Context, projectID, environment string) ([]evaluation.FeatureSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "FlagStateService.Snapshot")
	defer span.End()

	if _, err := s.environments.GetByName(ctx, environment); err != nil {
		return nil, err
	}

	features, err := s.features.ListByProject(ctx, projectID, false)
	if err != nil {
		return nil, err
	}

	snapshots := make([]evaluation.FeatureSnapshot, 0, len(features))
	for i := range features {
		state, err := s.features.GetEnvironmentState(ctx, features[i].ID, environment)
		if err != nil {
			return nil, err
		}
		strategies, err := s.strategies.ListForFeatureEnvironment(ctx, features[i].ID, environment)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, evaluation.FeatureSnapshot{
			Feature:    features[i],
			Enabled:    state.Enabled,
			Strategies: strategies,
		})
	}
	return snapshots, nil
}
