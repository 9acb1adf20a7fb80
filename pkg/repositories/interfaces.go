package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
)

// ProjectRepo defines the interface for project repository operations
type ProjectRepo interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
}

// EnvironmentRepo defines the interface for environment repository operations
type EnvironmentRepo interface {
	Create(ctx context.Context, env *models.Environment) error
	GetByName(ctx context.Context, name string) (*models.Environment, error)
	List(ctx context.Context) ([]models.Environment, error)
	Update(ctx context.Context, env *models.Environment) error
}

// ContextFieldRepo defines the interface for context registry operations
type ContextFieldRepo interface {
	Create(ctx context.Context, field *models.ContextField) error
	GetByName(ctx context.Context, name string) (*models.ContextField, error)
	List(ctx context.Context) ([]models.ContextField, error)
	CountConstraintUsages(ctx context.Context, name string) (int, error)
	Delete(ctx context.Context, name string) error
}

// StrategyDefinitionRepo defines the interface for the strategy catalog
type StrategyDefinitionRepo interface {
	Create(ctx context.Context, def *models.StrategyDefinition) error
	GetByName(ctx context.Context, name string) (*models.StrategyDefinition, error)
	List(ctx context.Context) ([]models.StrategyDefinition, error)
	CountInstances(ctx context.Context, name string) (int, error)
	Update(ctx context.Context, def *models.StrategyDefinition, parametersChanged bool) error
}

// FeatureRepo defines the interface for feature repository operations
type FeatureRepo interface {
	Create(ctx context.Context, feature *models.Feature) error
	GetByName(ctx context.Context, projectID, name string) (*models.Feature, error)
	ListByProject(ctx context.Context, projectID string, includeArchived bool) ([]models.Feature, error)
	Update(ctx context.Context, feature *models.Feature) error
	SetArchived(ctx context.Context, featureID uuid.UUID, archived bool) error
	GetEnvironmentState(ctx context.Context, featureID uuid.UUID, environment string) (*models.FeatureEnvironment, error)
	ListEnvironmentStates(ctx context.Context, featureID uuid.UUID) ([]models.FeatureEnvironment, error)
	SetEnvironmentEnabled(ctx context.Context, featureID uuid.UUID, environment string, enabled bool) (*models.FeatureEnvironment, error)
	CountEnabledProtected(ctx context.Context, featureID uuid.UUID) (int, error)
	DB() database.DB
}

// StrategyRepo defines the interface for strategy instance operations
type StrategyRepo interface {
	Create(ctx context.Context, strategy *models.Strategy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Strategy, error)
	ListForFeatureEnvironment(ctx context.Context, featureID uuid.UUID, environment string) ([]models.Strategy, error)
	Update(ctx context.Context, strategy *models.Strategy) error
	Delete(ctx context.Context, id uuid.UUID) error
	Reorder(ctx context.Context, featureID uuid.UUID, environment string, orderedIDs []uuid.UUID) error
	MaxSortOrder(ctx context.Context, featureID uuid.UUID, environment string) (int, error)
}

// ChangeRequestRepo defines the interface for change request operations
type ChangeRequestRepo interface {
	Create(ctx context.Context, cr *models.ChangeRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error)
	ListByProject(ctx context.Context, projectID string) ([]models.ChangeRequest, error)
	TransitionState(ctx context.Context, id uuid.UUID, fromStates []string, toState string) error
	AddChange(ctx context.Context, change *models.ChangeRequestChange) (bool, error)
	Approve(ctx context.Context, id uuid.UUID, approvedBy string) (int, error)
	MarkApplied(ctx context.Context, id uuid.UUID) error
	SetApplyFailure(ctx context.Context, id uuid.UUID, message string) error
	ListDueScheduled(ctx context.Context, now time.Time) ([]models.ChangeRequest, error)
	CountPendingByFeature(ctx context.Context, projectID, featureName string) (int, error)
	UpdateScheduledAt(ctx context.Context, id uuid.UUID, scheduledAt *time.Time) error
	DB() database.DB
}

// AuditLogRepo defines the interface for audit log operations
type AuditLogRepo interface {
	GetTailForUpdate(ctx context.Context) (*models.AuditLogEntry, error)
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
	SetSignature(ctx context.Context, id int64, signature string) error
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, error)
	DB() database.DB
}

// FeatureMetricRepo defines the interface for feature metric operations
type FeatureMetricRepo interface {
	Insert(ctx context.Context, metric *models.FeatureMetric) error
	Summarize(ctx context.Context, projectID string) ([]FeatureMetricSummary, error)
}
