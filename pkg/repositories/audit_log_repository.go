package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const auditLogsTable = "audit_logs"

var auditLogStruct = database.NewStruct(new(models.AuditLogEntry))

// AuditLogFilter narrows history queries
type AuditLogFilter struct {
	ProjectID   string
	Environment string
	Feature     string
	From        *time.Time
	Limit       int
}

// AuditLogRepository handles database operations for the append-only audit log
type AuditLogRepository struct {
	*Repository
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db database.DB, logger ectologger.Logger) *AuditLogRepository {
	return &AuditLogRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetTailForUpdate reads the newest entry with a row lock, serializing
// concurrent appends on the chain tail. Returns nil when the log is empty.
// Must run inside an open transaction.
func (r *AuditLogRepository) GetTailForUpdate(ctx context.Context) (*models.AuditLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "AuditLogRepository.GetTailForUpdate")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := auditLogStruct.SelectFrom(auditLogsTable)
	sb.OrderBy("id").Desc()
	sb.Limit(1)
	sb.SQL("FOR UPDATE")

	query, args := sb.Build()
	var entry models.AuditLogEntry
	err = tx.GetContext(txCtx, &entry, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to read audit log tail")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read audit log tail")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Insert appends an entry, filling its generated ID and timestamp
func (r *AuditLogRepository) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, span := tracing.StartSpan(ctx, "AuditLogRepository.Insert")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(auditLogsTable).
		Cols("entity_type", "entity_id", "action", "changed_by", "changed_at", "data", "project_id", "environment", "previous_hash", "signature").
		Values(entry.EntityType, entry.EntityID, entry.Action, entry.ChangedBy, sqlbuilder.Raw("NOW()"),
			entry.Data, entry.ProjectID, entry.Environment, entry.PreviousHash, entry.Signature).
		Returning("id", "changed_at")

	query, args := ib.Build()
	err = tx.QueryRowContext(txCtx, query, args...).Scan(&entry.ID, &entry.ChangedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": entry.EntityType,
			"entity_id":   entry.EntityID,
		}).Error("failed to append audit log entry")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append audit log entry")
	}

	return tx.Commit(ctx)
}

// SetSignature stamps the signature of a freshly inserted entry. The
// signature covers the generated ID, so it is computed after the insert,
// inside the same transaction.
func (r *AuditLogRepository) SetSignature(ctx context.Context, id int64, signature string) error {
	ctx, span := tracing.StartSpan(ctx, "AuditLogRepository.SetSignature")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(auditLogsTable).
		Set(ub.Assign("signature", signature)).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"audit_log_id": id,
		}).Error("failed to set audit log signature")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set audit log signature")
	}

	return tx.Commit(ctx)
}

// List retrieves entries matching the filter, oldest first so chain
// verification can fold over them in order
func (r *AuditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "AuditLogRepository.List")
	defer span.End()

	sb := auditLogStruct.SelectFrom(auditLogsTable)
	if filter.ProjectID != "" {
		sb.Where(sb.Equal("project_id", filter.ProjectID))
	}
	if filter.Environment != "" {
		sb.Where(sb.Equal("environment", filter.Environment))
	}
	if filter.Feature != "" {
		sb.Where(sb.Equal("entity_id", filter.Feature))
	}
	if filter.From != nil {
		sb.Where(sb.GreaterEqualThan("changed_at", *filter.From))
	}
	sb.OrderBy("id")
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()
	var entries []models.AuditLogEntry
	err := r.DB().SelectContext(ctx, &entries, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list audit log entries")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list audit log entries")
	}

	return entries, nil
}
