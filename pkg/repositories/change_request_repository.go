package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

const (
	changeRequestsTable  = "change_requests"
	changeRequestChanges = "change_request_changes"
	changeRequestVotes   = "change_request_approvals"
)

var (
	changeRequestStruct  = database.NewStruct(new(models.ChangeRequest))
	changeStruct         = database.NewStruct(new(models.ChangeRequestChange))
	approvalStruct       = database.NewStruct(new(models.ChangeRequestApproval))
	pendingStates        = []string{models.ChangeRequestStateDraft, models.ChangeRequestStateInReview, models.ChangeRequestStateApproved}
)

// ChangeRequestRepository handles database operations for change requests,
// their ordered changes and their approvals
type ChangeRequestRepository struct {
	*Repository
}

// NewChangeRequestRepository creates a new change request repository
func NewChangeRequestRepository(db database.DB, logger ectologger.Logger) *ChangeRequestRepository {
	return &ChangeRequestRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new change request in Draft state
func (r *ChangeRequestRepository) Create(ctx context.Context, cr *models.ChangeRequest) error {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.Create")
	defer span.End()

	if cr.ID == uuid.Nil {
		cr.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(changeRequestsTable).
		Cols("id", "project_id", "environment", "title", "state", "min_approvals", "created_by", "scheduled_at", "created_at", "updated_at").
		Values(cr.ID, cr.ProjectID, cr.Environment, cr.Title, cr.State, cr.MinApprovals, cr.CreatedBy, cr.ScheduledAt,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&cr.CreatedAt, &cr.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": cr.ID,
		}).Error("failed to create change request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create change request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"change_request_id": cr.ID,
		"project":           cr.ProjectID,
		"environment":       cr.Environment,
	}).Debugf("Created %s", changeRequestsTable)
	return nil
}

// GetByID retrieves a change request with its changes and approvals
func (r *ChangeRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.GetByID")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	sb := changeRequestStruct.SelectFrom(changeRequestsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var cr models.ChangeRequest
	err = tx.GetContext(txCtx, &cr, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "change request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to get change request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get change request")
	}

	cb := changeStruct.SelectFrom(changeRequestChanges)
	cb.Where(cb.Equal("change_request_id", id))
	cb.OrderBy("sort_order", "created_at")

	query, args = cb.Build()
	err = tx.SelectContext(txCtx, &cr.Changes, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to load change request changes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get change request")
	}

	ab := approvalStruct.SelectFrom(changeRequestVotes)
	ab.Where(ab.Equal("change_request_id", id))
	ab.OrderBy("created_at")

	query, args = ab.Build()
	err = tx.SelectContext(txCtx, &cr.Approvals, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to load change request approvals")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get change request")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &cr, nil
}

// ListByProject retrieves change requests for a project, newest first
func (r *ChangeRequestRepository) ListByProject(ctx context.Context, projectID string) ([]models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.ListByProject")
	defer span.End()

	sb := changeRequestStruct.SelectFrom(changeRequestsTable)
	sb.Where(sb.Equal("project_id", projectID))
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var crs []models.ChangeRequest
	err := r.DB().SelectContext(ctx, &crs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"project": projectID,
		}).Error("failed to list change requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list change requests")
	}

	return crs, nil
}

// TransitionState moves a change request from one state to another. The
// update is guarded on the expected current state so concurrent transitions
// cannot race; a guard miss returns 409.
func (r *ChangeRequestRepository) TransitionState(ctx context.Context, id uuid.UUID, fromStates []string, toState string) error {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.TransitionState")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(changeRequestsTable).
		Set(
			ub.Assign("state", toState),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.In("state", sqlbuilder.List(fromStates)),
		)

	query, args := ub.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
			"to_state":          toState,
		}).Error("failed to transition change request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition change request")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to transition change request")
	}
	if rows == 0 {
		return Conflict("change request %s is not in a state that allows transition to %s", id, toState)
	}

	return tx.Commit(ctx)
}

// AddChange appends a change to a draft change request. A change identical
// to an existing one (same feature, action and payload) is dropped silently.
func (r *ChangeRequestRepository) AddChange(ctx context.Context, change *models.ChangeRequestChange) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.AddChange")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	dup := database.NewSelectBuilder()
	dup.Select("COUNT(*)").From(changeRequestChanges)
	dup.Where(
		dup.Equal("change_request_id", change.ChangeRequestID),
		dup.Equal("feature_name", change.FeatureName),
		dup.Equal("action", change.Action),
		"payload IS NOT DISTINCT FROM "+dup.Var(change.Payload)+"::jsonb",
	)

	query, args := dup.Build()
	var count int
	if err := tx.GetContext(txCtx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to check for duplicate change")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add change")
	}
	if count > 0 {
		if err := tx.Commit(ctx); err != nil {
			return false, err
		}
		return false, nil
	}

	next := database.NewSelectBuilder()
	next.Select("COALESCE(MAX(sort_order), -1) + 1").From(changeRequestChanges)
	next.Where(next.Equal("change_request_id", change.ChangeRequestID))

	query, args = next.Build()
	if err := tx.GetContext(txCtx, &change.SortOrder, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to get next change sort order")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add change")
	}

	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(changeRequestChanges).
		Cols("id", "change_request_id", "feature_name", "action", "payload", "sort_order", "created_at").
		Values(change.ID, change.ChangeRequestID, change.FeatureName, change.Action, change.Payload, change.SortOrder,
			sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args = ib.Build()
	if err := tx.QueryRowContext(txCtx, query, args...).Scan(&change.CreatedAt); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": change.ChangeRequestID,
		}).Error("failed to add change")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to add change")
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Approve records an approval vote and returns the resulting distinct
// approval count. Insert and count run in one transaction so concurrent
// approvals cannot both observe a below-threshold count.
func (r *ChangeRequestRepository) Approve(ctx context.Context, id uuid.UUID, approvedBy string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.Approve")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(changeRequestVotes).
		Cols("id", "change_request_id", "approved_by", "created_at").
		Values(uuid.New(), id, approvedBy, sqlbuilder.Raw("NOW()"))
	ib.SQL("ON CONFLICT (change_request_id, approved_by) DO NOTHING")

	query, args := ib.Build()
	if _, err := tx.ExecContext(txCtx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to record approval")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record approval")
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(changeRequestVotes)
	sb.Where(sb.Equal("change_request_id", id))

	query, args = sb.Build()
	var count int
	if err := tx.GetContext(txCtx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to count approvals")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record approval")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkApplied stamps a change request as applied
func (r *ChangeRequestRepository) MarkApplied(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.MarkApplied")
	defer span.End()

	txCtx, tx, err := r.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ub := database.NewUpdateBuilder()
	ub.Update(changeRequestsTable).
		Set(
			ub.Assign("state", models.ChangeRequestStateApplied),
			ub.Assign("applied_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("apply_failure", nil),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.Equal("state", models.ChangeRequestStateApproved),
		)

	query, args := ub.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to mark change request applied")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark change request applied")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark change request applied")
	}
	if rows == 0 {
		return Conflict("change request %s is not approved", id)
	}

	return tx.Commit(ctx)
}

// SetApplyFailure records an apply failure message; the request stays Approved
func (r *ChangeRequestRepository) SetApplyFailure(ctx context.Context, id uuid.UUID, message string) error {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.SetApplyFailure")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(changeRequestsTable).
		Set(
			ub.Assign("apply_failure", message),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.DB().ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to record apply failure")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record apply failure")
	}

	return nil
}

// ListDueScheduled retrieves approved change requests whose scheduled apply
// time has passed
func (r *ChangeRequestRepository) ListDueScheduled(ctx context.Context, now time.Time) ([]models.ChangeRequest, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.ListDueScheduled")
	defer span.End()

	sb := changeRequestStruct.SelectFrom(changeRequestsTable)
	sb.Where(
		sb.Equal("state", models.ChangeRequestStateApproved),
		sb.IsNotNull("scheduled_at"),
		sb.LessEqualThan("scheduled_at", now),
		// A recorded failure stops automatic retries; rescheduling clears it.
		sb.IsNull("apply_failure"),
	)
	sb.OrderBy("scheduled_at")

	query, args := sb.Build()
	var crs []models.ChangeRequest
	err := r.DB().SelectContext(ctx, &crs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list due scheduled change requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list due scheduled change requests")
	}

	return crs, nil
}

// CountPendingByFeature counts non-terminal change requests carrying a
// change for the feature. Used as an archive guard.
func (r *ChangeRequestRepository) CountPendingByFeature(ctx context.Context, projectID, featureName string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.CountPendingByFeature")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(DISTINCT cr.id)").From("change_requests cr")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "change_request_changes crc", "crc.change_request_id = cr.id")
	sb.Where(
		sb.Equal("cr.project_id", projectID),
		sb.Equal("crc.feature_name", featureName),
		sb.In("cr.state", sqlbuilder.List(pendingStates)),
	)

	query, args := sb.Build()
	var count int
	err := r.DB().GetContext(ctx, &count, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"feature": featureName,
			"project": projectID,
		}).Error("failed to count pending change requests")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending change requests")
	}

	return count, nil
}

// UpdateScheduledAt updates the scheduled apply time of a change request.
// Rescheduling clears any recorded apply failure so the scheduler picks the
// request up again.
func (r *ChangeRequestRepository) UpdateScheduledAt(ctx context.Context, id uuid.UUID, scheduledAt *time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "ChangeRequestRepository.UpdateScheduledAt")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(changeRequestsTable).
		Set(
			ub.Assign("scheduled_at", scheduledAt),
			ub.Assign("apply_failure", nil),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"change_request_id": id,
		}).Error("failed to update scheduled time")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update scheduled time")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update scheduled time")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "change request %s does not exist", id)
	}

	return nil
}
