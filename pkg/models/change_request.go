package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// Change request states.
const (
	ChangeRequestStateDraft     = "Draft"
	ChangeRequestStateInReview  = "In review"
	ChangeRequestStateApproved  = "Approved"
	ChangeRequestStateApplied   = "Applied"
	ChangeRequestStateRejected  = "Rejected"
	ChangeRequestStateCancelled = "Cancelled"
)

// Change request change actions.
const (
	ChangeActionEnable         = "enable"
	ChangeActionDisable        = "disable"
	ChangeActionAddStrategy    = "add-strategy"
	ChangeActionUpdateStrategy = "update-strategy"
	ChangeActionDeleteStrategy = "delete-strategy"
	ChangeActionArchiveFeature = "archive-feature"
)

// ChangeRequest batches flag mutations against one protected environment.
// MinApprovals is snapshotted from the environment at creation time so
// later environment edits never move the bar for in-flight requests.
type ChangeRequest struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	ProjectID    string     `db:"project_id" json:"project"`
	Environment  string     `db:"environment" json:"environment"`
	Title        string     `db:"title" json:"title"`
	State        string     `db:"state" json:"state"`
	MinApprovals int        `db:"min_approvals" json:"minApprovals"`
	CreatedBy    string     `db:"created_by" json:"createdBy"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduledAt,omitempty"`
	AppliedAt    *time.Time `db:"applied_at" json:"appliedAt,omitempty"`
	ApplyFailure *string    `db:"apply_failure" json:"applyFailure,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`

	// Loaded separately
	Changes   []ChangeRequestChange   `db:"-" json:"changes,omitempty"`
	Approvals []ChangeRequestApproval `db:"-" json:"approvals,omitempty"`
}

// TableName returns the database table name
func (ChangeRequest) TableName() string {
	return "change_requests"
}

// TerminalState reports whether the state admits no further transitions.
func (cr *ChangeRequest) TerminalState() bool {
	switch cr.State {
	case ChangeRequestStateApplied, ChangeRequestStateRejected, ChangeRequestStateCancelled:
		return true
	}
	return false
}

// ChangeRequestChange is one ordered mutation inside a change request.
// Payload shape depends on Action; changes apply in SortOrder.
type ChangeRequestChange struct {
	ID              uuid.UUID                       `db:"id" json:"id"`
	ChangeRequestID uuid.UUID                       `db:"change_request_id" json:"-"`
	FeatureName     string                          `db:"feature_name" json:"feature"`
	Action          string                          `db:"action" json:"action"`
	Payload         database.JSONB[json.RawMessage] `db:"payload" json:"payload,omitempty"`
	SortOrder       int                             `db:"sort_order" json:"sortOrder"`
	CreatedAt       time.Time                       `db:"created_at" json:"createdAt"`
}

// TableName returns the database table name
func (ChangeRequestChange) TableName() string {
	return "change_request_changes"
}

// ChangeRequestApproval records one distinct approver's vote. A unique
// index on (change_request_id, approved_by) makes re-approval a no-op.
type ChangeRequestApproval struct {
	ID              uuid.UUID `db:"id" json:"id"`
	ChangeRequestID uuid.UUID `db:"change_request_id" json:"-"`
	ApprovedBy      string    `db:"approved_by" json:"approvedBy"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
}

// TableName returns the database table name
func (ChangeRequestApproval) TableName() string {
	return "change_request_approvals"
}

// ValidChangeAction reports whether a is a known change action.
func ValidChangeAction(a string) bool {
	switch a {
	case ChangeActionEnable, ChangeActionDisable, ChangeActionAddStrategy,
		ChangeActionUpdateStrategy, ChangeActionDeleteStrategy, ChangeActionArchiveFeature:
		return true
	}
	return false
}
