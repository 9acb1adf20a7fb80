package models

import (
	"encoding/json"
	"time"

	"github.com/redmoon-ch/unchain/pkg/database"
)

// AuditLogEntry is one append-only history record. When integrity signing is
// enabled, Signature is an HMAC over the entry's canonical form and
// PreviousHash carries the prior entry's signature, forming a hash chain.
// SignatureValid and ChainValid are verification verdicts computed on read;
// nil means not verified (integrity disabled).
type AuditLogEntry struct {
	ID           int64                           `db:"id" json:"id"`
	EntityType   string                          `db:"entity_type" json:"entityType"`
	EntityID     string                          `db:"entity_id" json:"entityId"`
	Action       string                          `db:"action" json:"action"`
	ChangedBy    string                          `db:"changed_by" json:"changedBy"`
	ChangedAt    time.Time                       `db:"changed_at" json:"changedAt"`
	Data         database.JSONB[json.RawMessage] `db:"data" json:"data,omitempty"`
	ProjectID    *string                         `db:"project_id" json:"project,omitempty"`
	Environment  *string                         `db:"environment" json:"environment,omitempty"`
	PreviousHash *string                         `db:"previous_hash" json:"previousHash,omitempty"`
	Signature    *string                         `db:"signature" json:"signature,omitempty"`

	SignatureValid *bool `db:"-" json:"signatureValid,omitempty"`
	ChainValid     *bool `db:"-" json:"chainValid,omitempty"`
}

// TableName returns the database table name
func (AuditLogEntry) TableName() string {
	return "audit_logs"
}
