package audit

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/redmoon-ch/unchain/pkg/metrics"
	"github.com/redmoon-ch/unchain/pkg/models"
	"github.com/redmoon-ch/unchain/pkg/repositories"
	"github.com/redmoon-ch/unchain/pkg/tracing"
)

// Service appends entries to the audit log. A process-wide mutex plus a row
// lock on the chain tail give appends a total order: concurrent mutations
// commit their entries one after another, each chaining to the previous.
type Service struct {
	repo   repositories.AuditLogRepo
	signer *Signer
	logger ectologger.Logger

	mu sync.Mutex
}

// NewService creates a new audit service
func NewService(repo repositories.AuditLogRepo, signer *Signer, logger ectologger.Logger) *Service {
	return &Service{
		repo:   repo,
		signer: signer,
		logger: logger,
	}
}

// Append writes one entry. When signing is enabled the entry is chained to
// the current tail and signed inside the same transaction; the caller's
// mutation fails if the append does.
func (s *Service) Append(ctx context.Context, entry *models.AuditLogEntry) error {
	ctx, span := tracing.StartSpan(ctx, "AuditService.Append")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	txCtx, tx, err := s.repo.DB().GetTx(ctx, nil)
	if err != nil {
		metrics.RecordAuditAppend("error")
		return err
	}
	defer tx.Rollback(ctx)

	if s.signer.Enabled() {
		tail, err := s.repo.GetTailForUpdate(txCtx)
		if err != nil {
			metrics.RecordAuditAppend("error")
			return err
		}
		if tail != nil {
			entry.PreviousHash = tail.Signature
		}
	}

	if err := s.repo.Insert(txCtx, entry); err != nil {
		metrics.RecordAuditAppend("error")
		return err
	}

	if s.signer.Enabled() {
		signature := s.signer.Sign(entry)
		if err := s.repo.SetSignature(txCtx, entry.ID, signature); err != nil {
			metrics.RecordAuditAppend("error")
			return err
		}
		entry.Signature = &signature
	}

	if err := tx.Commit(ctx); err != nil {
		metrics.RecordAuditAppend("error")
		return err
	}

	metrics.RecordAuditAppend("ok")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"action":      entry.Action,
	}).Debugf("Appended audit log entry %d", entry.ID)
	return nil
}

// History lists entries matching the filter and verifies the returned
// span of the chain.
func (s *Service) History(ctx context.Context, filter repositories.AuditLogFilter) ([]models.AuditLogEntry, ChainSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "AuditService.History")
	defer span.End()

	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, ChainSummary{}, err
	}

	summary := s.signer.VerifyChain(entries)
	if s.signer.Enabled() {
		result := "valid"
		if !summary.Valid {
			result = "invalid"
		}
		metrics.AuditChainVerifications.WithLabelValues(result).Inc()
	}

	return entries, summary, nil
}
