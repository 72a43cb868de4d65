package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"ledgerpos/backend/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// RecordHistory appends an entry. A correction must point at an existing
// entry whose chain reaches a non-correction root.
func (s *Service) RecordHistory(ctx context.Context, entry domain.TransactionHistoryEntry) (domain.TransactionHistoryEntry, error) {
	entry.OriginLocation = strings.TrimSpace(entry.OriginLocation)
	entry.OriginalTransactionID = strings.TrimSpace(entry.OriginalTransactionID)
	if err := s.validateStruct("record history", entry); err != nil {
		return domain.TransactionHistoryEntry{}, err
	}
	for i := range entry.ProcessedItems {
		if entry.ProcessedItems[i].ProcessType == "" {
			entry.ProcessedItems[i].ProcessType = entry.OperationType
		}
		if entry.ProcessedItems[i].OriginLocation == "" {
			entry.ProcessedItems[i].OriginLocation = entry.OriginLocation
		}
	}

	switch {
	case entry.IsCorrection && entry.OriginalTransactionID == "":
		return domain.TransactionHistoryEntry{}, domain.Validation("record history", "a correction needs originalTransactionId")
	case !entry.IsCorrection && entry.OriginalTransactionID != "":
		return domain.TransactionHistoryEntry{}, domain.Validation("record history", "originalTransactionId is only allowed on corrections")
	case entry.IsCorrection:
		if _, err := s.HistoryChain(ctx, entry.OriginalTransactionID); err != nil {
			return domain.TransactionHistoryEntry{}, err
		}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}
	saved, err := s.repo.CreateHistoryEntry(ctx, entry)
	if err != nil {
		return domain.TransactionHistoryEntry{}, err
	}
	return *saved, nil
}

func (s *Service) ListHistory(ctx context.Context, filter domain.HistoryFilter) ([]domain.TransactionHistoryEntry, error) {
	if filter.Limit < 1 {
		filter.Limit = defaultHistoryLimit
	}
	if filter.Limit > maxHistoryLimit {
		filter.Limit = maxHistoryLimit
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, domain.Validation("list history", "from must be before to")
	}
	return s.repo.ListHistoryEntries(ctx, filter)
}

func (s *Service) GetHistory(ctx context.Context, transactionID string) (domain.TransactionHistoryEntry, error) {
	entry, err := s.repo.GetHistoryEntry(ctx, transactionID)
	if err != nil {
		return domain.TransactionHistoryEntry{}, err
	}
	return *entry, nil
}

// HistoryChain walks originalTransactionId links up to the root and
// returns the entries root first.
func (s *Service) HistoryChain(ctx context.Context, transactionID string) ([]domain.TransactionHistoryEntry, error) {
	const op = "history chain"
	chain := make([]domain.TransactionHistoryEntry, 0, 4)
	seen := make(map[string]struct{}, 4)

	id := strings.TrimSpace(transactionID)
	for {
		if _, dup := seen[id]; dup {
			return nil, domain.Conflict(op, "correction chain of %s loops at %s", transactionID, id)
		}
		seen[id] = struct{}{}

		entry, err := s.repo.GetHistoryEntry(ctx, id)
		if err != nil {
			if len(chain) > 0 {
				return nil, domain.NotFound(op, "chain of %s breaks at missing %s", transactionID, id)
			}
			return nil, err
		}
		chain = append(chain, *entry)

		if !entry.IsCorrection {
			break
		}
		if entry.OriginalTransactionID == "" {
			return nil, domain.Conflict(op, "correction %s has no original", entry.TransactionID)
		}
		id = entry.OriginalTransactionID
	}

	slices.Reverse(chain)
	return chain, nil
}

func (s *Service) UpdateHistory(ctx context.Context, transactionID string, patch domain.HistoryPatch) (domain.TransactionHistoryEntry, error) {
	if patch.Empty() {
		return domain.TransactionHistoryEntry{}, domain.Validation("update history", "patch is empty")
	}
	if patch.OriginLocation != nil && strings.TrimSpace(*patch.OriginLocation) == "" {
		return domain.TransactionHistoryEntry{}, domain.Validation("update history", "originLocation cannot be blank")
	}
	if patch.ProcessedItems != nil && len(*patch.ProcessedItems) == 0 {
		return domain.TransactionHistoryEntry{}, domain.Validation("update history", "processedItems cannot be emptied")
	}

	updated, err := s.repo.UpdateActiveHistoryEntry(ctx, transactionID, patch)
	if err != nil {
		return domain.TransactionHistoryEntry{}, err
	}
	return *updated, nil
}

func (s *Service) DeactivateHistory(ctx context.Context, transactionID string) error {
	if err := s.repo.DeactivateHistoryEntry(ctx, transactionID); err != nil {
		return err
	}
	s.logAudit(ctx, "", "history_deactivate", "transaction_history", transactionID, "")
	return nil
}

// PurgeHistory deactivates active entries older than days. A second run
// over the same window changes nothing.
func (s *Service) PurgeHistory(ctx context.Context, days int) (domain.PurgeResult, error) {
	if days < 0 {
		return domain.PurgeResult{}, domain.Validation("purge history", "days must not be negative")
	}
	if days == 0 {
		days = s.retentionDays
	}

	cutoff := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	flipped, err := s.repo.DeactivateHistoryBefore(ctx, cutoff)
	if err != nil {
		return domain.PurgeResult{}, err
	}

	if flipped > 0 {
		s.log.WithField("deactivated", flipped).WithField("cutoff", cutoff).Info("history purged")
		s.logAudit(ctx, "", "history_purge", "transaction_history", cutoff.Format(time.RFC3339), fmt.Sprintf("days=%d,deactivated=%d", days, flipped))
	}
	return domain.PurgeResult{Cutoff: cutoff, Deactivated: flipped}, nil
}
