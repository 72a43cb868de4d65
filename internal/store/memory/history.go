package memory

import (
	"context"
	"slices"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) CreateHistoryEntry(_ context.Context, entry domain.TransactionHistoryEntry) (*domain.TransactionHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.TransactionID == "" {
		entry.TransactionID = xid.New("tx")
	}
	if _, exists := s.historyByID[entry.TransactionID]; exists {
		return nil, domain.Conflict("record history", "transaction %s already exists", entry.TransactionID)
	}

	var original domain.TransactionHistoryEntry
	if entry.IsCorrection {
		var exists bool
		original, exists = s.historyByID[entry.OriginalTransactionID]
		if !exists {
			return nil, domain.NotFound("record history", "original transaction %s", entry.OriginalTransactionID)
		}
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ItemsCount = len(entry.ProcessedItems)
	entry.IsActive = true
	entry.HasCorrections = false

	s.historyByID[entry.TransactionID] = cloneHistory(entry)
	if entry.IsCorrection {
		original.HasCorrections = true
		s.historyByID[original.TransactionID] = original
	}
	out := cloneHistory(entry)
	return &out, nil
}

func (s *Store) GetHistoryEntry(_ context.Context, id string) (*domain.TransactionHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.historyByID[id]
	if !exists {
		return nil, domain.NotFound("get history entry", "transaction %s", id)
	}
	out := cloneHistory(entry)
	return &out, nil
}

func (s *Store) ListHistoryEntries(_ context.Context, filter domain.HistoryFilter) ([]domain.TransactionHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.TransactionHistoryEntry, 0, 64)
	for _, entry := range s.historyByID {
		if filter.IsActive != nil && entry.IsActive != *filter.IsActive {
			continue
		}
		if filter.From != nil && entry.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !entry.Timestamp.Before(*filter.To) {
			continue
		}
		result = append(result, cloneHistory(entry))
	}
	slices.SortFunc(result, func(a, b domain.TransactionHistoryEntry) int {
		return newestFirst(a.Timestamp, b.Timestamp, a.TransactionID, b.TransactionID)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateActiveHistoryEntry(_ context.Context, id string, patch domain.HistoryPatch) (*domain.TransactionHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.historyByID[id]
	if !exists {
		return nil, domain.NotFound("update history entry", "transaction %s", id)
	}
	if !entry.IsActive {
		return nil, domain.Conflict("update history entry", "transaction %s is inactive", id)
	}
	updated := patch.Apply(entry)
	s.historyByID[id] = cloneHistory(updated)
	return &updated, nil
}

func (s *Store) DeactivateHistoryEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.historyByID[id]
	if !exists || !entry.IsActive {
		return domain.NotFound("deactivate history entry", "no active transaction %s", id)
	}
	entry.IsActive = false
	s.historyByID[id] = entry
	return nil
}

func (s *Store) DeactivateHistoryBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flipped := 0
	for id, entry := range s.historyByID {
		if !entry.IsActive || !entry.Timestamp.Before(cutoff) {
			continue
		}
		entry.IsActive = false
		s.historyByID[id] = entry
		flipped++
	}
	return flipped, nil
}

func (s *Store) DeleteHistoryEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.historyByID[id]; !exists {
		return domain.NotFound("delete history entry", "transaction %s", id)
	}
	delete(s.historyByID, id)
	return nil
}
