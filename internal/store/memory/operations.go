package memory

import (
	"context"
	"slices"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) CreateOperation(_ context.Context, op domain.Operation) (*domain.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := operationKey(op.Day, op.Location, op.Symbol)
	if activeID, held := s.activeOpByKey[key]; held {
		return nil, domain.Conflict("open operation", "operation %s already holds %s/%s on %s", activeID, op.Location, op.Symbol, op.Day)
	}

	if op.ID == "" {
		op.ID = xid.New("op")
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.Status = domain.OperationActive
	op.CancelledAt = nil
	if op.Changes == nil {
		op.Changes = []domain.Change{}
	}

	s.operationsByID[op.ID] = cloneOperation(&op)
	s.activeOpByKey[key] = op.ID
	return cloneOperation(&op), nil
}

func (s *Store) GetOperation(_ context.Context, id string) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, exists := s.operationsByID[id]
	if !exists {
		return nil, domain.NotFound("get operation", "operation %s", id)
	}
	return cloneOperation(op), nil
}

func (s *Store) FindActiveOperation(_ context.Context, day string, location string, symbol string) (*domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, held := s.activeOpByKey[operationKey(day, location, symbol)]
	if !held {
		return nil, domain.NotFound("find active operation", "no active operation for %s/%s on %s", location, symbol, day)
	}
	return cloneOperation(s.operationsByID[id]), nil
}

func (s *Store) ListOperations(_ context.Context, day string, location string) ([]domain.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Operation, 0, 16)
	for _, op := range s.operationsByID {
		if day != "" && op.Day != day {
			continue
		}
		if location != "" && op.Location != location {
			continue
		}
		result = append(result, *cloneOperation(op))
	}
	slices.SortFunc(result, func(a, b domain.Operation) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) AppendChange(_ context.Context, id string, change domain.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operationsByID[id]
	if !exists || op.Status != domain.OperationActive {
		return domain.NotFound("append change", "no active operation %s", id)
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	if change.OriginalData != nil {
		change.OriginalData = slices.Clone(change.OriginalData)
	}
	op.Changes = append(op.Changes, change)
	return nil
}

// CancelOperation claims the operation; a second caller finds it
// cancelled and gets NotFound, so the change list is handed out once.
func (s *Store) CancelOperation(_ context.Context, id string, at time.Time) (*domain.Operation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, exists := s.operationsByID[id]
	if !exists || op.Status != domain.OperationActive {
		return nil, domain.NotFound("cancel operation", "no active operation %s", id)
	}
	op.Status = domain.OperationCancelled
	cancelledAt := at.UTC()
	op.CancelledAt = &cancelledAt
	delete(s.activeOpByKey, operationKey(op.Day, op.Location, op.Symbol))
	return cloneOperation(op), nil
}
