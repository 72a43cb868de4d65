package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/domain"
)

// CheckLock reports whether an active operation holds the exact
// (calendar day, location, symbol) key.
func (s *Service) CheckLock(ctx context.Context, date string, location string, symbol string) (domain.LockStatus, error) {
	location = strings.TrimSpace(location)
	symbol = strings.TrimSpace(symbol)
	if location == "" || symbol == "" {
		return domain.LockStatus{}, domain.Validation("check lock", "location and symbol are required")
	}
	at, err := s.parseDate(date)
	if err != nil {
		return domain.LockStatus{}, err
	}

	op, err := s.repo.FindActiveOperation(ctx, s.dayKey(at), location, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LockStatus{IsLocked: false}, nil
		}
		return domain.LockStatus{}, err
	}
	return domain.LockStatus{IsLocked: true, Operation: op}, nil
}

func (s *Service) OpenOperation(ctx context.Context, req domain.OpenOperationRequest) (domain.Operation, error) {
	req.Location = strings.TrimSpace(req.Location)
	req.Symbol = strings.TrimSpace(req.Symbol)
	if err := s.validateStruct("open operation", req); err != nil {
		return domain.Operation{}, err
	}
	at, err := s.parseDate(req.Date)
	if err != nil {
		return domain.Operation{}, err
	}

	op := domain.Operation{
		Date:      at.UTC(),
		Day:       s.dayKey(at),
		Location:  req.Location,
		Symbol:    req.Symbol,
		Status:    domain.OperationActive,
		Changes:   []domain.Change{},
		CreatedAt: s.now().UTC(),
	}
	if actor, ok := ActorFromContext(ctx); ok {
		op.ActorID = actor.Username
	}

	saved, err := s.repo.CreateOperation(ctx, op)
	if err != nil {
		return domain.Operation{}, err
	}

	s.logAudit(ctx, saved.Location, "operation_open", "operation", saved.ID, fmt.Sprintf("day=%s,symbol=%s", saved.Day, saved.Symbol))
	return *saved, nil
}

// AppendChange adds one change to an active operation.
func (s *Service) AppendChange(ctx context.Context, operationID string, change domain.Change) error {
	if strings.TrimSpace(operationID) == "" {
		return domain.Validation("append change", "operationId is required")
	}
	if err := checkChange(change); err != nil {
		return err
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = s.now().UTC()
	}
	return s.repo.AppendChange(ctx, operationID, change)
}

func checkChange(change domain.Change) error {
	const op = "append change"
	switch change.Kind {
	case domain.ChangeDeleteState:
		if _, err := domain.DecodeSnapshot(change.OriginalData); err != nil {
			return domain.Validation(op, "%v", err)
		}
	case domain.ChangeHistoryEntry:
		if strings.TrimSpace(change.ChangeID) == "" {
			return domain.Validation(op, "history_entry change needs changeId")
		}
	case domain.ChangeCreatedRecord:
		if strings.TrimSpace(change.RecordID) == "" || change.Collection == "" {
			return domain.Validation(op, "created_record change needs collection and recordId")
		}
	default:
		return domain.Validation(op, "unknown change kind %q", change.Kind)
	}
	return nil
}

// CancelOperation claims the operation as cancelled, then replays its
// changes newest first. Rollback is best effort: a failed step is reported
// in the result and never reopens the operation.
func (s *Service) CancelOperation(ctx context.Context, operationID string) (domain.RollbackResult, error) {
	if strings.TrimSpace(operationID) == "" {
		return domain.RollbackResult{}, domain.Validation("cancel operation", "operationId is required")
	}

	op, err := s.repo.CancelOperation(ctx, operationID, s.now().UTC())
	if err != nil {
		return domain.RollbackResult{}, err
	}

	result := s.reconstructor.Replay(ctx, op.ID, op.Changes)

	entry := s.log.WithFields(logrus.Fields{
		"operation_id":            op.ID,
		"location":                op.Location,
		"symbol":                  op.Symbol,
		"restored_states":         result.RestoredStates,
		"rebuilt_records":         result.RebuiltRecords,
		"removed_history_entries": result.RemovedHistoryEntries,
		"removed_records":         result.RemovedRecords,
		"failed_changes":          len(result.Failures),
	})
	if len(result.Failures) > 0 {
		entry.Warn("operation cancelled with rollback failures")
	} else {
		entry.Info("operation cancelled")
	}

	s.logAudit(ctx, op.Location, "operation_cancel", "operation", op.ID, fmt.Sprintf("restored=%d,rebuilt=%d,history_removed=%d,records_removed=%d,errors=%d",
		result.RestoredStates, result.RebuiltRecords, result.RemovedHistoryEntries, result.RemovedRecords, len(result.Errors)))
	return result, nil
}

func (s *Service) GetOperation(ctx context.Context, operationID string) (domain.Operation, error) {
	op, err := s.repo.GetOperation(ctx, operationID)
	if err != nil {
		return domain.Operation{}, err
	}
	return *op, nil
}

// ListOperations returns operations of any status, newest first. An empty
// date lists every day.
func (s *Service) ListOperations(ctx context.Context, date string, location string) ([]domain.Operation, error) {
	day := ""
	if strings.TrimSpace(date) != "" {
		at, err := s.parseDate(date)
		if err != nil {
			return nil, err
		}
		day = s.dayKey(at)
	}
	return s.repo.ListOperations(ctx, day, strings.TrimSpace(location))
}

func (s *Service) requireActive(ctx context.Context, operationID string) (*domain.Operation, error) {
	op, err := s.repo.GetOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op.Status != domain.OperationActive {
		return nil, domain.NotFound("require active operation", "operation %s is %s", operationID, op.Status)
	}
	return op, nil
}
