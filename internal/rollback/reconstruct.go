package rollback

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/domain"
)

// Target is the slice of storage a rollback writes to.
type Target interface {
	InsertStateItem(ctx context.Context, item domain.StateItem) (*domain.StateItem, error)
	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	InsertTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	DeleteSale(ctx context.Context, id string) error
	DeleteTransfer(ctx context.Context, id string) error
	DeleteCorrectionItem(ctx context.Context, id string) error
	GetHistoryEntry(ctx context.Context, id string) (*domain.TransactionHistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id string) error
}

// Handler undoes one change and bumps the matching counter on result.
type Handler func(ctx context.Context, change domain.Change, result *domain.RollbackResult) error

// Reconstructor replays an operation's changes newest first. Each change
// kind has exactly one handler; a failing change is recorded and the
// replay moves on.
type Reconstructor struct {
	target        Target
	disambiguator *Disambiguator
	handlers      map[domain.ChangeKind]Handler
	log           logrus.FieldLogger
}

func NewReconstructor(target Target, disambiguator *Disambiguator, logger logrus.FieldLogger) *Reconstructor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if disambiguator == nil {
		disambiguator = NewDisambiguator("")
	}
	r := &Reconstructor{
		target:        target,
		disambiguator: disambiguator,
		handlers:      make(map[domain.ChangeKind]Handler, 3),
		log:           logger.WithField("module", "rollback"),
	}
	r.Register(domain.ChangeDeleteState, r.undoDeleteState)
	r.Register(domain.ChangeHistoryEntry, r.undoHistoryEntry)
	r.Register(domain.ChangeCreatedRecord, r.undoCreatedRecord)
	return r
}

// Register installs h for kind, replacing any previous handler.
func (r *Reconstructor) Register(kind domain.ChangeKind, h Handler) {
	r.handlers[kind] = h
}

// Replay undoes changes in reverse append order. It never stops early;
// every failure is reported in the result with the change index.
func (r *Reconstructor) Replay(ctx context.Context, operationID string, changes []domain.Change) domain.RollbackResult {
	result := domain.RollbackResult{
		OperationID: operationID,
		Errors:      []string{},
		Failures:    []domain.ChangeFailure{},
	}

	for i := len(changes) - 1; i >= 0; i-- {
		change := changes[i]
		err := r.undo(ctx, change, &result)
		if err == nil {
			continue
		}

		result.Errors = append(result.Errors, fmt.Sprintf("change %d (%s): %v", i, change.Kind, err))
		result.Failures = append(result.Failures, domain.ChangeFailure{Index: i, Kind: change.Kind, Error: err.Error()})
		r.log.WithFields(logrus.Fields{
			"operation_id": operationID,
			"change_index": i,
			"change_kind":  change.Kind,
			"error_kind":   domain.KindOf(err),
		}).WithError(err).Warn("rollback step failed")
	}
	return result
}

func (r *Reconstructor) undo(ctx context.Context, change domain.Change, result *domain.RollbackResult) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("rollback handler panicked: %v", rec)
		}
	}()

	h, ok := r.handlers[change.Kind]
	if !ok {
		return domain.Validation("rollback", "no handler for change kind %q", change.Kind)
	}
	return h(ctx, change, result)
}

func (r *Reconstructor) undoDeleteState(ctx context.Context, change domain.Change, result *domain.RollbackResult) error {
	snapshot, err := domain.DecodeSnapshot(change.OriginalData)
	if err != nil {
		return err
	}

	if snapshot.Holding() == domain.AreaCorrection {
		rebuilt, err := r.disambiguator.Rebuild(snapshot)
		if err != nil {
			return err
		}
		switch {
		case rebuilt.Sale != nil:
			_, err = r.target.InsertSale(ctx, *rebuilt.Sale)
		case rebuilt.Transfer != nil:
			_, err = r.target.InsertTransfer(ctx, *rebuilt.Transfer)
		}
		if err != nil {
			return err
		}
		result.RebuiltRecords++
		return nil
	}

	item, err := stateItemFrom(snapshot)
	if err != nil {
		return err
	}
	if _, err := r.target.InsertStateItem(ctx, item); err != nil {
		return err
	}
	result.RestoredStates++
	return nil
}

func (r *Reconstructor) undoHistoryEntry(ctx context.Context, change domain.Change, result *domain.RollbackResult) error {
	if change.ChangeID == "" {
		return domain.Validation("rollback history entry", "changeId is empty")
	}
	// a correction still points here; deleting would orphan its chain
	entry, err := r.target.GetHistoryEntry(ctx, change.ChangeID)
	if err != nil {
		return err
	}
	if entry.HasCorrections {
		return domain.Conflict("rollback history entry", "transaction %s has corrections", change.ChangeID)
	}
	if err := r.target.DeleteHistoryEntry(ctx, change.ChangeID); err != nil {
		return err
	}
	result.RemovedHistoryEntries++
	return nil
}

func (r *Reconstructor) undoCreatedRecord(ctx context.Context, change domain.Change, result *domain.RollbackResult) error {
	if change.RecordID == "" {
		return domain.Validation("rollback created record", "recordId is empty")
	}

	var err error
	switch change.Collection {
	case domain.CollectionSales:
		err = r.target.DeleteSale(ctx, change.RecordID)
	case domain.CollectionTransfers:
		err = r.target.DeleteTransfer(ctx, change.RecordID)
	case domain.CollectionCorrections:
		err = r.target.DeleteCorrectionItem(ctx, change.RecordID)
	default:
		err = domain.Validation("rollback created record", "unknown collection %q", change.Collection)
	}
	if err != nil {
		return err
	}
	result.RemovedRecords++
	return nil
}

// stateItemFrom builds a fresh StateItem with no identity. A sale puts the
// item back where it was sold; a transfer puts it back at its source.
func stateItemFrom(s domain.Snapshot) (domain.StateItem, error) {
	fields := s.Fields()
	item := domain.StateItem{
		FullName:      fields.FullName,
		Barcode:       fields.Barcode,
		Size:          fields.Size,
		Quantity:      fields.Quantity,
		Price:         fields.Price,
		DiscountPrice: fields.DiscountPrice,
	}

	switch snap := s.(type) {
	case domain.SaleSnapshot:
		item.Location = firstNonEmpty(snap.Location, snap.From, snap.Symbol)
	case domain.TransferSnapshot:
		item.Location = firstNonEmpty(snap.Location, snap.TransferFrom)
	}
	if item.Location == "" {
		return domain.StateItem{}, domain.AmbiguousSnapshot("restore state item", "snapshot for %s names no location", fields.Barcode)
	}
	return item, nil
}
