package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"ledgerpos/backend/internal/domain"
)

// SellItem takes one piece off the operation's shelf, books the sale and
// records it in history. Each write is appended to the operation right
// after it lands, so a partial failure is still undone by cancelling.
func (s *Service) SellItem(ctx context.Context, req domain.SellItemRequest) (domain.ActionResponse, error) {
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Size = strings.TrimSpace(req.Size)
	if err := s.validateStruct("sell item", req); err != nil {
		return domain.ActionResponse{}, err
	}
	if err := checkPayments("sell item", req.Cash, req.Card); err != nil {
		return domain.ActionResponse{}, err
	}
	op, err := s.requireActive(ctx, req.OperationID)
	if err != nil {
		return domain.ActionResponse{}, err
	}

	item, err := s.repo.TakeStateItem(ctx, req.Barcode, op.Location, req.Size)
	if err != nil {
		return domain.ActionResponse{}, err
	}
	resp := domain.ActionResponse{OperationID: op.ID}

	snapshot := domain.SaleSnapshot{
		SnapshotItem: snapshotItemOf(*item),
		Area:         domain.AreaState,
		Location:     item.Location,
		Symbol:       op.Symbol,
		Cash:         req.Cash,
		Card:         req.Card,
	}
	if err := s.appendStateRemoval(ctx, op.ID, snapshot, *item); err != nil {
		return resp, err
	}
	resp.ChangesAdded++

	sale, err := s.repo.InsertSale(ctx, domain.Sale{
		OperationID:   op.ID,
		FullName:      item.FullName,
		Barcode:       item.Barcode,
		Size:          item.Size,
		Origin:        op.Location,
		Destination:   op.Location,
		Price:         item.Price,
		DiscountPrice: item.DiscountPrice,
		Cash:          req.Cash,
		Card:          req.Card,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return resp, err
	}
	if err := s.appendCreatedRecord(ctx, op.ID, domain.CollectionSales, sale.ID); err != nil {
		return resp, err
	}
	resp.ChangesAdded++
	resp.RecordID = sale.ID

	if err := s.recordForOperation(ctx, op, domain.HistorySale, op.Location, *item); err != nil {
		return resp, err
	}
	resp.ChangesAdded++
	return resp, nil
}

func (s *Service) TransferItem(ctx context.Context, req domain.TransferItemRequest) (domain.ActionResponse, error) {
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Size = strings.TrimSpace(req.Size)
	req.TransferTo = strings.TrimSpace(req.TransferTo)
	if err := s.validateStruct("transfer item", req); err != nil {
		return domain.ActionResponse{}, err
	}
	op, err := s.requireActive(ctx, req.OperationID)
	if err != nil {
		return domain.ActionResponse{}, err
	}
	if req.TransferTo == op.Location {
		return domain.ActionResponse{}, domain.Validation("transfer item", "transferTo must differ from %s", op.Location)
	}
	if strings.EqualFold(req.TransferTo, s.correctionLabel) {
		return domain.ActionResponse{}, domain.Validation("transfer item", "use the correction endpoint to park items")
	}

	item, err := s.repo.TakeStateItem(ctx, req.Barcode, op.Location, req.Size)
	if err != nil {
		return domain.ActionResponse{}, err
	}
	resp := domain.ActionResponse{OperationID: op.ID}

	snapshot := domain.TransferSnapshot{
		SnapshotItem: snapshotItemOf(*item),
		Area:         domain.AreaState,
		Location:     item.Location,
		TransferFrom: op.Location,
		TransferTo:   req.TransferTo,
	}
	if err := s.appendStateRemoval(ctx, op.ID, snapshot, *item); err != nil {
		return resp, err
	}
	resp.ChangesAdded++

	transfer, err := s.repo.InsertTransfer(ctx, domain.Transfer{
		OperationID:   op.ID,
		FullName:      item.FullName,
		Barcode:       item.Barcode,
		Size:          item.Size,
		TransferFrom:  op.Location,
		TransferTo:    req.TransferTo,
		Price:         item.Price,
		DiscountPrice: item.DiscountPrice,
		CreatedAt:     s.now().UTC(),
	})
	if err != nil {
		return resp, err
	}
	if err := s.appendCreatedRecord(ctx, op.ID, domain.CollectionTransfers, transfer.ID); err != nil {
		return resp, err
	}
	resp.ChangesAdded++
	resp.RecordID = transfer.ID

	if err := s.recordForOperation(ctx, op, domain.HistoryTransfer, req.TransferTo, *item); err != nil {
		return resp, err
	}
	resp.ChangesAdded++
	return resp, nil
}

// ParkCorrection moves an existing sale or transfer into the correction
// holding area under the coarse holding label. The record's real fields
// ride along, so cancelling rebuilds it in its own collection.
func (s *Service) ParkCorrection(ctx context.Context, req domain.ParkCorrectionRequest) (domain.ActionResponse, error) {
	req.RecordID = strings.TrimSpace(req.RecordID)
	if err := s.validateStruct("park correction", req); err != nil {
		return domain.ActionResponse{}, err
	}
	op, err := s.requireActive(ctx, req.OperationID)
	if err != nil {
		return domain.ActionResponse{}, err
	}

	item := domain.CorrectionItem{
		Location:   op.Location,
		Transit:    s.correctionLabel,
		IsFromSale: *req.IsFromSale,
		CreatedAt:  s.now().UTC(),
	}
	if item.IsFromSale {
		item.Sale, err = s.repo.TakeSale(ctx, req.RecordID, op.Location)
	} else {
		item.Transfer, err = s.repo.TakeTransfer(ctx, req.RecordID, op.Location)
	}
	if err != nil {
		return domain.ActionResponse{}, err
	}
	resp := domain.ActionResponse{OperationID: op.ID}

	snapshot, err := correctionSnapshot(item)
	if err == nil {
		var change domain.Change
		change, err = domain.DeleteStateChange(snapshot)
		if err == nil {
			err = s.repo.AppendChange(ctx, op.ID, change)
		}
	}
	if err != nil {
		s.putRecordBack(ctx, item)
		return resp, err
	}
	resp.ChangesAdded++

	saved, err := s.repo.InsertCorrectionItem(ctx, item)
	if err != nil {
		return resp, err
	}
	if err := s.appendCreatedRecord(ctx, op.ID, domain.CollectionCorrections, saved.ID); err != nil {
		return resp, err
	}
	resp.ChangesAdded++
	resp.RecordID = saved.ID
	return resp, nil
}

// ResolveCorrection disposes of a parked item. Its snapshot keeps the real
// origin and destination so a rollback can rebuild the original record.
// An item cannot be resolved by the operation that parked it: cancelling
// that operation would rebuild the record twice.
func (s *Service) ResolveCorrection(ctx context.Context, operationID string, correctionID string) (domain.ActionResponse, error) {
	if strings.TrimSpace(correctionID) == "" {
		return domain.ActionResponse{}, domain.Validation("resolve correction", "correctionId is required")
	}
	op, err := s.requireActive(ctx, operationID)
	if err != nil {
		return domain.ActionResponse{}, err
	}
	if parkedBy(op, correctionID) {
		return domain.ActionResponse{}, domain.Conflict("resolve correction", "correction item %s was parked by active operation %s", correctionID, op.ID)
	}

	item, err := s.repo.TakeCorrectionItem(ctx, correctionID)
	if err != nil {
		return domain.ActionResponse{}, err
	}

	snapshot, err := correctionSnapshot(*item)
	if err == nil {
		var change domain.Change
		change, err = domain.DeleteStateChange(snapshot)
		if err == nil {
			err = s.repo.AppendChange(ctx, op.ID, change)
		}
	}
	if err != nil {
		if _, putBack := s.repo.InsertCorrectionItem(ctx, *item); putBack != nil {
			s.log.WithField("correction_id", item.ID).WithError(putBack).Error("failed to put correction item back")
		}
		return domain.ActionResponse{}, err
	}
	return domain.ActionResponse{OperationID: op.ID, ChangesAdded: 1, RecordID: item.ID}, nil
}

func (s *Service) ListStateItems(ctx context.Context, location string) ([]domain.StateItem, error) {
	return s.repo.ListStateItems(ctx, strings.TrimSpace(location))
}

func (s *Service) ListSales(ctx context.Context, location string) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, strings.TrimSpace(location))
}

func (s *Service) ListTransfers(ctx context.Context, location string) ([]domain.Transfer, error) {
	return s.repo.ListTransfers(ctx, strings.TrimSpace(location))
}

func (s *Service) ListCorrectionItems(ctx context.Context, location string) ([]domain.CorrectionItem, error) {
	return s.repo.ListCorrectionItems(ctx, strings.TrimSpace(location))
}

// appendStateRemoval records a removed state item. If the change cannot
// be stored the item goes back on the shelf.
func (s *Service) appendStateRemoval(ctx context.Context, operationID string, snapshot domain.Snapshot, item domain.StateItem) error {
	change, err := domain.DeleteStateChange(snapshot)
	if err == nil {
		err = s.repo.AppendChange(ctx, operationID, change)
	}
	if err != nil {
		if _, putBack := s.repo.InsertStateItem(ctx, item); putBack != nil {
			s.log.WithField("barcode", item.Barcode).WithError(putBack).Error("failed to put state item back")
		}
		return err
	}
	return nil
}

func (s *Service) recordForOperation(ctx context.Context, op *domain.Operation, kind string, destination string, item domain.StateItem) error {
	entry, err := s.repo.CreateHistoryEntry(ctx, domain.TransactionHistoryEntry{
		Timestamp:           s.now().UTC(),
		OperationType:       kind,
		OriginLocation:      op.Location,
		DestinationLocation: destination,
		DestinationSymbol:   op.Symbol,
		ProcessedItems: []domain.ProcessedItem{{
			FullName:       item.FullName,
			Size:           item.Size,
			Barcode:        item.Barcode,
			Price:          item.Price,
			DiscountPrice:  item.DiscountPrice,
			ProcessType:    kind,
			OriginLocation: op.Location,
		}},
	})
	if err != nil {
		return err
	}
	if err := s.repo.AppendChange(ctx, op.ID, domain.HistoryEntryChange(entry.TransactionID)); err != nil {
		if cleanup := s.repo.DeleteHistoryEntry(ctx, entry.TransactionID); cleanup != nil {
			s.log.WithField("transaction_id", entry.TransactionID).WithError(cleanup).Error("failed to delete untracked history entry")
		}
		return err
	}
	return nil
}

// appendCreatedRecord tracks a freshly inserted record. If the change
// cannot be stored the record is deleted again.
func (s *Service) appendCreatedRecord(ctx context.Context, operationID string, collection domain.RecordCollection, id string) error {
	err := s.repo.AppendChange(ctx, operationID, domain.CreatedRecordChange(collection, id))
	if err == nil {
		return nil
	}

	var cleanup error
	switch collection {
	case domain.CollectionSales:
		cleanup = s.repo.DeleteSale(ctx, id)
	case domain.CollectionTransfers:
		cleanup = s.repo.DeleteTransfer(ctx, id)
	case domain.CollectionCorrections:
		cleanup = s.repo.DeleteCorrectionItem(ctx, id)
	}
	if cleanup != nil {
		s.log.WithFields(logrus.Fields{
			"collection": collection,
			"record_id":  id,
		}).WithError(cleanup).Error("failed to delete untracked record")
	}
	return err
}

// putRecordBack returns a taken sale or transfer to its collection.
func (s *Service) putRecordBack(ctx context.Context, item domain.CorrectionItem) {
	var err error
	if item.Sale != nil {
		_, err = s.repo.InsertSale(ctx, *item.Sale)
	} else if item.Transfer != nil {
		_, err = s.repo.InsertTransfer(ctx, *item.Transfer)
	}
	if err != nil {
		s.log.WithField("location", item.Location).WithError(err).Error("failed to put record back")
	}
}

// parkedBy reports whether op itself created the correction item.
func parkedBy(op *domain.Operation, correctionID string) bool {
	for _, change := range op.Changes {
		if change.Kind == domain.ChangeCreatedRecord && change.Collection == domain.CollectionCorrections && change.RecordID == correctionID {
			return true
		}
	}
	return false
}

func correctionSnapshot(item domain.CorrectionItem) (domain.Snapshot, error) {
	if item.IsFromSale {
		if item.Sale == nil {
			return nil, domain.AmbiguousSnapshot("resolve correction", "item %s is flagged as a sale but has no sale payload", item.ID)
		}
		sale := item.Sale
		return domain.SaleSnapshot{
			SnapshotItem: domain.SnapshotItem{FullName: sale.FullName, Barcode: sale.Barcode, Size: sale.Size, Price: sale.Price, DiscountPrice: sale.DiscountPrice},
			Area:         domain.AreaCorrection,
			Location:     sale.Origin,
			Cash:         sale.Cash,
			Card:         sale.Card,
			Transit:      item.Transit,
		}, nil
	}
	if item.Transfer == nil {
		return nil, domain.AmbiguousSnapshot("resolve correction", "item %s is flagged as a transfer but has no transfer payload", item.ID)
	}
	transfer := item.Transfer
	return domain.TransferSnapshot{
		SnapshotItem: domain.SnapshotItem{FullName: transfer.FullName, Barcode: transfer.Barcode, Size: transfer.Size, Price: transfer.Price, DiscountPrice: transfer.DiscountPrice},
		Area:         domain.AreaCorrection,
		Location:     item.Location,
		TransferFrom: transfer.TransferFrom,
		TransferTo:   transfer.TransferTo,
		Transit:      item.Transit,
	}, nil
}

func snapshotItemOf(item domain.StateItem) domain.SnapshotItem {
	return domain.SnapshotItem{
		FullName:      item.FullName,
		Barcode:       item.Barcode,
		Size:          item.Size,
		Quantity:      item.Quantity,
		Price:         item.Price,
		DiscountPrice: item.DiscountPrice,
	}
}

func checkPayments(op string, groups ...[]domain.Payment) error {
	for _, group := range groups {
		for _, p := range group {
			if p.Amount.IsNegative() {
				return domain.Validation(op, "payment amounts must not be negative")
			}
		}
	}
	return nil
}
