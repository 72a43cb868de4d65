package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) InsertStateItem(_ context.Context, item domain.StateItem) (*domain.StateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(item.Barcode) == "" || strings.TrimSpace(item.Location) == "" {
		return nil, domain.Validation("insert state item", "barcode and location are required")
	}
	// identity is always fresh; a restored item never reuses its old id
	item.ID = xid.New("st")
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.stateItemsByID[item.ID] = item
	return &item, nil
}

// TakeStateItem removes the oldest piece matching (barcode, location, size).
func (s *Store) TakeStateItem(_ context.Context, barcode string, location string, size string) (*domain.StateItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *domain.StateItem
	for _, item := range s.stateItemsByID {
		if item.Barcode != barcode || item.Location != location || item.Size != size {
			continue
		}
		if found == nil || item.CreatedAt.Before(found.CreatedAt) || (item.CreatedAt.Equal(found.CreatedAt) && item.ID < found.ID) {
			candidate := item
			found = &candidate
		}
	}
	if found == nil {
		return nil, domain.NotFound("take state item", "no item %s size %q at %s", barcode, size, location)
	}
	delete(s.stateItemsByID, found.ID)
	return found, nil
}

func (s *Store) ListStateItems(_ context.Context, location string) ([]domain.StateItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StateItem, 0, len(s.stateItemsByID))
	for _, item := range s.stateItemsByID {
		if location != "" && item.Location != location {
			continue
		}
		result = append(result, item)
	}
	slices.SortFunc(result, func(a, b domain.StateItem) int {
		if c := strings.Compare(a.FullName, b.FullName); c != 0 {
			return c
		}
		if c := strings.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) InsertSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if _, exists := s.salesByID[sale.ID]; exists {
		return nil, domain.Conflict("insert sale", "sale %s already exists", sale.ID)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByID[id]; !exists {
		return domain.NotFound("delete sale", "sale %s", id)
	}
	delete(s.salesByID, id)
	return nil
}

func (s *Store) TakeSale(_ context.Context, id string, location string) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, exists := s.salesByID[id]
	if !exists || sale.Origin != location {
		return nil, domain.NotFound("take sale", "sale %s at %s", id, location)
	}
	delete(s.salesByID, id)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, location string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if location != "" && sale.Origin != location {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) InsertTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ID == "" {
		transfer.ID = xid.New("tr")
	}
	if _, exists := s.transfersByID[transfer.ID]; exists {
		return nil, domain.Conflict("insert transfer", "transfer %s already exists", transfer.ID)
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}
	s.transfersByID[transfer.ID] = transfer
	return &transfer, nil
}

func (s *Store) DeleteTransfer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transfersByID[id]; !exists {
		return domain.NotFound("delete transfer", "transfer %s", id)
	}
	delete(s.transfersByID, id)
	return nil
}

func (s *Store) TakeTransfer(_ context.Context, id string, location string) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, exists := s.transfersByID[id]
	if !exists || transfer.TransferFrom != location {
		return nil, domain.NotFound("take transfer", "transfer %s from %s", id, location)
	}
	delete(s.transfersByID, id)
	return &transfer, nil
}

// ListTransfers returns transfers leaving or entering location.
func (s *Store) ListTransfers(_ context.Context, location string) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transfer, 0, len(s.transfersByID))
	for _, transfer := range s.transfersByID {
		if location != "" && transfer.TransferFrom != location && transfer.TransferTo != location {
			continue
		}
		result = append(result, transfer)
	}
	slices.SortFunc(result, func(a, b domain.Transfer) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) InsertCorrectionItem(_ context.Context, item domain.CorrectionItem) (*domain.CorrectionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.IsFromSale && item.Sale == nil || !item.IsFromSale && item.Transfer == nil {
		return nil, domain.Validation("insert correction item", "payload does not match isFromSale=%t", item.IsFromSale)
	}
	if item.ID == "" {
		item.ID = xid.New("corr")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.correctionsByID[item.ID] = cloneCorrection(item)
	out := cloneCorrection(item)
	return &out, nil
}

func (s *Store) TakeCorrectionItem(_ context.Context, id string) (*domain.CorrectionItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.correctionsByID[id]
	if !exists {
		return nil, domain.NotFound("take correction item", "correction item %s", id)
	}
	delete(s.correctionsByID, id)
	return &item, nil
}

func (s *Store) DeleteCorrectionItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.correctionsByID[id]; !exists {
		return domain.NotFound("delete correction item", "correction item %s", id)
	}
	delete(s.correctionsByID, id)
	return nil
}

func (s *Store) ListCorrectionItems(_ context.Context, location string) ([]domain.CorrectionItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CorrectionItem, 0, len(s.correctionsByID))
	for _, item := range s.correctionsByID {
		if location != "" && item.Location != location {
			continue
		}
		result = append(result, cloneCorrection(item))
	}
	slices.SortFunc(result, func(a, b domain.CorrectionItem) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}
