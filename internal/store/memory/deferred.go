package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) CreateDeferredSale(_ context.Context, sale domain.DeferredSale) (*domain.DeferredSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(sale.ProductID) == "" {
		return nil, domain.Validation("enqueue deferred sale", "productId is required")
	}
	if sale.ID == "" {
		sale.ID = xid.New("def")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	sale.Status = domain.DeferredPending
	sale.PaidAt = nil
	sale.PaidBy = ""
	sale.PaidAmount = nil
	sale.TotalItemsCount = 0
	sale.AveragePerItem = nil

	s.deferredByID[sale.ID] = sale
	return &sale, nil
}

// ListDeferredSales returns entries oldest first, matching queue order.
func (s *Store) ListDeferredSales(_ context.Context, status string) ([]domain.DeferredSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DeferredSale, 0, len(s.deferredByID))
	for _, sale := range s.deferredByID {
		if status != "" && sale.Status != status {
			continue
		}
		result = append(result, sale)
	}
	slices.SortFunc(result, func(a, b domain.DeferredSale) int {
		return -newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return result, nil
}

func (s *Store) SummarizePending(_ context.Context) (domain.DeferredSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DeferredSummary{PendingValue: decimal.Zero}
	for _, sale := range s.deferredByID {
		if sale.Status != domain.DeferredPending {
			continue
		}
		summary.PendingCount++
		summary.PendingValue = summary.PendingValue.Add(sale.Price)
	}
	return summary, nil
}

func (s *Store) SettlePending(_ context.Context, req domain.PayAllRequest, at time.Time) (*domain.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]string, 0, len(s.deferredByID))
	for id, sale := range s.deferredByID {
		if sale.Status == domain.DeferredPending {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return nil, domain.NotFound("settle deferred sales", "no pending deferred sales")
	}

	settlement := domain.Settlement{
		PaidAt:          at.UTC(),
		PaidBy:          req.PaidBy,
		PaidAmount:      req.PaidAmount,
		TotalItemsCount: len(pending),
		AveragePerItem:  domain.AveragePerItem(req.PaidAmount, len(pending)),
	}
	for _, id := range pending {
		sale := s.deferredByID[id]
		paidAt := settlement.PaidAt
		amount := settlement.PaidAmount
		average := settlement.AveragePerItem
		sale.Status = domain.DeferredPaid
		sale.PaidAt = &paidAt
		sale.PaidBy = settlement.PaidBy
		sale.PaidAmount = &amount
		sale.TotalItemsCount = settlement.TotalItemsCount
		sale.AveragePerItem = &average
		s.deferredByID[id] = sale
	}
	return &settlement, nil
}
