package service

import (
	"context"
	"fmt"
	"strings"

	"ledgerpos/backend/internal/domain"
)

func (s *Service) EnqueueDeferredSale(ctx context.Context, sale domain.DeferredSale) (domain.DeferredSale, error) {
	sale.ProductID = strings.TrimSpace(sale.ProductID)
	if err := s.validateStruct("enqueue deferred sale", sale); err != nil {
		return domain.DeferredSale{}, err
	}
	if sale.Price.IsNegative() {
		return domain.DeferredSale{}, domain.Validation("enqueue deferred sale", "price must not be negative")
	}
	sale.CreatedAt = s.now().UTC()

	saved, err := s.repo.CreateDeferredSale(ctx, sale)
	if err != nil {
		return domain.DeferredSale{}, err
	}
	return *saved, nil
}

func (s *Service) ListDeferredSales(ctx context.Context, status string) ([]domain.DeferredSale, error) {
	status = strings.TrimSpace(status)
	switch status {
	case "", domain.DeferredPending, domain.DeferredPaid:
	default:
		return nil, domain.Validation("list deferred sales", "unknown status %q", status)
	}
	return s.repo.ListDeferredSales(ctx, status)
}

func (s *Service) DeferredSummary(ctx context.Context) (domain.DeferredSummary, error) {
	return s.repo.SummarizePending(ctx)
}

// PayAll settles every pending entry with one payment split evenly across
// them.
func (s *Service) PayAll(ctx context.Context, req domain.PayAllRequest) (domain.Settlement, error) {
	req.PaidBy = strings.TrimSpace(req.PaidBy)
	if err := s.validateStruct("pay all", req); err != nil {
		return domain.Settlement{}, err
	}
	if !req.PaidAmount.IsPositive() {
		return domain.Settlement{}, domain.Validation("pay all", "paidAmount must be greater than zero")
	}

	settlement, err := s.repo.SettlePending(ctx, req, s.now().UTC())
	if err != nil {
		return domain.Settlement{}, err
	}

	s.logAudit(ctx, "", "deferred_pay_all", "deferred_sale", settlement.PaidBy, fmt.Sprintf("amount=%s,items=%d,average=%s",
		settlement.PaidAmount.StringFixed(2), settlement.TotalItemsCount, settlement.AveragePerItem.StringFixed(2)))
	return *settlement, nil
}
