package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) CreateDeferredSale(ctx context.Context, sale domain.DeferredSale) (*domain.DeferredSale, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deferred_sales (id, product_id, full_name, barcode, size, location, price, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.ProductID, sale.FullName, sale.Barcode, sale.Size, sale.Location, sale.Price, sale.Status, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("enqueue deferred sale", "deferred sale %s already exists", sale.ID)
		}
		return nil, domain.Persistence("enqueue deferred sale", err)
	}
	saved := sale
	return &saved, nil
}

func (s *Store) ListDeferredSales(ctx context.Context, status string) ([]domain.DeferredSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, full_name, barcode, size, location, price, status, created_at,
			paid_at, COALESCE(paid_by, ''), paid_amount, COALESCE(total_items_count, 0), average_per_item
		FROM deferred_sales
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at ASC, id ASC
	`, status)
	if err != nil {
		return nil, domain.Persistence("list deferred sales", err)
	}
	defer rows.Close()

	sales := make([]domain.DeferredSale, 0, 32)
	for rows.Next() {
		var (
			sale       domain.DeferredSale
			paidAt     sql.NullTime
			paidAmount decimal.NullDecimal
			average    decimal.NullDecimal
		)
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.FullName, &sale.Barcode, &sale.Size, &sale.Location, &sale.Price, &sale.Status, &sale.CreatedAt,
			&paidAt, &sale.PaidBy, &paidAmount, &sale.TotalItemsCount, &average); err != nil {
			return nil, domain.Persistence("list deferred sales", err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		if paidAt.Valid {
			at := paidAt.Time.UTC()
			sale.PaidAt = &at
		}
		if paidAmount.Valid {
			sale.PaidAmount = &paidAmount.Decimal
		}
		if average.Valid {
			sale.AveragePerItem = &average.Decimal
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list deferred sales", err)
	}
	return sales, nil
}

func (s *Store) SummarizePending(ctx context.Context) (domain.DeferredSummary, error) {
	var summary domain.DeferredSummary
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(price), 0)
		FROM deferred_sales
		WHERE status = $1
	`, domain.DeferredPending).Scan(&summary.PendingCount, &summary.PendingValue)
	if err != nil {
		return domain.DeferredSummary{}, domain.Persistence("summarize deferred sales", err)
	}
	return summary, nil
}

// SettlePending counts and stamps pending rows inside one serializable
// transaction so the average matches the rows actually paid.
func (s *Store) SettlePending(ctx context.Context, req domain.PayAllRequest, at time.Time) (*domain.Settlement, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, domain.Persistence("settle deferred sales", err)
	}
	defer func() { _ = tx.Rollback() }()

	var pending int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM deferred_sales WHERE status = $1
	`, domain.DeferredPending).Scan(&pending); err != nil {
		return nil, domain.Persistence("settle deferred sales", err)
	}
	if pending == 0 {
		return nil, domain.NotFound("settle deferred sales", "no pending deferred sales")
	}

	settlement := domain.Settlement{
		PaidAt:          at.UTC(),
		PaidBy:          req.PaidBy,
		PaidAmount:      req.PaidAmount,
		TotalItemsCount: pending,
		AveragePerItem:  domain.AveragePerItem(req.PaidAmount, pending),
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE deferred_sales
		SET status = $1, paid_at = $2, paid_by = $3, paid_amount = $4, total_items_count = $5, average_per_item = $6
		WHERE status = $7
	`, domain.DeferredPaid, settlement.PaidAt, settlement.PaidBy, settlement.PaidAmount, settlement.TotalItemsCount, settlement.AveragePerItem, domain.DeferredPending)
	if err != nil {
		return nil, domain.Persistence("settle deferred sales", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Persistence("settle deferred sales", err)
	}
	return &settlement, nil
}
