package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/domain"
)

func TestPayAllWithoutPendingWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := managerCtx()

	_, err := f.svc.PayAll(ctx, domain.PayAllRequest{PaidBy: "manager", PaidAmount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	logs, err := f.svc.ListAuditLogs(ctx, "2026-03-14", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestPayAllRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	ctx := managerCtx()
	_, err := f.svc.EnqueueDeferredSale(ctx, domain.DeferredSale{ProductID: "p-1"})
	require.NoError(t, err)

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := f.svc.PayAll(ctx, domain.PayAllRequest{PaidBy: "manager", PaidAmount: amount})
		assert.ErrorIs(t, err, domain.ErrValidation)
	}

	pending, err := f.svc.ListDeferredSales(ctx, domain.DeferredPending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPayAllSplitsAmountAcrossPending(t *testing.T) {
	// GIVEN four pending deferred sales
	f := newFixture(t)
	ctx := managerCtx()
	for i := 0; i < 4; i++ {
		_, err := f.svc.EnqueueDeferredSale(ctx, domain.DeferredSale{
			ProductID: fmt.Sprintf("p-%d", i),
			Price:     decimal.RequireFromString("30.00"),
		})
		require.NoError(t, err)
	}
	summary, err := f.svc.DeferredSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.PendingCount)
	assert.True(t, summary.PendingValue.Equal(decimal.NewFromInt(120)))

	// WHEN 100 is paid for all of them
	settlement, err := f.svc.PayAll(ctx, domain.PayAllRequest{PaidBy: "manager", PaidAmount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	// THEN each carries an average of 25.00
	assert.Equal(t, 4, settlement.TotalItemsCount)
	assert.Equal(t, "25.00", settlement.AveragePerItem.StringFixed(2))

	paid, err := f.svc.ListDeferredSales(ctx, domain.DeferredPaid)
	require.NoError(t, err)
	require.Len(t, paid, 4)
	for _, sale := range paid {
		require.NotNil(t, sale.AveragePerItem)
		assert.True(t, sale.AveragePerItem.Equal(decimal.NewFromInt(25)))
		assert.Equal(t, "manager", sale.PaidBy)
		assert.Equal(t, 4, sale.TotalItemsCount)
	}

	_, err = f.svc.PayAll(ctx, domain.PayAllRequest{PaidBy: "manager", PaidAmount: decimal.NewFromInt(100)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAveragePerItemRoundsToCents(t *testing.T) {
	assert.Equal(t, "33.33", domain.AveragePerItem(decimal.NewFromInt(100), 3).StringFixed(2))
	assert.Equal(t, "0.67", domain.AveragePerItem(decimal.NewFromInt(2), 3).StringFixed(2))
	assert.True(t, domain.AveragePerItem(decimal.NewFromInt(5), 0).IsZero())
}

func TestListDeferredSalesRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ListDeferredSales(context.Background(), "lost")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
