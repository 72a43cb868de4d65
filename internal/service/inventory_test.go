package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/store/memory"
)

// flakyRepo fails the failAt-th AppendChange call. With stuckDeletes set
// it also refuses to delete correction items.
type flakyRepo struct {
	*memory.Store
	calls        int
	failAt       int
	stuckDeletes bool
}

func (r *flakyRepo) AppendChange(ctx context.Context, id string, change domain.Change) error {
	r.calls++
	if r.calls == r.failAt {
		return domain.Persistence("append change", errors.New("connection reset"))
	}
	return r.Store.AppendChange(ctx, id, change)
}

func (r *flakyRepo) DeleteCorrectionItem(ctx context.Context, id string) error {
	if r.stuckDeletes {
		return domain.Persistence("delete correction item", errors.New("connection reset"))
	}
	return r.Store.DeleteCorrectionItem(ctx, id)
}

func newFlakyFixture(t *testing.T, failAt int) (*fixture, *flakyRepo, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	repo := &flakyRepo{Store: memory.New(), failAt: failAt}
	f := &fixture{
		repo: repo.Store,
		now:  time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
	}
	f.svc = New(repo, Options{
		CorrectionLabel: "KOREKTA",
		Logger:          logger,
		Now:             func() time.Time { return f.now },
	})
	return f, repo, hook
}

func TestSellItemDeletesSaleWhenChangeIsNotStored(t *testing.T) {
	// GIVEN storage that drops the created-record change
	f, _, _ := newFlakyFixture(t, 2)
	ctx := managerCtx()
	f.stock(t, "111", "M", "T")
	op := f.open(t, "T", "A")

	// WHEN an item is sold
	resp, err := f.svc.SellItem(ctx, domain.SellItemRequest{OperationID: op.ID, Barcode: "111", Size: "M"})

	// THEN the untracked sale is gone and only the removal is on the operation
	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, resp.ChangesAdded)
	sales, err := f.svc.ListSales(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, sales)

	// AND cancelling puts the item back on the shelf
	result, err := f.svc.CancelOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	items, err := f.svc.ListStateItems(ctx, "T")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestSellItemDeletesHistoryWhenChangeIsNotStored(t *testing.T) {
	f, _, _ := newFlakyFixture(t, 3)
	ctx := managerCtx()
	f.stock(t, "111", "M", "T")
	op := f.open(t, "T", "A")

	resp, err := f.svc.SellItem(ctx, domain.SellItemRequest{OperationID: op.ID, Barcode: "111", Size: "M"})

	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 2, resp.ChangesAdded)
	assert.Zero(t, f.activeHistory(t))

	result, err := f.svc.CancelOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.RemovedRecords)
}

func TestTransferItemDeletesTransferWhenChangeIsNotStored(t *testing.T) {
	f, _, _ := newFlakyFixture(t, 2)
	ctx := managerCtx()
	f.stock(t, "222", "", "T")
	op := f.open(t, "T", "A")

	_, err := f.svc.TransferItem(ctx, domain.TransferItemRequest{OperationID: op.ID, Barcode: "222", TransferTo: "P"})

	require.ErrorIs(t, err, domain.ErrPersistence)
	transfers, err := f.svc.ListTransfers(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestParkCorrectionPutsRecordBackWhenRemovalIsNotStored(t *testing.T) {
	f, _, _ := newFlakyFixture(t, 1)
	ctx := managerCtx()
	sale := f.bookSale(t, "111", "T", nil, nil)
	op := f.open(t, "T", "A")
	fromSale := true

	_, err := f.svc.ParkCorrection(ctx, domain.ParkCorrectionRequest{OperationID: op.ID, IsFromSale: &fromSale, RecordID: sale.ID})

	require.ErrorIs(t, err, domain.ErrPersistence)
	sales, err := f.svc.ListSales(ctx, "T")
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, sale.ID, sales[0].ID)
	parked, err := f.svc.ListCorrectionItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, parked)
}

func TestParkCorrectionDeletesUntrackedItem(t *testing.T) {
	f, _, _ := newFlakyFixture(t, 2)
	ctx := managerCtx()
	sale := f.bookSale(t, "111", "T", nil, nil)
	op := f.open(t, "T", "A")
	fromSale := true

	resp, err := f.svc.ParkCorrection(ctx, domain.ParkCorrectionRequest{OperationID: op.ID, IsFromSale: &fromSale, RecordID: sale.ID})

	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, resp.ChangesAdded)
	parked, err := f.svc.ListCorrectionItems(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, parked)

	// the stored removal still rebuilds the sale on cancel
	result, err := f.svc.CancelOperation(ctx, op.ID)
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, result.RebuiltRecords)
}

func TestParkCorrectionLogsFailedCleanup(t *testing.T) {
	f, repo, hook := newFlakyFixture(t, 2)
	repo.stuckDeletes = true
	sale := f.bookSale(t, "111", "T", nil, nil)
	op := f.open(t, "T", "A")
	fromSale := true

	_, err := f.svc.ParkCorrection(managerCtx(), domain.ParkCorrectionRequest{OperationID: op.ID, IsFromSale: &fromSale, RecordID: sale.ID})

	require.ErrorIs(t, err, domain.ErrPersistence)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "failed to delete untracked record", entry.Message)
	assert.Equal(t, domain.CollectionCorrections, entry.Data["collection"])
}
