package store

import (
	"context"
	"time"

	"ledgerpos/backend/internal/domain"
)

type OperationStore interface {
	// CreateOperation fails with domain.ErrConflict when an active
	// operation already holds (Day, Location, Symbol).
	CreateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error)
	GetOperation(ctx context.Context, id string) (*domain.Operation, error)
	FindActiveOperation(ctx context.Context, day string, location string, symbol string) (*domain.Operation, error)
	ListOperations(ctx context.Context, day string, location string) ([]domain.Operation, error)
	AppendChange(ctx context.Context, id string, change domain.Change) error
	// CancelOperation flips an active operation to cancelled in one
	// conditional write and returns it with its change list.
	CancelOperation(ctx context.Context, id string, at time.Time) (*domain.Operation, error)
}

type InventoryStore interface {
	InsertStateItem(ctx context.Context, item domain.StateItem) (*domain.StateItem, error)
	TakeStateItem(ctx context.Context, barcode string, location string, size string) (*domain.StateItem, error)
	ListStateItems(ctx context.Context, location string) ([]domain.StateItem, error)

	InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	// TakeSale removes and returns the sale booked at location.
	TakeSale(ctx context.Context, id string, location string) (*domain.Sale, error)
	ListSales(ctx context.Context, location string) ([]domain.Sale, error)

	InsertTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error)
	DeleteTransfer(ctx context.Context, id string) error
	// TakeTransfer removes and returns the transfer leaving location.
	TakeTransfer(ctx context.Context, id string, location string) (*domain.Transfer, error)
	ListTransfers(ctx context.Context, location string) ([]domain.Transfer, error)

	InsertCorrectionItem(ctx context.Context, item domain.CorrectionItem) (*domain.CorrectionItem, error)
	TakeCorrectionItem(ctx context.Context, id string) (*domain.CorrectionItem, error)
	DeleteCorrectionItem(ctx context.Context, id string) error
	ListCorrectionItems(ctx context.Context, location string) ([]domain.CorrectionItem, error)
}

type HistoryStore interface {
	// CreateHistoryEntry inserts entry; for a correction it also flags the
	// referenced original with HasCorrections in the same write.
	CreateHistoryEntry(ctx context.Context, entry domain.TransactionHistoryEntry) (*domain.TransactionHistoryEntry, error)
	GetHistoryEntry(ctx context.Context, id string) (*domain.TransactionHistoryEntry, error)
	ListHistoryEntries(ctx context.Context, filter domain.HistoryFilter) ([]domain.TransactionHistoryEntry, error)
	UpdateActiveHistoryEntry(ctx context.Context, id string, patch domain.HistoryPatch) (*domain.TransactionHistoryEntry, error)
	DeactivateHistoryEntry(ctx context.Context, id string) error
	DeactivateHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)
	DeleteHistoryEntry(ctx context.Context, id string) error
}

type DeferredStore interface {
	CreateDeferredSale(ctx context.Context, sale domain.DeferredSale) (*domain.DeferredSale, error)
	ListDeferredSales(ctx context.Context, status string) ([]domain.DeferredSale, error)
	SummarizePending(ctx context.Context) (domain.DeferredSummary, error)
	// SettlePending stamps every pending entry paid. It fails with
	// domain.ErrNotFound and writes nothing when none are pending.
	SettlePending(ctx context.Context, req domain.PayAllRequest, at time.Time) (*domain.Settlement, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type Repository interface {
	OperationStore
	InventoryStore
	HistoryStore
	DeferredStore
	AuditStore
	UserStore
}
