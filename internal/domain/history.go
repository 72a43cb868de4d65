package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	HistorySale     = "sale"
	HistoryTransfer = "transfer"
)

type ProcessedItem struct {
	FullName       string          `json:"fullName"`
	Size           string          `json:"size,omitempty"`
	Barcode        string          `json:"barcode"`
	Price          decimal.Decimal `json:"price"`
	DiscountPrice  decimal.Decimal `json:"discount_price"`
	ProcessType    string          `json:"processType"`
	OriginLocation string          `json:"originLocation"`
}

// TransactionHistoryEntry is the audit record of a sale or transfer.
// Entries are soft-deleted through IsActive; OriginalTransactionID links a
// correction back towards its root entry.
type TransactionHistoryEntry struct {
	TransactionID         string          `json:"transactionId"`
	Timestamp             time.Time       `json:"timestamp"`
	OperationType         string          `json:"operationType" validate:"required,oneof=sale transfer"`
	OriginLocation        string          `json:"originLocation" validate:"required"`
	DestinationLocation   string          `json:"destinationLocation"`
	DestinationSymbol     string          `json:"destinationSymbol"`
	ProcessedItems        []ProcessedItem `json:"processedItems" validate:"required,min=1"`
	ItemsCount            int             `json:"itemsCount"`
	IsActive              bool            `json:"isActive"`
	IsCorrection          bool            `json:"isCorrection"`
	OriginalTransactionID string          `json:"originalTransactionId,omitempty"`
	HasCorrections        bool            `json:"hasCorrections"`
}

type HistoryFilter struct {
	IsActive *bool
	From     *time.Time
	To       *time.Time
	Limit    int
}

// HistoryPatch holds the fields an active entry may change.
type HistoryPatch struct {
	DestinationLocation *string          `json:"destinationLocation,omitempty"`
	DestinationSymbol   *string          `json:"destinationSymbol,omitempty"`
	OriginLocation      *string          `json:"originLocation,omitempty"`
	ProcessedItems      *[]ProcessedItem `json:"processedItems,omitempty"`
}

func (p HistoryPatch) Empty() bool {
	return p.DestinationLocation == nil && p.DestinationSymbol == nil && p.OriginLocation == nil && p.ProcessedItems == nil
}

// Apply returns a copy of entry with the patch applied and ItemsCount
// kept in step with ProcessedItems.
func (p HistoryPatch) Apply(entry TransactionHistoryEntry) TransactionHistoryEntry {
	out := entry
	if p.DestinationLocation != nil {
		out.DestinationLocation = *p.DestinationLocation
	}
	if p.DestinationSymbol != nil {
		out.DestinationSymbol = *p.DestinationSymbol
	}
	if p.OriginLocation != nil {
		out.OriginLocation = *p.OriginLocation
	}
	if p.ProcessedItems != nil {
		items := make([]ProcessedItem, len(*p.ProcessedItems))
		copy(items, *p.ProcessedItems)
		out.ProcessedItems = items
		out.ItemsCount = len(items)
	}
	return out
}

type PurgeResult struct {
	Cutoff      time.Time `json:"cutoff"`
	Deactivated int       `json:"deactivated"`
}
