package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DeferredPending = "pending"
	DeferredPaid    = "paid"
)

type DeferredSale struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"productId" validate:"required"`
	FullName        string           `json:"fullName"`
	Barcode         string           `json:"barcode"`
	Size            string           `json:"size,omitempty"`
	Location        string           `json:"location"`
	Price           decimal.Decimal  `json:"price"`
	Status          string           `json:"status"`
	CreatedAt       time.Time        `json:"createdAt"`
	PaidAt          *time.Time       `json:"paidAt,omitempty"`
	PaidBy          string           `json:"paidBy,omitempty"`
	PaidAmount      *decimal.Decimal `json:"paidAmount,omitempty"`
	TotalItemsCount int              `json:"totalItemsCount,omitempty"`
	AveragePerItem  *decimal.Decimal `json:"averagePerItem,omitempty"`
}

type PayAllRequest struct {
	PaidBy     string          `json:"paidBy" validate:"required"`
	PaidAmount decimal.Decimal `json:"paidAmount"`
}

// Settlement is one batch payment stamped onto every pending entry.
type Settlement struct {
	PaidAt          time.Time       `json:"paidAt"`
	PaidBy          string          `json:"paidBy"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	TotalItemsCount int             `json:"totalItemsCount"`
	AveragePerItem  decimal.Decimal `json:"averagePerItem"`
}

type DeferredSummary struct {
	PendingCount int             `json:"pendingCount"`
	PendingValue decimal.Decimal `json:"pendingValue"`
}

// AveragePerItem splits amount evenly over count, rounded to cents.
func AveragePerItem(amount decimal.Decimal, count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return amount.DivRound(decimal.NewFromInt(int64(count)), 2)
}
