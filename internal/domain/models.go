package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleSeller  = "seller"
	RoleManager = "manager"
)

type Actor struct {
	Username string
	Role     string
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	Location      string    `json:"location"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

// StateItem is one physical piece of stock at a location. Its ID is
// assigned by storage and is not stable across a rollback.
type StateItem struct {
	ID            string          `json:"id"`
	FullName      string          `json:"fullName"`
	Barcode       string          `json:"barcode"`
	Size          string          `json:"size,omitempty"`
	Location      string          `json:"location"`
	Quantity      int             `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Payment struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference,omitempty"`
	PaidAt    *time.Time      `json:"paidAt,omitempty"`
}

type Sale struct {
	ID            string          `json:"id"`
	OperationID   string          `json:"operationId,omitempty"`
	FullName      string          `json:"fullName"`
	Barcode       string          `json:"barcode"`
	Size          string          `json:"size,omitempty"`
	Origin        string          `json:"origin"`
	Destination   string          `json:"destination"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	Cash          []Payment       `json:"cash"`
	Card          []Payment       `json:"card"`
	Processed     bool            `json:"processed"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Transfer struct {
	ID            string          `json:"id"`
	OperationID   string          `json:"operationId,omitempty"`
	FullName      string          `json:"fullName"`
	Barcode       string          `json:"barcode"`
	Size          string          `json:"size,omitempty"`
	TransferFrom  string          `json:"transferFrom"`
	TransferTo    string          `json:"transferTo"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
	Processed     bool            `json:"processed"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// CorrectionItem sits in the correction holding area. Transit is the
// coarse label shared by every parked item; the real origin and
// destination live in Sale or Transfer.
type CorrectionItem struct {
	ID         string    `json:"id"`
	Location   string    `json:"location"`
	Transit    string    `json:"transit"`
	IsFromSale bool      `json:"isFromSale"`
	Sale       *Sale     `json:"sale,omitempty"`
	Transfer   *Transfer `json:"transfer,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SellItemRequest struct {
	OperationID string    `json:"-" validate:"required"`
	Barcode     string    `json:"barcode" validate:"required"`
	Size        string    `json:"size"`
	Cash        []Payment `json:"cash"`
	Card        []Payment `json:"card"`
}

type TransferItemRequest struct {
	OperationID string `json:"-" validate:"required"`
	Barcode     string `json:"barcode" validate:"required"`
	Size        string `json:"size"`
	TransferTo  string `json:"transferTo" validate:"required"`
}

// ParkCorrectionRequest names an existing sale or transfer to move into the
// correction holding area.
type ParkCorrectionRequest struct {
	OperationID string `json:"-" validate:"required"`
	IsFromSale  *bool  `json:"isFromSale" validate:"required"`
	RecordID    string `json:"recordId" validate:"required"`
}

type ActionResponse struct {
	OperationID  string `json:"operationId"`
	ChangesAdded int    `json:"changesAdded"`
	RecordID     string `json:"recordId,omitempty"`
}
