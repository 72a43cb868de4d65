package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// SnapshotArea names the collection an item was removed from.
type SnapshotArea string

const (
	AreaState      SnapshotArea = "state"
	AreaCorrection SnapshotArea = "correction"
)

// Snapshot is the captured prior state of a removed item. It is either a
// SaleSnapshot or a TransferSnapshot; the JSON form always carries the
// isFromSale discriminator.
type Snapshot interface {
	FromSale() bool
	Holding() SnapshotArea
	Fields() SnapshotItem
}

type SnapshotItem struct {
	FullName      string          `json:"fullName"`
	Barcode       string          `json:"barcode"`
	Size          string          `json:"size,omitempty"`
	Quantity      int             `json:"quantity,omitempty"`
	Price         decimal.Decimal `json:"price"`
	DiscountPrice decimal.Decimal `json:"discount_price"`
}

type SaleSnapshot struct {
	SnapshotItem
	Area     SnapshotArea `json:"area"`
	Location string       `json:"location,omitempty"`
	From     string       `json:"from,omitempty"`
	Symbol   string       `json:"symbol,omitempty"`
	Cash     []Payment    `json:"cash"`
	Card     []Payment    `json:"card"`
	// Transit is the holding-area label; kept for audit only.
	Transit string `json:"transit,omitempty"`
}

type TransferSnapshot struct {
	SnapshotItem
	Area         SnapshotArea `json:"area"`
	Location     string       `json:"location,omitempty"`
	TransferFrom string       `json:"transferFrom"`
	TransferTo   string       `json:"transferTo"`
	Transit      string       `json:"transit,omitempty"`
}

func (s SaleSnapshot) FromSale() bool { return true }
func (s SaleSnapshot) Holding() SnapshotArea { return s.Area }
func (s SaleSnapshot) Fields() SnapshotItem { return s.SnapshotItem }
func (s TransferSnapshot) FromSale() bool { return false }
func (s TransferSnapshot) Holding() SnapshotArea { return s.Area }
func (s TransferSnapshot) Fields() SnapshotItem { return s.SnapshotItem }

func (s SaleSnapshot) MarshalJSON() ([]byte, error) {
	type plain SaleSnapshot
	return json.Marshal(struct {
		IsFromSale bool `json:"isFromSale"`
		plain
	}{IsFromSale: true, plain: plain(s)})
}

func (s TransferSnapshot) MarshalJSON() ([]byte, error) {
	type plain TransferSnapshot
	return json.Marshal(struct {
		IsFromSale bool `json:"isFromSale"`
		plain
	}{IsFromSale: false, plain: plain(s)})
}

// EncodeSnapshot renders a snapshot for storage inside a Change.
func EncodeSnapshot(s Snapshot) (json.RawMessage, error) {
	if s == nil {
		return nil, Validation("encode snapshot", "snapshot is nil")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, Validation("encode snapshot", "%v", err)
	}
	return raw, nil
}

// DecodeSnapshot reads a stored snapshot. A payload without isFromSale, or
// one that fits neither shape, is rejected rather than guessed at.
func DecodeSnapshot(raw json.RawMessage) (Snapshot, error) {
	const op = "decode snapshot"
	if len(raw) == 0 || string(raw) == "null" {
		return nil, AmbiguousSnapshot(op, "snapshot payload is empty")
	}

	var envelope struct {
		IsFromSale *bool        `json:"isFromSale"`
		Area       SnapshotArea `json:"area"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, AmbiguousSnapshot(op, "malformed payload: %v", err)
	}
	if envelope.IsFromSale == nil {
		return nil, AmbiguousSnapshot(op, "isFromSale discriminator is missing")
	}
	if envelope.Area != AreaState && envelope.Area != AreaCorrection {
		return nil, AmbiguousSnapshot(op, "unknown area %q", envelope.Area)
	}

	if *envelope.IsFromSale {
		var s SaleSnapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, AmbiguousSnapshot(op, "sale payload: %v", err)
		}
		if strings.TrimSpace(s.Barcode) == "" {
			return nil, AmbiguousSnapshot(op, "sale snapshot has no barcode")
		}
		if s.Location == "" && s.From == "" && s.Symbol == "" {
			return nil, AmbiguousSnapshot(op, "sale snapshot has no location, from or symbol")
		}
		return s, nil
	}

	var s TransferSnapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, AmbiguousSnapshot(op, "transfer payload: %v", err)
	}
	if strings.TrimSpace(s.Barcode) == "" {
		return nil, AmbiguousSnapshot(op, "transfer snapshot has no barcode")
	}
	if s.TransferFrom == "" || s.TransferTo == "" {
		return nil, AmbiguousSnapshot(op, "transfer snapshot needs transferFrom and transferTo")
	}
	return s, nil
}
