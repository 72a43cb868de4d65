package rollback

import (
	"strings"

	"ledgerpos/backend/internal/domain"
)

// Rebuilt is the record a correction-area snapshot turns back into.
// Exactly one field is set.
type Rebuilt struct {
	Sale     *domain.Sale
	Transfer *domain.Transfer
}

// Disambiguator turns a snapshot taken from the correction holding area
// back into the Sale or Transfer it started as. The holding area's coarse
// label is never copied into the rebuilt record.
type Disambiguator struct {
	correctionLabel string
}

func NewDisambiguator(correctionLabel string) *Disambiguator {
	return &Disambiguator{correctionLabel: strings.TrimSpace(correctionLabel)}
}

func (d *Disambiguator) Rebuild(s domain.Snapshot) (Rebuilt, error) {
	switch snap := s.(type) {
	case domain.SaleSnapshot:
		sale, err := d.RebuildSale(snap)
		if err != nil {
			return Rebuilt{}, err
		}
		return Rebuilt{Sale: &sale}, nil
	case domain.TransferSnapshot:
		transfer, err := d.RebuildTransfer(snap)
		if err != nil {
			return Rebuilt{}, err
		}
		return Rebuilt{Transfer: &transfer}, nil
	default:
		return Rebuilt{}, domain.AmbiguousSnapshot("rebuild", "unsupported snapshot type %T", s)
	}
}

// RebuildSale resolves the sale's point of sale from location, from and
// symbol, in that order, and keeps the payment lines as captured.
func (d *Disambiguator) RebuildSale(s domain.SaleSnapshot) (domain.Sale, error) {
	origin := firstNonEmpty(s.Location, s.From, s.Symbol)
	if origin == "" {
		return domain.Sale{}, domain.AmbiguousSnapshot("rebuild sale", "snapshot for %s names no location", s.Barcode)
	}
	if d.isCoarseLabel(origin) {
		return domain.Sale{}, domain.AmbiguousSnapshot("rebuild sale", "snapshot for %s resolves to holding label %q", s.Barcode, origin)
	}

	return domain.Sale{
		FullName:      s.FullName,
		Barcode:       s.Barcode,
		Size:          s.Size,
		Origin:        origin,
		Destination:   origin,
		Price:         s.Price,
		DiscountPrice: s.DiscountPrice,
		Cash:          copyPayments(s.Cash),
		Card:          copyPayments(s.Card),
		Processed:     false,
	}, nil
}

func (d *Disambiguator) RebuildTransfer(s domain.TransferSnapshot) (domain.Transfer, error) {
	from := strings.TrimSpace(s.TransferFrom)
	to := strings.TrimSpace(s.TransferTo)
	if from == "" || to == "" {
		return domain.Transfer{}, domain.AmbiguousSnapshot("rebuild transfer", "snapshot for %s needs transferFrom and transferTo", s.Barcode)
	}
	if d.isCoarseLabel(from) || d.isCoarseLabel(to) {
		return domain.Transfer{}, domain.AmbiguousSnapshot("rebuild transfer", "snapshot for %s routes through holding label %q", s.Barcode, d.correctionLabel)
	}

	return domain.Transfer{
		FullName:      s.FullName,
		Barcode:       s.Barcode,
		Size:          s.Size,
		TransferFrom:  from,
		TransferTo:    to,
		Price:         s.Price,
		DiscountPrice: s.DiscountPrice,
		Processed:     false,
	}, nil
}

func (d *Disambiguator) isCoarseLabel(v string) bool {
	return d.correctionLabel != "" && strings.EqualFold(strings.TrimSpace(v), d.correctionLabel)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// copyPayments keeps nil as an empty list so a round trip through JSON
// compares equal.
func copyPayments(src []domain.Payment) []domain.Payment {
	out := make([]domain.Payment, len(src))
	copy(out, src)
	return out
}
