package rollback

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpos/backend/internal/domain"
)

func TestRebuildSaleUsesSnapshotLocationNotHoldingLabel(t *testing.T) {
	d := NewDisambiguator("KOREKTA")
	cash := []domain.Payment{{Amount: decimal.RequireFromString("100.00"), Reference: "C-1"}}
	card := []domain.Payment{{Amount: decimal.RequireFromString("20.50"), Reference: "K-7"}}
	snap := domain.SaleSnapshot{
		SnapshotItem: domain.SnapshotItem{FullName: "Jacket", Barcode: "111", Price: decimal.RequireFromString("120.50")},
		Area:         domain.AreaCorrection,
		Location:     "T",
		Cash:         cash,
		Card:         card,
		Transit:      "KOREKTA",
	}

	// encode and decode the way a stored change travels
	raw, err := domain.EncodeSnapshot(snap)
	require.NoError(t, err)
	decoded, err := domain.DecodeSnapshot(raw)
	require.NoError(t, err)

	rebuilt, err := d.Rebuild(decoded)
	require.NoError(t, err)
	require.NotNil(t, rebuilt.Sale)
	assert.Nil(t, rebuilt.Transfer)

	sale := rebuilt.Sale
	assert.Equal(t, "T", sale.Origin)
	assert.Equal(t, "T", sale.Destination)
	assert.NotEqual(t, "KOREKTA", sale.Origin)
	assert.False(t, sale.Processed)
	require.Len(t, sale.Cash, 1)
	require.Len(t, sale.Card, 1)
	assert.True(t, sale.Cash[0].Amount.Equal(cash[0].Amount))
	assert.Equal(t, "C-1", sale.Cash[0].Reference)
	assert.True(t, sale.Card[0].Amount.Equal(card[0].Amount))
	assert.Equal(t, "K-7", sale.Card[0].Reference)
}

func TestRebuildSaleLocationPreference(t *testing.T) {
	d := NewDisambiguator("KOREKTA")

	cases := []struct {
		name string
		snap domain.SaleSnapshot
		want string
	}{
		{"location wins", domain.SaleSnapshot{Location: "T", From: "P", Symbol: "S"}, "T"},
		{"from next", domain.SaleSnapshot{From: "P", Symbol: "S"}, "P"},
		{"symbol last", domain.SaleSnapshot{Symbol: "S"}, "S"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sale, err := d.RebuildSale(tc.snap)
			require.NoError(t, err)
			assert.Equal(t, tc.want, sale.Origin)
			assert.Equal(t, tc.want, sale.Destination)
		})
	}
}

func TestRebuildSaleRejectsHoldingLabelAsOrigin(t *testing.T) {
	d := NewDisambiguator("KOREKTA")

	_, err := d.RebuildSale(domain.SaleSnapshot{Location: "korekta"})
	assert.ErrorIs(t, err, domain.ErrAmbiguousSnapshot)

	_, err = d.RebuildSale(domain.SaleSnapshot{})
	assert.ErrorIs(t, err, domain.ErrAmbiguousSnapshot)
}

func TestRebuildTransferKeepsEndpoints(t *testing.T) {
	d := NewDisambiguator("KOREKTA")

	transfer, err := d.RebuildTransfer(domain.TransferSnapshot{
		SnapshotItem: domain.SnapshotItem{Barcode: "222"},
		Area:         domain.AreaCorrection,
		TransferFrom: "P",
		TransferTo:   "T",
		Transit:      "KOREKTA",
	})
	require.NoError(t, err)
	assert.Equal(t, "P", transfer.TransferFrom)
	assert.Equal(t, "T", transfer.TransferTo)
	assert.False(t, transfer.Processed)

	_, err = d.RebuildTransfer(domain.TransferSnapshot{TransferFrom: "P", TransferTo: "KOREKTA"})
	assert.ErrorIs(t, err, domain.ErrAmbiguousSnapshot)
}

func TestDecodeSnapshotRequiresDiscriminator(t *testing.T) {
	cases := map[string]string{
		"missing discriminator": `{"area":"correction","barcode":"1","location":"T"}`,
		"unknown area":          `{"isFromSale":true,"area":"limbo","barcode":"1","location":"T"}`,
		"sale without location": `{"isFromSale":true,"area":"state","barcode":"1"}`,
		"transfer without to":   `{"isFromSale":false,"area":"state","barcode":"1","transferFrom":"P"}`,
		"empty":                 ``,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.DecodeSnapshot(json.RawMessage(payload))
			assert.ErrorIs(t, err, domain.ErrAmbiguousSnapshot)
		})
	}
}
