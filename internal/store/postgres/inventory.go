package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

func (s *Store) InsertStateItem(ctx context.Context, item domain.StateItem) (*domain.StateItem, error) {
	if strings.TrimSpace(item.Barcode) == "" || strings.TrimSpace(item.Location) == "" {
		return nil, domain.Validation("insert state item", "barcode and location are required")
	}
	item.ID = xid.New("st")
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_items (id, full_name, barcode, size, location, quantity, price, discount_price, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, item.ID, item.FullName, item.Barcode, item.Size, item.Location, item.Quantity, item.Price, item.DiscountPrice, item.CreatedAt)
	if err != nil {
		return nil, domain.Persistence("insert state item", err)
	}
	return &item, nil
}

// TakeStateItem deletes the oldest matching piece. SKIP LOCKED lets two
// sellers take different pieces of the same barcode at once.
func (s *Store) TakeStateItem(ctx context.Context, barcode string, location string, size string) (*domain.StateItem, error) {
	var item domain.StateItem
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM state_items
		WHERE id = (
			SELECT id FROM state_items
			WHERE barcode = $1 AND location = $2 AND size = $3
			ORDER BY created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, full_name, barcode, size, location, quantity, price, discount_price, created_at
	`, barcode, location, size).Scan(&item.ID, &item.FullName, &item.Barcode, &item.Size, &item.Location, &item.Quantity, &item.Price, &item.DiscountPrice, &item.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("take state item", "no item %s size %q at %s", barcode, size, location)
		}
		return nil, domain.Persistence("take state item", err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) ListStateItems(ctx context.Context, location string) ([]domain.StateItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, full_name, barcode, size, location, quantity, price, discount_price, created_at
		FROM state_items
		WHERE ($1 = '' OR location = $1)
		ORDER BY full_name, size, id
	`, location)
	if err != nil {
		return nil, domain.Persistence("list state items", err)
	}
	defer rows.Close()

	items := make([]domain.StateItem, 0, 64)
	for rows.Next() {
		var item domain.StateItem
		if err := rows.Scan(&item.ID, &item.FullName, &item.Barcode, &item.Size, &item.Location, &item.Quantity, &item.Price, &item.DiscountPrice, &item.CreatedAt); err != nil {
			return nil, domain.Persistence("list state items", err)
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list state items", err)
	}
	return items, nil
}

func (s *Store) InsertSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}
	cash, err := encodeJSON(paymentsOrEmpty(sale.Cash))
	if err != nil {
		return nil, domain.Persistence("insert sale", err)
	}
	card, err := encodeJSON(paymentsOrEmpty(sale.Card))
	if err != nil {
		return nil, domain.Persistence("insert sale", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (
			id, operation_id, full_name, barcode, size, origin, destination,
			price, discount_price, cash, card, processed, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10::jsonb,$11::jsonb,$12,$13)
	`, sale.ID, nullIfEmpty(sale.OperationID), sale.FullName, sale.Barcode, sale.Size, sale.Origin, sale.Destination,
		sale.Price, sale.DiscountPrice, cash, card, sale.Processed, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("insert sale", "sale %s already exists", sale.ID)
		}
		return nil, domain.Persistence("insert sale", err)
	}
	saved := sale
	return &saved, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return domain.Persistence("delete sale", err)
	}
	return requireAffected(res, "delete sale", "sale "+id)
}

func (s *Store) TakeSale(ctx context.Context, id string, location string) (*domain.Sale, error) {
	var (
		sale       domain.Sale
		cash, card []byte
	)
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM sales
		WHERE id = $1 AND origin = $2
		RETURNING id, COALESCE(operation_id, ''), full_name, barcode, size, origin, destination,
			price, discount_price, cash, card, processed, created_at
	`, id, location).Scan(&sale.ID, &sale.OperationID, &sale.FullName, &sale.Barcode, &sale.Size, &sale.Origin, &sale.Destination,
		&sale.Price, &sale.DiscountPrice, &cash, &card, &sale.Processed, &sale.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("take sale", "sale %s at %s", id, location)
		}
		return nil, domain.Persistence("take sale", err)
	}
	if err := json.Unmarshal(cash, &sale.Cash); err != nil {
		return nil, domain.Persistence("take sale", err)
	}
	if err := json.Unmarshal(card, &sale.Card); err != nil {
		return nil, domain.Persistence("take sale", err)
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, location string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(operation_id, ''), full_name, barcode, size, origin, destination,
			price, discount_price, cash, card, processed, created_at
		FROM sales
		WHERE ($1 = '' OR origin = $1)
		ORDER BY created_at DESC, id DESC
	`, location)
	if err != nil {
		return nil, domain.Persistence("list sales", err)
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var (
			sale       domain.Sale
			cash, card []byte
		)
		if err := rows.Scan(&sale.ID, &sale.OperationID, &sale.FullName, &sale.Barcode, &sale.Size, &sale.Origin, &sale.Destination,
			&sale.Price, &sale.DiscountPrice, &cash, &card, &sale.Processed, &sale.CreatedAt); err != nil {
			return nil, domain.Persistence("list sales", err)
		}
		if err := json.Unmarshal(cash, &sale.Cash); err != nil {
			return nil, domain.Persistence("list sales", err)
		}
		if err := json.Unmarshal(card, &sale.Card); err != nil {
			return nil, domain.Persistence("list sales", err)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list sales", err)
	}
	return sales, nil
}

func (s *Store) InsertTransfer(ctx context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	if transfer.ID == "" {
		transfer.ID = xid.New("tr")
	}
	if transfer.CreatedAt.IsZero() {
		transfer.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transfers (
			id, operation_id, full_name, barcode, size, transfer_from, transfer_to,
			price, discount_price, processed, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, transfer.ID, nullIfEmpty(transfer.OperationID), transfer.FullName, transfer.Barcode, transfer.Size, transfer.TransferFrom, transfer.TransferTo,
		transfer.Price, transfer.DiscountPrice, transfer.Processed, transfer.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("insert transfer", "transfer %s already exists", transfer.ID)
		}
		return nil, domain.Persistence("insert transfer", err)
	}
	saved := transfer
	return &saved, nil
}

func (s *Store) DeleteTransfer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transfers WHERE id = $1`, id)
	if err != nil {
		return domain.Persistence("delete transfer", err)
	}
	return requireAffected(res, "delete transfer", "transfer "+id)
}

func (s *Store) TakeTransfer(ctx context.Context, id string, location string) (*domain.Transfer, error) {
	var t domain.Transfer
	err := s.db.QueryRowContext(ctx, `
		DELETE FROM transfers
		WHERE id = $1 AND transfer_from = $2
		RETURNING id, COALESCE(operation_id, ''), full_name, barcode, size, transfer_from, transfer_to,
			price, discount_price, processed, created_at
	`, id, location).Scan(&t.ID, &t.OperationID, &t.FullName, &t.Barcode, &t.Size, &t.TransferFrom, &t.TransferTo,
		&t.Price, &t.DiscountPrice, &t.Processed, &t.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("take transfer", "transfer %s from %s", id, location)
		}
		return nil, domain.Persistence("take transfer", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	return &t, nil
}

func (s *Store) ListTransfers(ctx context.Context, location string) ([]domain.Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(operation_id, ''), full_name, barcode, size, transfer_from, transfer_to,
			price, discount_price, processed, created_at
		FROM transfers
		WHERE ($1 = '' OR transfer_from = $1 OR transfer_to = $1)
		ORDER BY created_at DESC, id DESC
	`, location)
	if err != nil {
		return nil, domain.Persistence("list transfers", err)
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0, 64)
	for rows.Next() {
		var t domain.Transfer
		if err := rows.Scan(&t.ID, &t.OperationID, &t.FullName, &t.Barcode, &t.Size, &t.TransferFrom, &t.TransferTo,
			&t.Price, &t.DiscountPrice, &t.Processed, &t.CreatedAt); err != nil {
			return nil, domain.Persistence("list transfers", err)
		}
		t.CreatedAt = t.CreatedAt.UTC()
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list transfers", err)
	}
	return transfers, nil
}

// correctionPayload is the JSONB body of a correction row: exactly one of
// Sale or Transfer is set, matching is_from_sale.
type correctionPayload struct {
	Sale     *domain.Sale     `json:"sale,omitempty"`
	Transfer *domain.Transfer `json:"transfer,omitempty"`
}

func (s *Store) InsertCorrectionItem(ctx context.Context, item domain.CorrectionItem) (*domain.CorrectionItem, error) {
	if item.IsFromSale && item.Sale == nil || !item.IsFromSale && item.Transfer == nil {
		return nil, domain.Validation("insert correction item", "payload does not match isFromSale=%t", item.IsFromSale)
	}
	if item.ID == "" {
		item.ID = xid.New("corr")
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	payload, err := encodeJSON(correctionPayload{Sale: item.Sale, Transfer: item.Transfer})
	if err != nil {
		return nil, domain.Persistence("insert correction item", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO correction_items (id, location, transit, is_from_sale, payload, created_at)
		VALUES ($1,$2,$3,$4,$5::jsonb,$6)
	`, item.ID, item.Location, item.Transit, item.IsFromSale, payload, item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("insert correction item", "correction item %s already exists", item.ID)
		}
		return nil, domain.Persistence("insert correction item", err)
	}
	saved := item
	return &saved, nil
}

func (s *Store) TakeCorrectionItem(ctx context.Context, id string) (*domain.CorrectionItem, error) {
	item, err := scanCorrection(s.db.QueryRowContext(ctx, `
		DELETE FROM correction_items
		WHERE id = $1
		RETURNING id, location, transit, is_from_sale, payload, created_at
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("take correction item", "correction item %s", id)
		}
		return nil, domain.Persistence("take correction item", err)
	}
	return item, nil
}

func (s *Store) DeleteCorrectionItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM correction_items WHERE id = $1`, id)
	if err != nil {
		return domain.Persistence("delete correction item", err)
	}
	return requireAffected(res, "delete correction item", "correction item "+id)
}

func (s *Store) ListCorrectionItems(ctx context.Context, location string) ([]domain.CorrectionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, location, transit, is_from_sale, payload, created_at
		FROM correction_items
		WHERE ($1 = '' OR location = $1)
		ORDER BY created_at DESC, id DESC
	`, location)
	if err != nil {
		return nil, domain.Persistence("list correction items", err)
	}
	defer rows.Close()

	items := make([]domain.CorrectionItem, 0, 32)
	for rows.Next() {
		item, err := scanCorrection(rows)
		if err != nil {
			return nil, domain.Persistence("list correction items", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list correction items", err)
	}
	return items, nil
}

func scanCorrection(row rowScanner) (*domain.CorrectionItem, error) {
	var (
		item    domain.CorrectionItem
		raw     []byte
		payload correctionPayload
	)
	if err := row.Scan(&item.ID, &item.Location, &item.Transit, &item.IsFromSale, &raw, &item.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	item.Sale = payload.Sale
	item.Transfer = payload.Transfer
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func paymentsOrEmpty(p []domain.Payment) []domain.Payment {
	if p == nil {
		return []domain.Payment{}
	}
	return p
}
