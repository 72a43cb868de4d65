package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

const historyColumns = `transaction_id, ts, operation_type, origin_location, destination_location, destination_symbol,
	processed_items, items_count, is_active, is_correction, COALESCE(original_transaction_id, ''), has_corrections`

func scanHistory(row rowScanner) (*domain.TransactionHistoryEntry, error) {
	var (
		entry domain.TransactionHistoryEntry
		items []byte
	)
	if err := row.Scan(&entry.TransactionID, &entry.Timestamp, &entry.OperationType, &entry.OriginLocation, &entry.DestinationLocation, &entry.DestinationSymbol,
		&items, &entry.ItemsCount, &entry.IsActive, &entry.IsCorrection, &entry.OriginalTransactionID, &entry.HasCorrections); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &entry.ProcessedItems); err != nil {
		return nil, err
	}
	entry.Timestamp = entry.Timestamp.UTC()
	return &entry, nil
}

func (s *Store) CreateHistoryEntry(ctx context.Context, entry domain.TransactionHistoryEntry) (*domain.TransactionHistoryEntry, error) {
	if entry.TransactionID == "" {
		entry.TransactionID = xid.New("tx")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entry.ItemsCount = len(entry.ProcessedItems)
	entry.IsActive = true
	entry.HasCorrections = false
	items, err := encodeJSON(entry.ProcessedItems)
	if err != nil {
		return nil, domain.Persistence("record history", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Persistence("record history", err)
	}
	defer func() { _ = tx.Rollback() }()

	if entry.IsCorrection {
		res, err := tx.ExecContext(ctx, `
			UPDATE transaction_history
			SET has_corrections = true
			WHERE transaction_id = $1
		`, entry.OriginalTransactionID)
		if err != nil {
			return nil, domain.Persistence("record history", err)
		}
		if err := requireAffected(res, "record history", "original transaction "+entry.OriginalTransactionID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transaction_history (
			transaction_id, ts, operation_type, origin_location, destination_location, destination_symbol,
			processed_items, items_count, is_active, is_correction, original_transaction_id, has_corrections
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12)
	`, entry.TransactionID, entry.Timestamp, entry.OperationType, entry.OriginLocation, entry.DestinationLocation, entry.DestinationSymbol,
		items, entry.ItemsCount, entry.IsActive, entry.IsCorrection, nullIfEmpty(entry.OriginalTransactionID), entry.HasCorrections)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("record history", "transaction %s already exists", entry.TransactionID)
		}
		return nil, domain.Persistence("record history", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Persistence("record history", err)
	}
	saved := entry
	return &saved, nil
}

func (s *Store) GetHistoryEntry(ctx context.Context, id string) (*domain.TransactionHistoryEntry, error) {
	entry, err := scanHistory(s.db.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM transaction_history
		WHERE transaction_id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("get history entry", "transaction %s", id)
		}
		return nil, domain.Persistence("get history entry", err)
	}
	return entry, nil
}

func (s *Store) ListHistoryEntries(ctx context.Context, filter domain.HistoryFilter) ([]domain.TransactionHistoryEntry, error) {
	var isActive, from, to any
	if filter.IsActive != nil {
		isActive = *filter.IsActive
	}
	if filter.From != nil {
		from = *filter.From
	}
	if filter.To != nil {
		to = *filter.To
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM transaction_history
		WHERE ($1::boolean IS NULL OR is_active = $1::boolean)
			AND ($2::timestamptz IS NULL OR ts >= $2::timestamptz)
			AND ($3::timestamptz IS NULL OR ts < $3::timestamptz)
		ORDER BY ts DESC, transaction_id DESC
		LIMIT $4
	`, isActive, from, to, limit)
	if err != nil {
		return nil, domain.Persistence("list history", err)
	}
	defer rows.Close()

	entries := make([]domain.TransactionHistoryEntry, 0, limit)
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, domain.Persistence("list history", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list history", err)
	}
	return entries, nil
}

func (s *Store) UpdateActiveHistoryEntry(ctx context.Context, id string, patch domain.HistoryPatch) (*domain.TransactionHistoryEntry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, domain.Persistence("update history entry", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanHistory(tx.QueryRowContext(ctx, `
		SELECT `+historyColumns+`
		FROM transaction_history
		WHERE transaction_id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("update history entry", "transaction %s", id)
		}
		return nil, domain.Persistence("update history entry", err)
	}
	if !current.IsActive {
		return nil, domain.Conflict("update history entry", "transaction %s is inactive", id)
	}

	updated := patch.Apply(*current)
	items, err := encodeJSON(updated.ProcessedItems)
	if err != nil {
		return nil, domain.Persistence("update history entry", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE transaction_history
		SET origin_location = $2, destination_location = $3, destination_symbol = $4,
			processed_items = $5::jsonb, items_count = $6
		WHERE transaction_id = $1 AND is_active = true
	`, id, updated.OriginLocation, updated.DestinationLocation, updated.DestinationSymbol, items, updated.ItemsCount)
	if err != nil {
		return nil, domain.Persistence("update history entry", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.Persistence("update history entry", err)
	}
	return &updated, nil
}

func (s *Store) DeactivateHistoryEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_history
		SET is_active = false
		WHERE transaction_id = $1 AND is_active = true
	`, id)
	if err != nil {
		return domain.Persistence("deactivate history entry", err)
	}
	return requireAffected(res, "deactivate history entry", "no active transaction "+id)
}

func (s *Store) DeactivateHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transaction_history
		SET is_active = false
		WHERE is_active = true AND ts < $1
	`, cutoff)
	if err != nil {
		return 0, domain.Persistence("purge history", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, domain.Persistence("purge history", err)
	}
	return int(affected), nil
}

func (s *Store) DeleteHistoryEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transaction_history WHERE transaction_id = $1`, id)
	if err != nil {
		return domain.Persistence("delete history entry", err)
	}
	return requireAffected(res, "delete history entry", "transaction "+id)
}
