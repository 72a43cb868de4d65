package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"ledgerpos/backend/internal/domain"
	"ledgerpos/backend/internal/xid"
)

const operationColumns = `id, op_date, to_char(op_day, 'YYYY-MM-DD'), location, symbol, status, COALESCE(actor_id, ''), changes, created_at, cancelled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*domain.Operation, error) {
	var (
		op          domain.Operation
		changesRaw  []byte
		cancelledAt sql.NullTime
	)
	if err := row.Scan(&op.ID, &op.Date, &op.Day, &op.Location, &op.Symbol, &op.Status, &op.ActorID, &changesRaw, &op.CreatedAt, &cancelledAt); err != nil {
		return nil, err
	}
	op.Changes = []domain.Change{}
	if len(changesRaw) > 0 {
		if err := json.Unmarshal(changesRaw, &op.Changes); err != nil {
			return nil, err
		}
	}
	op.Date = op.Date.UTC()
	op.CreatedAt = op.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		op.CancelledAt = &at
	}
	return &op, nil
}

func (s *Store) CreateOperation(ctx context.Context, op domain.Operation) (*domain.Operation, error) {
	if op.ID == "" {
		op.ID = xid.New("op")
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}
	op.Status = domain.OperationActive
	op.CancelledAt = nil
	if op.Changes == nil {
		op.Changes = []domain.Change{}
	}
	changesRaw, err := encodeJSON(op.Changes)
	if err != nil {
		return nil, domain.Persistence("open operation", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO operations (id, op_date, op_day, location, symbol, status, actor_id, changes, created_at)
		VALUES ($1,$2,$3::date,$4,$5,$6,$7,$8::jsonb,$9)
	`, op.ID, op.Date, op.Day, op.Location, op.Symbol, op.Status, nullIfEmpty(op.ActorID), changesRaw, op.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.Conflict("open operation", "an active operation already holds %s/%s on %s", op.Location, op.Symbol, op.Day)
		}
		return nil, domain.Persistence("open operation", err)
	}

	created := op
	return &created, nil
}

func (s *Store) GetOperation(ctx context.Context, id string) (*domain.Operation, error) {
	op, err := scanOperation(s.db.QueryRowContext(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE id = $1
	`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("get operation", "operation %s", id)
		}
		return nil, domain.Persistence("get operation", err)
	}
	return op, nil
}

func (s *Store) FindActiveOperation(ctx context.Context, day string, location string, symbol string) (*domain.Operation, error) {
	op, err := scanOperation(s.db.QueryRowContext(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE op_day = $1::date AND location = $2 AND symbol = $3 AND status = 'active'
	`, day, location, symbol))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("find active operation", "no active operation for %s/%s on %s", location, symbol, day)
		}
		return nil, domain.Persistence("find active operation", err)
	}
	return op, nil
}

func (s *Store) ListOperations(ctx context.Context, day string, location string) ([]domain.Operation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+operationColumns+`
		FROM operations
		WHERE ($1 = '' OR op_day = NULLIF($1, '')::date)
			AND ($2 = '' OR location = $2)
		ORDER BY created_at DESC, id DESC
	`, day, location)
	if err != nil {
		return nil, domain.Persistence("list operations", err)
	}
	defer rows.Close()

	ops := make([]domain.Operation, 0, 16)
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, domain.Persistence("list operations", err)
		}
		ops = append(ops, *op)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Persistence("list operations", err)
	}
	return ops, nil
}

func (s *Store) AppendChange(ctx context.Context, id string, change domain.Change) error {
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	raw, err := encodeJSON(change)
	if err != nil {
		return domain.Persistence("append change", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE operations
		SET changes = changes || jsonb_build_array($2::jsonb)
		WHERE id = $1 AND status = 'active'
	`, id, raw)
	if err != nil {
		return domain.Persistence("append change", err)
	}
	return requireAffected(res, "append change", "no active operation "+id)
}

// CancelOperation claims the row with a conditional update; the losing
// side of a concurrent cancel matches no row and gets NotFound.
func (s *Store) CancelOperation(ctx context.Context, id string, at time.Time) (*domain.Operation, error) {
	op, err := scanOperation(s.db.QueryRowContext(ctx, `
		UPDATE operations
		SET status = 'cancelled', cancelled_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING `+operationColumns+`
	`, id, at.UTC()))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NotFound("cancel operation", "no active operation %s", id)
		}
		return nil, domain.Persistence("cancel operation", err)
	}
	return op, nil
}
