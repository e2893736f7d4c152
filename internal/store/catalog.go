package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/zettel/internal/apperr"
)

// ListTypes returns the capture type catalog ordered by id.
func (tx *Tx) ListTypes(ctx context.Context) ([]CaptureType, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT id, name, symbol, description FROM capture_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list types: %w", err)
	}
	defer rows.Close()
	var out []CaptureType
	for rows.Next() {
		var t CaptureType
		if err := rows.Scan(&t.ID, &t.Name, &t.Symbol, &t.Description); err != nil {
			return nil, fmt.Errorf("store: list types: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListStatuses returns the capture status catalog ordered by id.
func (tx *Tx) ListStatuses(ctx context.Context) ([]CaptureStatus, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT id, name, color FROM capture_statuses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list statuses: %w", err)
	}
	defer rows.Close()
	var out []CaptureStatus
	for rows.Next() {
		var s CaptureStatus
		if err := rows.Scan(&s.ID, &s.Name, &s.Color); err != nil {
			return nil, fmt.Errorf("store: list statuses: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StatusByName looks up a capture status.
func (tx *Tx) StatusByName(ctx context.Context, name string) (*CaptureStatus, error) {
	var s CaptureStatus
	err := tx.q.QueryRowContext(ctx, `SELECT id, name, color FROM capture_statuses WHERE name = ?`, name).Scan(&s.ID, &s.Name, &s.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("capture status")
	}
	if err != nil {
		return nil, fmt.Errorf("store: status by name: %w", err)
	}
	return &s, nil
}

// TypeExists reports whether a capture type with id exists.
func (tx *Tx) TypeExists(ctx context.Context, id int64) (bool, error) {
	return tx.exists(ctx, `SELECT count(*) FROM capture_types WHERE id = ?`, id)
}

// StatusExists reports whether a capture status with id exists.
func (tx *Tx) StatusExists(ctx context.Context, id int64) (bool, error) {
	return tx.exists(ctx, `SELECT count(*) FROM capture_statuses WHERE id = ?`, id)
}

func (tx *Tx) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := tx.q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return n > 0, nil
}
