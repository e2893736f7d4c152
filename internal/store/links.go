package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/zettel/internal/apperr"
)

func scanLinks(rows *sql.Rows) ([]Link, error) {
	defer rows.Close()
	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// OutgoingLinks returns the edges whose source is noteID, ordered by target.
func (tx *Tx) OutgoingLinks(ctx context.Context, noteID int64) ([]Link, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT id, source_id, target_id, created_at FROM note_links WHERE source_id = ? ORDER BY target_id`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: outgoing links: %w", err)
	}
	links, err := scanLinks(rows)
	if err != nil {
		return nil, fmt.Errorf("store: outgoing links: %w", err)
	}
	return links, nil
}

// IncomingLinks returns the edges whose target is noteID, ordered by source.
func (tx *Tx) IncomingLinks(ctx context.Context, noteID int64) ([]Link, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT id, source_id, target_id, created_at FROM note_links WHERE target_id = ? ORDER BY source_id`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: incoming links: %w", err)
	}
	links, err := scanLinks(rows)
	if err != nil {
		return nil, fmt.Errorf("store: incoming links: %w", err)
	}
	return links, nil
}

// OwnerLinks returns every edge between the owner's notes, ordered by id.
func (tx *Tx) OwnerLinks(ctx context.Context, ownerID int64) ([]Link, error) {
	rows, err := tx.q.QueryContext(ctx, `
		SELECT l.id, l.source_id, l.target_id, l.created_at
		FROM note_links l JOIN notes n ON n.id = l.source_id
		WHERE n.owner_id = ?
		ORDER BY l.id
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: owner links: %w", err)
	}
	links, err := scanLinks(rows)
	if err != nil {
		return nil, fmt.Errorf("store: owner links: %w", err)
	}
	return links, nil
}

// InsertLinks adds edges from sourceID to each target. Existing edges are kept.
// A self edge is a validation error.
func (tx *Tx) InsertLinks(ctx context.Context, sourceID int64, targetIDs []int64) error {
	now := time.Now().UTC()
	for _, target := range targetIDs {
		if target == sourceID {
			return apperr.Validation("capture %d cannot link to itself", sourceID)
		}
		_, err := tx.q.ExecContext(ctx, `INSERT OR IGNORE INTO note_links (source_id, target_id, created_at) VALUES (?, ?, ?)`, sourceID, target, now)
		if err != nil {
			return fmt.Errorf("store: insert link %d->%d: %w", sourceID, target, err)
		}
	}
	return nil
}

// DeleteLinks removes the edges from sourceID to each of targetIDs.
func (tx *Tx) DeleteLinks(ctx context.Context, sourceID int64, targetIDs []int64) error {
	if len(targetIDs) == 0 {
		return nil
	}
	args := append([]any{sourceID}, int64Args(targetIDs)...)
	_, err := tx.q.ExecContext(ctx, `DELETE FROM note_links WHERE source_id = ? AND target_id IN (`+placeholders(len(targetIDs))+`)`, args...)
	if err != nil {
		return fmt.Errorf("store: delete links: %w", err)
	}
	return nil
}

// FindLink returns the edge sourceID -> targetID, or nil when absent.
func (tx *Tx) FindLink(ctx context.Context, sourceID, targetID int64) (*Link, error) {
	var l Link
	err := tx.q.QueryRowContext(ctx, `SELECT id, source_id, target_id, created_at FROM note_links WHERE source_id = ? AND target_id = ?`,
		sourceID, targetID).Scan(&l.ID, &l.SourceID, &l.TargetID, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find link: %w", err)
	}
	return &l, nil
}

// GetLink returns the edge with id.
func (tx *Tx) GetLink(ctx context.Context, id int64) (*Link, error) {
	var l Link
	err := tx.q.QueryRowContext(ctx, `SELECT id, source_id, target_id, created_at FROM note_links WHERE id = ?`, id).
		Scan(&l.ID, &l.SourceID, &l.TargetID, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("link")
	}
	if err != nil {
		return nil, fmt.Errorf("store: get link: %w", err)
	}
	return &l, nil
}
