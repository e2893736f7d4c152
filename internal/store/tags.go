package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// MaxTagRunes is the longest tag name the store accepts.
const MaxTagRunes = 50

// NormalizeTagNames lowercases and trims names, truncates them to MaxTagRunes
// and drops blanks and duplicates, keeping first-seen order.
func NormalizeTagNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if r := []rune(n); len(r) > MaxTagRunes {
			n = strings.TrimSpace(string(r[:MaxTagRunes]))
		}
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

func scanTags(rows *sql.Rows) ([]Tag, error) {
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Name); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListTags returns the owner's tags ordered by name.
func (tx *Tx) ListTags(ctx context.Context, ownerID int64) ([]Tag, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT id, owner_id, name FROM tags WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	tags, err := scanTags(rows)
	if err != nil {
		return nil, fmt.Errorf("store: list tags: %w", err)
	}
	return tags, nil
}

// NoteTags returns the tags attached to noteID ordered by name.
func (tx *Tx) NoteTags(ctx context.Context, noteID int64) ([]Tag, error) {
	rows, err := tx.q.QueryContext(ctx, `
		SELECT t.id, t.owner_id, t.name
		FROM tags t JOIN note_tags nt ON nt.tag_id = t.id
		WHERE nt.note_id = ?
		ORDER BY t.name
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("store: note tags: %w", err)
	}
	tags, err := scanTags(rows)
	if err != nil {
		return nil, fmt.Errorf("store: note tags: %w", err)
	}
	return tags, nil
}

// OwnerNoteTags returns the tag names of every owner note, keyed by note id.
func (tx *Tx) OwnerNoteTags(ctx context.Context, ownerID int64) (map[int64][]string, error) {
	rows, err := tx.q.QueryContext(ctx, `
		SELECT nt.note_id, t.name
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		JOIN notes n ON n.id = nt.note_id
		WHERE n.owner_id = ?
		ORDER BY nt.note_id, t.name
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: owner note tags: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("store: owner note tags: %w", err)
		}
		out[id] = append(out[id], name)
	}
	return out, rows.Err()
}

// ReplaceNoteTags sets the note's tag associations to exactly tagIDs.
func (tx *Tx) ReplaceNoteTags(ctx context.Context, noteID int64, tagIDs []int64) error {
	if _, err := tx.q.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("store: clear note tags: %w", err)
	}
	for _, id := range tagIDs {
		if _, err := tx.q.ExecContext(ctx, `INSERT OR IGNORE INTO note_tags (note_id, tag_id) VALUES (?, ?)`, noteID, id); err != nil {
			return fmt.Errorf("store: attach tag %d: %w", id, err)
		}
	}
	return nil
}

// ProposeTags resolves names to the owner's existing tags only. Names with no
// matching tag are dropped; no tag is ever created.
func (tx *Tx) ProposeTags(ctx context.Context, ownerID int64, names []string) ([]Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	args := append([]any{ownerID}, stringArgs(names)...)
	rows, err := tx.q.QueryContext(ctx, `SELECT id, owner_id, name FROM tags WHERE owner_id = ? AND name IN (`+placeholders(len(names))+`) ORDER BY name`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: propose tags: %w", err)
	}
	tags, err := scanTags(rows)
	if err != nil {
		return nil, fmt.Errorf("store: propose tags: %w", err)
	}
	return tags, nil
}

// FindOrCreateTags resolves names to the owner's tags, creating missing ones.
// The result follows the order of names.
func (tx *Tx) FindOrCreateTags(ctx context.Context, ownerID int64, names []string) ([]Tag, error) {
	out := make([]Tag, 0, len(names))
	for _, name := range names {
		_, err := tx.q.ExecContext(ctx, `INSERT INTO tags (owner_id, name) VALUES (?, ?) ON CONFLICT(owner_id, name) DO NOTHING`, ownerID, name)
		if err != nil {
			return nil, fmt.Errorf("store: create tag %q: %w", name, err)
		}
		t := Tag{OwnerID: ownerID, Name: name}
		if err := tx.q.QueryRowContext(ctx, `SELECT id FROM tags WHERE owner_id = ? AND name = ?`, ownerID, name).Scan(&t.ID); err != nil {
			return nil, fmt.Errorf("store: find tag %q: %w", name, err)
		}
		out = append(out, t)
	}
	return out, nil
}
