package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/zettel/internal/apperr"
)

const noteColumns = `id, owner_id, content, title, slug, type_id, status_id, project_id,
	graph_x, graph_y, project_x, project_y, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*Note, error) {
	var n Note
	err := s.Scan(&n.ID, &n.OwnerID, &n.Content, &n.Title, &n.Slug,
		&n.TypeID, &n.StatusID, &n.ProjectID,
		&n.GraphX, &n.GraphY, &n.ProjectX, &n.ProjectY,
		&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()
	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// CreateNote inserts n and fills in its ID and timestamps.
func (tx *Tx) CreateNote(ctx context.Context, n *Note) error {
	now := time.Now().UTC()
	res, err := tx.q.ExecContext(ctx, `
		INSERT INTO notes (owner_id, content, title, slug, type_id, status_id, project_id,
			graph_x, graph_y, project_x, project_y, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.OwnerID, n.Content, n.Title, n.Slug, n.TypeID, n.StatusID, n.ProjectID,
		n.GraphX, n.GraphY, n.ProjectX, n.ProjectY, now, now)
	if err != nil {
		return fmt.Errorf("store: create note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: create note: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	n.UpdatedAt = now
	return nil
}

// UpdateNote persists the editable fields of n. Positions are updated through
// SetGraphPosition and SetProjectPosition.
func (tx *Tx) UpdateNote(ctx context.Context, n *Note) error {
	now := time.Now().UTC()
	res, err := tx.q.ExecContext(ctx, `
		UPDATE notes
		SET content = ?, title = ?, slug = ?, type_id = ?, status_id = ?, project_id = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, n.Content, n.Title, n.Slug, n.TypeID, n.StatusID, n.ProjectID, now, n.ID, n.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update note: %w", err)
	}
	if err := expectRow(res, "note"); err != nil {
		return err
	}
	n.UpdatedAt = now
	return nil
}

// GetNote returns the owner's note with id.
func (tx *Tx) GetNote(ctx context.Context, ownerID, id int64) (*Note, error) {
	row := tx.q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	return noteOrNotFound(scanNote(row))
}

// GetNoteByID returns the note with id regardless of owner.
func (tx *Tx) GetNoteByID(ctx context.Context, id int64) (*Note, error) {
	row := tx.q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	return noteOrNotFound(scanNote(row))
}

func noteOrNotFound(n *Note, err error) (*Note, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("note")
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns the owner's notes, newest first.
func (tx *Tx) ListNotes(ctx context.Context, ownerID int64) ([]Note, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	return notes, nil
}

// NotesByIDs returns the owner's notes among ids, ordered by id.
func (tx *Tx) NotesByIDs(ctx context.Context, ownerID int64, ids []int64) ([]Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := append([]any{ownerID}, int64Args(ids)...)
	rows, err := tx.q.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes
		WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("store: notes by ids: %w", err)
	}
	notes, err := scanNotes(rows)
	if err != nil {
		return nil, fmt.Errorf("store: notes by ids: %w", err)
	}
	return notes, nil
}

// DeleteNote removes the owner's note. Links and tag associations cascade.
func (tx *Tx) DeleteNote(ctx context.Context, ownerID, id int64) error {
	res, err := tx.q.ExecContext(ctx, `DELETE FROM notes WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("store: delete note: %w", err)
	}
	return expectRow(res, "note")
}

// FindByTitlesOrSlugs returns the ids of the owner's notes whose title is in
// titles or whose slug is in slugs.
func (tx *Tx) FindByTitlesOrSlugs(ctx context.Context, ownerID int64, titles, slugs []string) ([]int64, error) {
	if len(titles) == 0 && len(slugs) == 0 {
		return nil, nil
	}
	query := `SELECT id FROM notes WHERE owner_id = ? AND (0`
	args := []any{ownerID}
	if len(titles) > 0 {
		query += ` OR title IN (` + placeholders(len(titles)) + `)`
		args = append(args, stringArgs(titles)...)
	}
	if len(slugs) > 0 {
		query += ` OR slug IN (` + placeholders(len(slugs)) + `)`
		args = append(args, stringArgs(slugs)...)
	}
	query += `) ORDER BY id`
	rows, err := tx.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find by titles or slugs: %w", err)
	}
	ids, err := scanIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("store: find by titles or slugs: %w", err)
	}
	return ids, nil
}

// SlugExists reports whether slug is taken by any note other than exceptID.
func (tx *Tx) SlugExists(ctx context.Context, slug string, exceptID int64) (bool, error) {
	var n int
	err := tx.q.QueryRowContext(ctx, `SELECT count(*) FROM notes WHERE slug = ? AND id <> ?`, slug, exceptID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: slug exists: %w", err)
	}
	return n > 0, nil
}

// UpdateEnrichedFields writes only the columns set in f.
func (tx *Tx) UpdateEnrichedFields(ctx context.Context, id int64, f EnrichedFields) error {
	if f.Empty() {
		return nil
	}
	set := ""
	var args []any
	add := func(col string, v any) {
		set += col + " = ?, "
		args = append(args, v)
	}
	if f.Title != nil {
		add("title", *f.Title)
	}
	if f.Slug != nil {
		add("slug", *f.Slug)
	}
	if f.TypeID != nil {
		add("type_id", *f.TypeID)
	}
	args = append(args, time.Now().UTC(), id)
	res, err := tx.q.ExecContext(ctx, `UPDATE notes SET `+set+`updated_at = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("store: update enriched fields: %w", err)
	}
	return expectRow(res, "note")
}

// SetGraphPosition stores the note's position on the global graph.
func (tx *Tx) SetGraphPosition(ctx context.Context, ownerID, id int64, x, y float64) error {
	res, err := tx.q.ExecContext(ctx, `UPDATE notes SET graph_x = ?, graph_y = ? WHERE id = ? AND owner_id = ?`, x, y, id, ownerID)
	if err != nil {
		return fmt.Errorf("store: set graph position: %w", err)
	}
	return expectRow(res, "note")
}

// SetProjectPosition stores the note's position on its project graph.
func (tx *Tx) SetProjectPosition(ctx context.Context, ownerID, id int64, x, y float64) error {
	res, err := tx.q.ExecContext(ctx, `UPDATE notes SET project_x = ?, project_y = ? WHERE id = ? AND owner_id = ?`, x, y, id, ownerID)
	if err != nil {
		return fmt.Errorf("store: set project position: %w", err)
	}
	return expectRow(res, "note")
}

// SetNoteProject assigns (or clears, with nil) the note's project.
func (tx *Tx) SetNoteProject(ctx context.Context, id int64, projectID *int64) error {
	res, err := tx.q.ExecContext(ctx, `UPDATE notes SET project_id = ?, updated_at = ? WHERE id = ?`, projectID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: set note project: %w", err)
	}
	return expectRow(res, "note")
}

// NextGraphPosition returns where a new note of the owner should be placed:
// on the bottom row, 200 to the right of its right-most note, or at the
// origin when no note has a position yet.
func (tx *Tx) NextGraphPosition(ctx context.Context, ownerID int64) (x, y float64, err error) {
	var maxX, maxY sql.NullFloat64
	err = tx.q.QueryRowContext(ctx, `
		SELECT max(graph_x), graph_y FROM notes
		WHERE owner_id = ? AND graph_x IS NOT NULL AND graph_y = (
			SELECT max(graph_y) FROM notes WHERE owner_id = ? AND graph_x IS NOT NULL AND graph_y IS NOT NULL
		)
	`, ownerID, ownerID).Scan(&maxX, &maxY)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("store: next graph position: %w", err)
	}
	if !maxX.Valid || !maxY.Valid {
		return 0, 0, nil
	}
	return maxX.Float64 + 200, maxY.Float64, nil
}

func expectRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(what)
	}
	return nil
}
