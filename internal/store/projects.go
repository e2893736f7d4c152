package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/zettel/internal/apperr"
)

const projectColumns = `id, owner_id, name, description, graph_x, graph_y, graph_width, graph_height, created_at, updated_at`

func scanProject(s rowScanner) (*Project, error) {
	var p Project
	err := s.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Description,
		&p.GraphX, &p.GraphY, &p.GraphWidth, &p.GraphHeight, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns the owner's projects ordered by name.
func (tx *Tx) ListProjects(ctx context.Context, ownerID int64) ([]Project, error) {
	rows, err := tx.q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list projects: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProject returns the owner's project with id.
func (tx *Tx) GetProject(ctx context.Context, ownerID, id int64) (*Project, error) {
	row := tx.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ? AND owner_id = ?`, id, ownerID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project")
	}
	if err != nil {
		return nil, fmt.Errorf("store: get project: %w", err)
	}
	return p, nil
}

func (tx *Tx) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	res, err := tx.q.ExecContext(ctx, `
		INSERT INTO projects (owner_id, name, description, graph_x, graph_y, graph_width, graph_height, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.OwnerID, p.Name, p.Description, p.GraphX, p.GraphY, p.GraphWidth, p.GraphHeight, now, now)
	if err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

// UpdateProject persists name and description.
func (tx *Tx) UpdateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	res, err := tx.q.ExecContext(ctx, `UPDATE projects SET name = ?, description = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		p.Name, p.Description, now, p.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update project: %w", err)
	}
	if err := expectRow(res, "project"); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// UpdateProjectLayout persists the project's rectangle on the global graph.
func (tx *Tx) UpdateProjectLayout(ctx context.Context, p *Project) error {
	res, err := tx.q.ExecContext(ctx, `
		UPDATE projects SET graph_x = ?, graph_y = ?, graph_width = ?, graph_height = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`, p.GraphX, p.GraphY, p.GraphWidth, p.GraphHeight, time.Now().UTC(), p.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("store: update project layout: %w", err)
	}
	return expectRow(res, "project")
}

// DeleteProject removes the owner's project and detaches its notes.
func (tx *Tx) DeleteProject(ctx context.Context, ownerID, id int64) error {
	if _, err := tx.q.ExecContext(ctx, `UPDATE notes SET project_id = NULL WHERE project_id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("store: detach project notes: %w", err)
	}
	res, err := tx.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("store: delete project: %w", err)
	}
	return expectRow(res, "project")
}
