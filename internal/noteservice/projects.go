package noteservice

import (
	"context"
	"strings"

	"github.com/starford/zettel/internal/apperr"
	"github.com/starford/zettel/internal/store"
)

// ProjectInput carries project fields. On update a nil field is left unchanged.
type ProjectInput struct {
	Name        *string
	Description *string
}

// LayoutInput is a project's rectangle on the global graph.
type LayoutInput struct {
	X, Y, Width, Height float64
}

func (s *Service) ListProjects(ctx context.Context, owner int64) ([]store.Project, error) {
	projects, err := s.db.Reader().ListProjects(ctx, owner)
	return nonNilSlice(projects), err
}

func (s *Service) GetProject(ctx context.Context, owner, id int64) (*store.Project, error) {
	return s.db.Reader().GetProject(ctx, owner, id)
}

func (s *Service) CreateProject(ctx context.Context, owner int64, in ProjectInput) (*store.Project, error) {
	p := &store.Project{OwnerID: owner}
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if p.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := s.db.WithTx(ctx, func(tx *store.Tx) error { return tx.CreateProject(ctx, p) }); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProject(ctx context.Context, owner, id int64, in ProjectInput) (*store.Project, error) {
	var p *store.Project
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if p, err = tx.GetProject(ctx, owner, id); err != nil {
			return err
		}
		if in.Name != nil {
			if p.Name = strings.TrimSpace(*in.Name); p.Name == "" {
				return apperr.Validation("name is required")
			}
		}
		if in.Description != nil {
			p.Description = *in.Description
		}
		return tx.UpdateProject(ctx, p)
	})
	return p, err
}

// UpdateProjectLayout stores where the project's captures cluster on the graph.
func (s *Service) UpdateProjectLayout(ctx context.Context, owner, id int64, in LayoutInput) (*store.Project, error) {
	var p *store.Project
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if p, err = tx.GetProject(ctx, owner, id); err != nil {
			return err
		}
		p.GraphX, p.GraphY, p.GraphWidth, p.GraphHeight = &in.X, &in.Y, &in.Width, &in.Height
		return tx.UpdateProjectLayout(ctx, p)
	})
	return p, err
}

// DeleteProject removes the project; its captures stay, unassigned.
func (s *Service) DeleteProject(ctx context.Context, owner, id int64) error {
	return s.db.WithTx(ctx, func(tx *store.Tx) error { return tx.DeleteProject(ctx, owner, id) })
}
