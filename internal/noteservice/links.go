package noteservice

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/zettel/internal/apperr"
	"github.com/starford/zettel/internal/parser"
	"github.com/starford/zettel/internal/slug"
	"github.com/starford/zettel/internal/sse"
	"github.com/starford/zettel/internal/store"
)

// LinkResult is the outcome of an explicit link request.
type LinkResult struct {
	Link *store.Link
	// Created is false when the edge already existed and nothing changed.
	Created bool
}

// CreateLink makes source reference target. The edge is never inserted
// directly: a marker is appended to the source content when missing and the
// edge follows from the regular write pipeline.
func (s *Service) CreateLink(ctx context.Context, owner, sourceID, targetID int64) (*LinkResult, error) {
	var res LinkResult
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		src, err := tx.GetNote(ctx, owner, sourceID)
		if err != nil {
			return err
		}
		tgt, err := tx.GetNote(ctx, owner, targetID)
		if err != nil {
			return err
		}
		if src.ID == tgt.ID {
			return apperr.Validation("cannot link a capture to itself")
		}

		if res.Link, err = tx.FindLink(ctx, src.ID, tgt.ID); err != nil || res.Link != nil {
			return err
		}

		ref := referenceFor(tgt)
		if !parser.ContainsReference(src.Content, ref) {
			src.Content = parser.AppendReference(src.Content, ref)
		}
		if _, err := s.save(ctx, tx, src); err != nil {
			return err
		}
		if res.Link, err = tx.FindLink(ctx, src.ID, tgt.ID); err != nil {
			return err
		}
		if res.Link == nil {
			return fmt.Errorf("noteservice: reference to %q did not resolve", ref)
		}
		res.Created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if res.Created {
		s.publish(owner, sse.KindUpdated, sourceID)
	}
	return &res, nil
}

// DeleteLink removes every reference in the source content that resolves to
// the link target and re-syncs. It reports whether the edge is gone.
func (s *Service) DeleteLink(ctx context.Context, owner, linkID int64) (bool, error) {
	var removed bool
	var sourceID int64
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		l, err := tx.GetLink(ctx, linkID)
		if err != nil {
			return err
		}
		src, err := tx.GetNote(ctx, owner, l.SourceID)
		if errors.Is(err, apperr.ErrNotFound) {
			return apperr.ErrForbidden
		}
		if err != nil {
			return err
		}
		tgt, err := tx.GetNoteByID(ctx, l.TargetID)
		if err != nil {
			return err
		}
		sourceID = src.ID

		content := parser.RemoveReferences(src.Content, func(title string) bool {
			return title == tgt.Title || slug.Make(title) == tgt.Slug
		})
		if strings.TrimSpace(content) == "" {
			return apperr.Validation("removing the reference would leave the capture empty")
		}
		src.Content = content
		if _, err := s.save(ctx, tx, src); err != nil {
			return err
		}
		still, err := tx.FindLink(ctx, src.ID, tgt.ID)
		if err != nil {
			return err
		}
		removed = still == nil
		return nil
	})
	if err != nil {
		return false, err
	}
	s.publish(owner, sse.KindUpdated, sourceID)
	return removed, nil
}

// referenceFor returns the text to place between the brackets so the marker
// resolves back to n.
func referenceFor(n *store.Note) string {
	if parser.CanReference(n.Title) {
		return n.Title
	}
	return n.Slug
}
