// Package linkgraph keeps the persisted outgoing edges of a note equal to the
// set of notes its content references.
package linkgraph

import (
	"context"
	"fmt"
	"slices"

	"github.com/starford/zettel/internal/parser"
	"github.com/starford/zettel/internal/slug"
	"github.com/starford/zettel/internal/store"
)

// Store is the subset of store.Tx the synchronizer needs.
type Store interface {
	FindByTitlesOrSlugs(ctx context.Context, ownerID int64, titles, slugs []string) ([]int64, error)
	OutgoingLinks(ctx context.Context, noteID int64) ([]store.Link, error)
	InsertLinks(ctx context.Context, sourceID int64, targetIDs []int64) error
	DeleteLinks(ctx context.Context, sourceID int64, targetIDs []int64) error
}

var _ Store = (*store.Tx)(nil)

// Delta reports the targets whose edges a Sync inserted or deleted.
type Delta struct {
	Added   []int64
	Removed []int64
}

// Empty reports whether the sync changed nothing.
func (d Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Resolve returns the ids of the owner's notes referenced by content, matched
// by exact title or by the slug of the reference text. excludeID is never
// part of the result.
func Resolve(ctx context.Context, s Store, ownerID, excludeID int64, content string) ([]int64, error) {
	titles := parser.ParseReferences(content)
	if len(titles) == 0 {
		return nil, nil
	}
	slugs := make([]string, 0, len(titles))
	for _, t := range titles {
		sl := slug.Make(t)
		if !slices.Contains(slugs, sl) {
			slugs = append(slugs, sl)
		}
	}
	ids, err := s.FindByTitlesOrSlugs(ctx, ownerID, titles, slugs)
	if err != nil {
		return nil, fmt.Errorf("linkgraph: resolve: %w", err)
	}
	return slices.DeleteFunc(ids, func(id int64) bool { return id == excludeID }), nil
}

// Sync reconciles the outgoing edges of n with its content. Edges that stay
// referenced are left in place; missing ones are inserted and stale ones
// deleted. Call it inside the transaction that persisted n.
func Sync(ctx context.Context, s Store, n *store.Note) (Delta, error) {
	want, err := Resolve(ctx, s, n.OwnerID, n.ID, n.Content)
	if err != nil {
		return Delta{}, err
	}
	current, err := s.OutgoingLinks(ctx, n.ID)
	if err != nil {
		return Delta{}, fmt.Errorf("linkgraph: sync: %w", err)
	}

	have := make(map[int64]struct{}, len(current))
	for _, l := range current {
		have[l.TargetID] = struct{}{}
	}
	wanted := make(map[int64]struct{}, len(want))
	var d Delta
	for _, id := range want {
		wanted[id] = struct{}{}
		if _, ok := have[id]; !ok {
			d.Added = append(d.Added, id)
		}
	}
	for _, l := range current {
		if _, ok := wanted[l.TargetID]; !ok {
			d.Removed = append(d.Removed, l.TargetID)
		}
	}

	if err := s.DeleteLinks(ctx, n.ID, d.Removed); err != nil {
		return Delta{}, fmt.Errorf("linkgraph: sync: %w", err)
	}
	if err := s.InsertLinks(ctx, n.ID, d.Added); err != nil {
		return Delta{}, fmt.Errorf("linkgraph: sync: %w", err)
	}
	return d, nil
}
