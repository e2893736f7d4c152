package noteservice

import (
	"context"

	"github.com/starford/zettel/internal/store"
)

func (s *Service) ListTypes(ctx context.Context) ([]store.CaptureType, error) {
	types, err := s.db.Reader().ListTypes(ctx)
	return nonNilSlice(types), err
}

func (s *Service) ListStatuses(ctx context.Context) ([]store.CaptureStatus, error) {
	statuses, err := s.db.Reader().ListStatuses(ctx)
	return nonNilSlice(statuses), err
}

// ListTags returns the owner's tags.
func (s *Service) ListTags(ctx context.Context, owner int64) ([]store.Tag, error) {
	tags, err := s.db.Reader().ListTags(ctx, owner)
	return nonNilSlice(tags), err
}
