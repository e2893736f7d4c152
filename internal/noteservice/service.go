// Package noteservice implements the capture use cases on top of the store:
// the write pipeline, explicit links, projects and graph views.
package noteservice

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/enrich"
	"github.com/starford/zettel/internal/store"
)

// DefaultMinConfidence is the lowest project suggestion confidence accepted.
const DefaultMinConfidence = 80

// Enqueuer schedules metadata enrichment for a capture.
type Enqueuer interface {
	Enqueue(ctx context.Context, req enrich.Request) (*store.Job, error)
}

// Publisher announces capture changes to connected clients.
type Publisher interface {
	PublishNoteEvent(owner int64, kind string, noteID int64)
}

// Service coordinates the store, link graph, enrichment and project suggestion.
type Service struct {
	db            *store.DB
	logger        *slog.Logger
	enqueuer      Enqueuer
	suggester     classifier.ProjectSuggester
	publisher     Publisher
	minConfidence int
}

// Option configures a Service.
type Option func(*Service)

func WithEnqueuer(e Enqueuer) Option {
	return func(s *Service) { s.enqueuer = e }
}

func WithProjectSuggester(p classifier.ProjectSuggester) Option {
	return func(s *Service) { s.suggester = p }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithMinConfidence overrides DefaultMinConfidence.
func WithMinConfidence(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minConfidence = n
		}
	}
}

// New creates a Service. Without an enqueuer, publisher or suggester the
// corresponding side effects are skipped.
func New(db *store.DB, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:            db,
		logger:        logger,
		minConfidence: DefaultMinConfidence,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) publish(owner int64, kind string, noteID int64) {
	if s.publisher != nil {
		s.publisher.PublishNoteEvent(owner, kind, noteID)
	}
}

// NoteDetail is a capture with its tags, checksum and both link directions.
type NoteDetail struct {
	store.Note
	Checksum   string       `json:"checksum"`
	Tags       []string     `json:"tags"`
	LinksTo    []LinkedNote `json:"links_to"`
	LinkedFrom []LinkedNote `json:"linked_from"`
}

// LinkedNote is the far end of an edge.
type LinkedNote struct {
	LinkID    int64     `json:"link_id"`
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
