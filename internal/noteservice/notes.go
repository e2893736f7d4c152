package noteservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/starford/zettel/internal/apperr"
	"github.com/starford/zettel/internal/checksum"
	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/enrich"
	"github.com/starford/zettel/internal/linkgraph"
	"github.com/starford/zettel/internal/parser"
	"github.com/starford/zettel/internal/slug"
	"github.com/starford/zettel/internal/sse"
	"github.com/starford/zettel/internal/store"
)

// CreateInput carries a new capture. Empty Title and Tags are filled in by
// enrichment.
type CreateInput struct {
	Content   string
	Title     string
	Tags      []string
	TypeID    *int64
	StatusID  *int64
	ProjectID *int64
	GraphX    *float64
	GraphY    *float64
}

// OptionalID distinguishes "leave unchanged" (Set false) from "set to Value",
// where a nil Value clears the reference.
type OptionalID struct {
	Set   bool
	Value *int64
}

// UpdateInput carries an edit. Nil pointers and unset OptionalIDs leave the
// field unchanged. An empty Title re-derives it from the content; a nil Tags
// keeps the current set while a non-nil one replaces it. A non-empty IfMatch
// must equal the checksum of the stored content.
type UpdateInput struct {
	Content   *string
	Title     *string
	Tags      []string
	TypeID    OptionalID
	StatusID  OptionalID
	ProjectID OptionalID
	IfMatch   string
}

// CreateNote persists a capture, derives its links and schedules enrichment
// for whatever metadata the caller left out.
func (s *Service) CreateNote(ctx context.Context, owner int64, in CreateInput) (*NoteDetail, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, apperr.Validation("content is required")
	}
	n := &store.Note{
		OwnerID:  owner,
		Content:  in.Content,
		Title:    strings.TrimSpace(in.Title),
		TypeID:   in.TypeID,
		StatusID: in.StatusID,
	}
	tagNames := store.NormalizeTagNames(in.Tags)

	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := checkCatalogRefs(ctx, tx, n.TypeID, n.StatusID); err != nil {
			return err
		}
		if in.ProjectID != nil {
			pid, err := ownProject(ctx, tx, owner, *in.ProjectID)
			if err != nil {
				return err
			}
			n.ProjectID = pid
		}
		if n.StatusID == nil {
			if st, err := tx.StatusByName(ctx, store.StatusFleeting); err == nil {
				n.StatusID = &st.ID
			}
		}
		if in.GraphX != nil && in.GraphY != nil {
			n.GraphX, n.GraphY = in.GraphX, in.GraphY
		} else {
			x, y, err := tx.NextGraphPosition(ctx, owner)
			if err != nil {
				return err
			}
			n.GraphX, n.GraphY = &x, &y
		}
		if _, err := s.save(ctx, tx, n); err != nil {
			return err
		}
		return setTags(ctx, tx, n, tagNames)
	})
	if err != nil {
		return nil, err
	}

	if n.ProjectID == nil {
		s.suggestProject(ctx, n)
	}

	req := enrich.Request{
		NoteID:    n.ID,
		WantTitle: strings.TrimSpace(in.Title) == "",
		WantTags:  len(tagNames) == 0,
		WantType:  in.TypeID == nil,
	}
	if req.WantTitle || req.WantTags {
		s.enqueue(ctx, req)
	}

	s.publish(owner, sse.KindCreated, n.ID)
	return s.GetNote(ctx, owner, n.ID)
}

// UpdateNote applies an edit through the same pipeline as creation.
func (s *Service) UpdateNote(ctx context.Context, owner, id int64, in UpdateInput) (*NoteDetail, error) {
	if in.Content != nil && strings.TrimSpace(*in.Content) == "" {
		return nil, apperr.Validation("content is required")
	}
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.GetNote(ctx, owner, id)
		if err != nil {
			return err
		}
		if !checksum.Matches(n.Content, in.IfMatch) {
			return apperr.ErrConflict
		}
		if in.Content != nil {
			n.Content = *in.Content
		}
		if in.Title != nil {
			n.Title = strings.TrimSpace(*in.Title)
		}
		if in.TypeID.Set {
			n.TypeID = in.TypeID.Value
		}
		if in.StatusID.Set {
			n.StatusID = in.StatusID.Value
		}
		if err := checkCatalogRefs(ctx, tx, n.TypeID, n.StatusID); err != nil {
			return err
		}
		if in.ProjectID.Set {
			n.ProjectID = nil
			if in.ProjectID.Value != nil {
				if n.ProjectID, err = ownProject(ctx, tx, owner, *in.ProjectID.Value); err != nil {
					return err
				}
			}
		}
		if _, err := s.save(ctx, tx, n); err != nil {
			return err
		}
		if in.Tags != nil {
			return setTags(ctx, tx, n, store.NormalizeTagNames(in.Tags))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(owner, sse.KindUpdated, id)
	return s.GetNote(ctx, owner, id)
}

// DeleteNote removes a capture; its edges in both directions go with it.
func (s *Service) DeleteNote(ctx context.Context, owner, id int64) error {
	if err := s.db.WithTx(ctx, func(tx *store.Tx) error { return tx.DeleteNote(ctx, owner, id) }); err != nil {
		return err
	}
	s.publish(owner, sse.KindDeleted, id)
	return nil
}

// GetNote returns the owner's capture with tags and links.
func (s *Service) GetNote(ctx context.Context, owner, id int64) (*NoteDetail, error) {
	r := s.db.Reader()
	n, err := r.GetNote(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	tags, err := r.NoteTags(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := r.OutgoingLinks(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := r.IncomingLinks(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(out)+len(in))
	for _, l := range out {
		ids = append(ids, l.TargetID)
	}
	for _, l := range in {
		ids = append(ids, l.SourceID)
	}
	peers, err := r.NotesByIDs(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Note, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}

	d := &NoteDetail{Note: *n, Checksum: checksum.String(n.Content), Tags: []string{}}
	for _, t := range tags {
		d.Tags = append(d.Tags, t.Name)
	}
	d.LinksTo = linkedNotes(out, byID, func(l store.Link) int64 { return l.TargetID })
	d.LinkedFrom = linkedNotes(in, byID, func(l store.Link) int64 { return l.SourceID })
	return d, nil
}

// ListNotes returns every capture of the owner, newest first, with tags and links.
func (s *Service) ListNotes(ctx context.Context, owner int64) ([]NoteDetail, error) {
	r := s.db.Reader()
	notes, err := r.ListNotes(ctx, owner)
	if err != nil {
		return nil, err
	}
	tags, err := r.OwnerNoteTags(ctx, owner)
	if err != nil {
		return nil, err
	}
	links, err := r.OwnerLinks(ctx, owner)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]store.Note, len(notes))
	for _, n := range notes {
		byID[n.ID] = n
	}
	outgoing := make(map[int64][]store.Link)
	incoming := make(map[int64][]store.Link)
	for _, l := range links {
		outgoing[l.SourceID] = append(outgoing[l.SourceID], l)
		incoming[l.TargetID] = append(incoming[l.TargetID], l)
	}

	items := make([]NoteDetail, len(notes))
	for i, n := range notes {
		items[i] = NoteDetail{
			Note:       n,
			Checksum:   checksum.String(n.Content),
			Tags:       nonNilSlice(tags[n.ID]),
			LinksTo:    linkedNotes(outgoing[n.ID], byID, func(l store.Link) int64 { return l.TargetID }),
			LinkedFrom: linkedNotes(incoming[n.ID], byID, func(l store.Link) int64 { return l.SourceID }),
		}
	}
	return items, nil
}

// Links returns the captures the note links to.
func (s *Service) Links(ctx context.Context, owner, id int64) ([]LinkedNote, error) {
	d, err := s.GetNote(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return d.LinksTo, nil
}

// Backlinks returns the captures linking to the note.
func (s *Service) Backlinks(ctx context.Context, owner, id int64) ([]LinkedNote, error) {
	d, err := s.GetNote(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return d.LinkedFrom, nil
}

// SetGraphPosition stores the capture's position on the global graph.
func (s *Service) SetGraphPosition(ctx context.Context, owner, id int64, x, y float64) (*store.Note, error) {
	return s.setPosition(ctx, owner, id, func(tx *store.Tx) error { return tx.SetGraphPosition(ctx, owner, id, x, y) })
}

// SetProjectPosition stores the capture's position on its project graph.
func (s *Service) SetProjectPosition(ctx context.Context, owner, id int64, x, y float64) (*store.Note, error) {
	return s.setPosition(ctx, owner, id, func(tx *store.Tx) error { return tx.SetProjectPosition(ctx, owner, id, x, y) })
}

func (s *Service) setPosition(ctx context.Context, owner, id int64, fn func(tx *store.Tx) error) (*store.Note, error) {
	var n *store.Note
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		var err error
		n, err = tx.GetNote(ctx, owner, id)
		return err
	})
	return n, err
}

// save is the write pipeline shared by every content change: derive title and
// slug, persist, then re-derive outgoing edges in the same transaction.
func (s *Service) save(ctx context.Context, tx *store.Tx, n *store.Note) (linkgraph.Delta, error) {
	if err := deriveTitleAndSlug(ctx, tx, n); err != nil {
		return linkgraph.Delta{}, err
	}
	if err := persist(ctx, tx, n); err != nil {
		return linkgraph.Delta{}, err
	}
	return linkgraph.Sync(ctx, tx, n)
}

// deriveTitleAndSlug falls back to the first content line for an empty title
// and assigns a slug once; later title edits keep the slug stable.
func deriveTitleAndSlug(ctx context.Context, tx *store.Tx, n *store.Note) error {
	if n.Title == "" {
		n.Title = parser.TitleFromContent(n.Content)
	}
	if n.Slug != "" {
		return nil
	}
	sl, err := slug.GenerateExcept(ctx, tx, n.Title, n.ID)
	if err != nil {
		return err
	}
	n.Slug = sl
	return nil
}

func persist(ctx context.Context, tx *store.Tx, n *store.Note) error {
	if n.ID == 0 {
		return tx.CreateNote(ctx, n)
	}
	return tx.UpdateNote(ctx, n)
}

func setTags(ctx context.Context, tx *store.Tx, n *store.Note, names []string) error {
	tags, err := tx.FindOrCreateTags(ctx, n.OwnerID, names)
	if err != nil {
		return err
	}
	ids := make([]int64, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	return tx.ReplaceNoteTags(ctx, n.ID, ids)
}

// ownProject returns id when it is one of the owner's projects and nil otherwise.
func ownProject(ctx context.Context, tx *store.Tx, owner, id int64) (*int64, error) {
	_, err := tx.GetProject(ctx, owner, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func checkCatalogRefs(ctx context.Context, tx *store.Tx, typeID, statusID *int64) error {
	if typeID != nil {
		ok, err := tx.TypeExists(ctx, *typeID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("unknown capture type %d", *typeID)
		}
	}
	if statusID != nil {
		ok, err := tx.StatusExists(ctx, *statusID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Validation("unknown capture status %d", *statusID)
		}
	}
	return nil
}

func (s *Service) enqueue(ctx context.Context, req enrich.Request) {
	if s.enqueuer == nil {
		return
	}
	if _, err := s.enqueuer.Enqueue(ctx, req); err != nil {
		s.logger.Error("enqueue enrichment", slog.Int64("note_id", req.NoteID), slog.Any("error", err))
	}
}

// suggestProject asks the classifier for a project and assigns it when the
// answer is confident enough. Failures only log.
func (s *Service) suggestProject(ctx context.Context, n *store.Note) {
	if s.suggester == nil {
		return
	}
	projects, err := s.db.Reader().ListProjects(ctx, n.OwnerID)
	if err != nil {
		s.logger.Warn("project suggestion: list projects", slog.Any("error", err))
		return
	}
	if len(projects) == 0 {
		return
	}
	candidates := make([]classifier.CandidateProject, len(projects))
	for i, p := range projects {
		candidates[i] = classifier.CandidateProject{ID: p.ID, Name: p.Name, Description: p.Description}
	}
	sug, err := s.suggester.SuggestProject(ctx, n.Content, candidates)
	if err != nil {
		s.logger.Warn("project suggestion failed", slog.Int64("note_id", n.ID), slog.Any("error", err))
		return
	}
	if sug == nil || sug.Confidence < s.minConfidence {
		return
	}
	err = s.db.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetProject(ctx, n.OwnerID, sug.ProjectID); err != nil {
			return err
		}
		return tx.SetNoteProject(ctx, n.ID, &sug.ProjectID)
	})
	if err != nil {
		s.logger.Warn("project suggestion: assign", slog.Int64("note_id", n.ID), slog.Any("error", err))
		return
	}
	s.logger.Info("project suggested", slog.Int64("note_id", n.ID),
		slog.Int64("project_id", sug.ProjectID), slog.Int("confidence", sug.Confidence))
}

func linkedNotes(links []store.Link, byID map[int64]store.Note, peer func(store.Link) int64) []LinkedNote {
	out := make([]LinkedNote, 0, len(links))
	for _, l := range links {
		p, ok := byID[peer(l)]
		if !ok {
			continue
		}
		out = append(out, LinkedNote{LinkID: l.ID, ID: p.ID, Title: p.Title, Slug: p.Slug, CreatedAt: l.CreatedAt})
	}
	return out
}
