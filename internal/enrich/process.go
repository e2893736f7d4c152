package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"github.com/starford/zettel/internal/apperr"
	"github.com/starford/zettel/internal/checksum"
	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/slug"
	"github.com/starford/zettel/internal/store"
)

// minTypeContent is the shortest trimmed content, in runes, for which
// capture types are offered to the classifier.
const minTypeContent = 10

// Process runs job id to a terminal state. A job that is not queued (already
// claimed, finished or unknown to this process) is returned unchanged.
func (r *Runner) Process(ctx context.Context, id string) (*store.Job, error) {
	claimed, err := r.db.Reader().ClaimJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	job, err := r.db.Reader().GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("enrich: %w", err)
	}
	if !claimed {
		return job, nil
	}

	log := r.logger.With(slog.String("job_id", job.ID), slog.Int64("note_id", job.NoteID))
	log.Info("enrichment started",
		slog.Bool("want_title", job.WantTitle), slog.Bool("want_tags", job.WantTags), slog.Bool("want_type", job.WantType))

	if !job.WantTitle && !job.WantTags && !job.WantType {
		log.Warn("enrichment requested no fields, nothing to do")
		job.State = store.JobSucceeded
		r.persist(ctx, job)
		return job, nil
	}

	// Attempts already spent by an interrupted run count against the budget.
	remaining := r.opts.MaxAttempts - job.Attempts
	if remaining <= 0 {
		job.State = store.JobFailedPermanently
		if job.LastError == "" {
			job.LastError = fmt.Sprintf("interrupted after %d attempts", job.Attempts)
		}
		r.persist(ctx, job)
		log.Error("enrichment failed permanently", slog.Int("attempts", job.Attempts), slog.String("error", job.LastError))
		return job, nil
	}
	var updated []string
	operation := func() ([]string, error) {
		job.Attempts++
		job.State = store.JobRunning
		r.persist(ctx, job)
		fields, err := r.attempt(ctx, job, log)
		if err != nil {
			log.Warn("enrichment attempt failed", slog.Int("attempt", job.Attempts), slog.Any("error", err))
		}
		return fields, err
	}
	updated, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.Backoff)),
		backoff.WithMaxTries(uint(remaining)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			job.State = store.JobRetrying
			job.LastError = err.Error()
			r.persist(ctx, job)
			log.Info("enrichment retry scheduled", slog.Duration("in", next))
		}),
	)

	switch {
	case err == nil:
		job.State = store.JobSucceeded
		job.LastError = ""
		r.persist(ctx, job)
		if len(updated) > 0 {
			log.Info("enrichment succeeded", slog.Any("updated", updated), slog.Int("attempts", job.Attempts))
		}
		return job, nil
	case isCancel(ctx, err):
		// Left running or retrying; the next start re-queues it.
		return job, err
	default:
		job.State = store.JobFailedPermanently
		job.LastError = err.Error()
		r.persist(ctx, job)
		log.Error("enrichment failed permanently", slog.Int("attempts", job.Attempts), slog.Any("error", err))
		return job, nil
	}
}

// attempt makes one classifier call and merges the result. It returns the
// names of the fields it changed.
func (r *Runner) attempt(ctx context.Context, job *store.Job, log *slog.Logger) ([]string, error) {
	n, err := r.db.Reader().GetNoteByID(ctx, job.NoteID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Warn("capture deleted before enrichment, skipping")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.opts.SkipIfEdited && !checksum.Matches(n.Content, job.ContentChecksum) {
		log.Warn("capture edited since enqueue, skipping enrichment")
		return nil, nil
	}

	var types []classifier.CandidateType
	if job.WantType && utf8.RuneCountInString(strings.TrimSpace(n.Content)) >= minTypeContent {
		catalog, err := r.db.Reader().ListTypes(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range catalog {
			types = append(types, classifier.CandidateType{ID: t.ID, Name: t.Name, Symbol: t.Symbol, Description: t.Description})
		}
	}

	md, err := r.gen.GenerateMetadata(ctx, n.Content, types)
	if err != nil {
		return nil, err
	}

	var updated []string
	var merged *store.Note
	err = r.db.WithTx(ctx, func(tx *store.Tx) error {
		updated, merged = nil, nil
		cur, err := tx.GetNoteByID(ctx, job.NoteID)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		updated, err = merge(ctx, tx, cur, job, md)
		merged = cur
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("merge metadata: %w", err)
	}
	if len(updated) == 0 {
		log.Warn("classifier proposed nothing applicable")
		return nil, nil
	}
	if r.onEnriched != nil {
		r.onEnriched(merged, updated)
	}
	return updated, nil
}

// merge applies md to n within tx. Only requested fields are touched, and tags
// are only ever attached from the owner's existing set.
func merge(ctx context.Context, tx *store.Tx, n *store.Note, job *store.Job, md *classifier.Metadata) ([]string, error) {
	var fields store.EnrichedFields
	var updated []string

	if job.WantTitle && md.Title != "" {
		title := md.Title
		sl, err := slug.GenerateExcept(ctx, tx, title, n.ID)
		if err != nil {
			return nil, err
		}
		fields.Title, fields.Slug = &title, &sl
		n.Title, n.Slug = title, sl
		updated = append(updated, "title", "slug")
	}
	if job.WantType && md.TypeID != nil {
		id := *md.TypeID
		fields.TypeID = &id
		n.TypeID = &id
		updated = append(updated, "capture_type_id")
	}
	if err := tx.UpdateEnrichedFields(ctx, n.ID, fields); err != nil {
		return nil, err
	}

	if job.WantTags {
		names := store.NormalizeTagNames(md.Tags)
		proposed, err := tx.ProposeTags(ctx, n.OwnerID, names)
		if err != nil {
			return nil, err
		}
		current, err := tx.NoteTags(ctx, n.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(current)+len(proposed))
		for _, t := range current {
			ids = append(ids, t.ID)
		}
		before := len(ids)
		for _, t := range proposed {
			if !slices.Contains(ids, t.ID) {
				ids = append(ids, t.ID)
			}
		}
		if len(ids) > before {
			if err := tx.ReplaceNoteTags(ctx, n.ID, ids); err != nil {
				return nil, err
			}
			updated = append(updated, "tags")
		}
	}
	return updated, nil
}
