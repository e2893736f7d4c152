// Package enrich backfills capture metadata (title, tags, capture type) from
// the classifier, off the request path, with bounded retries.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/zettel/internal/checksum"
	"github.com/starford/zettel/internal/classifier"
	"github.com/starford/zettel/internal/store"
)

// Request names the metadata fields a capture is missing.
type Request struct {
	NoteID    int64
	WantTitle bool
	WantTags  bool
	WantType  bool
}

// Empty reports whether nothing was requested.
func (r Request) Empty() bool {
	return !r.WantTitle && !r.WantTags && !r.WantType
}

// Options tunes the worker pool and the retry policy.
type Options struct {
	Workers       int
	QueueSize     int
	MaxAttempts   int
	Backoff       time.Duration
	SweepInterval time.Duration
	// SkipIfEdited completes a job as a no-op when the capture content changed
	// after the job was enqueued.
	SkipIfEdited bool
}

// DefaultOptions returns three attempts ten seconds apart on two workers.
func DefaultOptions() Options {
	return Options{
		Workers:       2,
		QueueSize:     256,
		MaxAttempts:   3,
		Backoff:       10 * time.Second,
		SweepInterval: time.Minute,
	}
}

// Runner owns the job queue, its workers and the merge of classifier output.
type Runner struct {
	db     *store.DB
	gen    classifier.MetadataGenerator
	logger *slog.Logger
	opts   Options
	queue  chan string

	onEnriched func(n *store.Note, updated []string)
}

// Option configures a Runner.
type Option func(*Runner)

// WithOnEnriched registers a callback invoked after a job changed a capture.
func WithOnEnriched(fn func(n *store.Note, updated []string)) Option {
	return func(r *Runner) { r.onEnriched = fn }
}

// New returns a Runner. Zero option values fall back to DefaultOptions.
func New(db *store.DB, gen classifier.MetadataGenerator, logger *slog.Logger, opts Options, options ...Option) *Runner {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = def.Backoff
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	r := &Runner{
		db:     db,
		gen:    gen,
		logger: logger.With(slog.String("component", "enrich")),
		opts:   opts,
		queue:  make(chan string, opts.QueueSize),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Enqueue records a queued job for req and hands it to the workers. It never
// waits for a worker: when the queue is full the periodic sweep picks the job
// up later.
func (r *Runner) Enqueue(ctx context.Context, req Request) (*store.Job, error) {
	job := &store.Job{
		ID:        uuid.NewString(),
		NoteID:    req.NoteID,
		WantTitle: req.WantTitle,
		WantTags:  req.WantTags,
		WantType:  req.WantType,
		State:     store.JobQueued,
	}
	err := r.db.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.GetNoteByID(ctx, req.NoteID)
		if err != nil {
			return err
		}
		job.ContentChecksum = checksum.String(n.Content)
		return tx.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, fmt.Errorf("enrich: enqueue: %w", err)
	}

	select {
	case r.queue <- job.ID:
	default:
		r.logger.Warn("enrichment queue full, deferring job to sweep",
			slog.String("job_id", job.ID), slog.Int64("note_id", job.NoteID))
	}
	return job, nil
}

// Job returns the persisted job record.
func (r *Runner) Job(ctx context.Context, id string) (*store.Job, error) {
	return r.db.Reader().GetJob(ctx, id)
}

// Run re-queues jobs interrupted by a previous shutdown, then serves the queue
// until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	n, err := r.db.Reader().ResetInterruptedJobs(ctx)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	if n > 0 {
		r.logger.Info("re-queued interrupted enrichment jobs", slog.Int64("count", n))
	}
	return r.serve(ctx)
}

// persist writes the job even when ctx is already cancelled, so shutdown
// leaves an accurate record behind.
func (r *Runner) persist(ctx context.Context, job *store.Job) {
	if err := r.db.Reader().UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		r.logger.Error("persist enrichment job", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

func isCancel(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
