package enrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

func (r *Runner) serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := range r.opts.Workers {
		g.Go(func() error {
			r.work(ctx, i)
			return nil
		})
	}
	g.Go(func() error {
		r.sweep(ctx)
		return nil
	})
	r.logger.Info("enrichment workers started", slog.Int("workers", r.opts.Workers))
	err := g.Wait()
	r.logger.Info("enrichment workers stopped")
	return err
}

func (r *Runner) work(ctx context.Context, worker int) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-r.queue:
			if _, err := r.Process(ctx, id); err != nil && !isCancel(ctx, err) {
				r.logger.Error("enrichment job error",
					slog.Int("worker", worker), slog.String("job_id", id), slog.Any("error", err))
			}
		}
	}
}

// sweep feeds queued jobs that never reached a worker: jobs dropped on a full
// queue and jobs re-queued at start.
func (r *Runner) sweep(ctx context.Context) {
	r.dispatchQueued(ctx, time.Now())
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.dispatchQueued(ctx, time.Now().Add(-r.opts.SweepInterval))
		}
	}
}

func (r *Runner) dispatchQueued(ctx context.Context, cutoff time.Time) {
	ids, err := r.db.Reader().QueuedJobIDs(ctx, cutoff, r.opts.QueueSize)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("sweep queued jobs", slog.Any("error", err))
		}
		return
	}
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		case r.queue <- id:
		}
	}
}
