package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/zettel/internal/apperr"
)

// Persisted states of an enrichment job.
const (
	JobQueued            = "queued"
	JobRunning           = "running"
	JobRetrying          = "retrying"
	JobSucceeded         = "succeeded"
	JobFailedPermanently = "failed_permanently"
)

const jobColumns = `id, note_id, want_title, want_tags, want_type, state, attempts, last_error, content_checksum, created_at, updated_at`

func scanJob(s rowScanner) (*Job, error) {
	var j Job
	err := s.Scan(&j.ID, &j.NoteID, &j.WantTitle, &j.WantTags, &j.WantType,
		&j.State, &j.Attempts, &j.LastError, &j.ContentChecksum, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateJob inserts j. The caller assigns the id.
func (tx *Tx) CreateJob(ctx context.Context, j *Job) error {
	now := time.Now().UTC()
	_, err := tx.q.ExecContext(ctx, `INSERT INTO enrichment_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.NoteID, j.WantTitle, j.WantTags, j.WantType, j.State, j.Attempts, j.LastError, j.ContentChecksum, now, now)
	if err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	j.CreatedAt, j.UpdatedAt = now, now
	return nil
}

// UpdateJob persists the job's state, attempt count and last error.
func (tx *Tx) UpdateJob(ctx context.Context, j *Job) error {
	now := time.Now().UTC()
	res, err := tx.q.ExecContext(ctx, `UPDATE enrichment_jobs SET state = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		j.State, j.Attempts, j.LastError, now, j.ID)
	if err != nil {
		return fmt.Errorf("store: update job: %w", err)
	}
	if err := expectRow(res, "job"); err != nil {
		return err
	}
	j.UpdatedAt = now
	return nil
}

// GetJob returns the job with id or an ErrNotFound error.
func (tx *Tx) GetJob(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(tx.q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("job")
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return j, nil
}

// ClaimJob moves a queued job to running. It reports false when the job was
// not in the queued state, so only one worker runs a given job.
func (tx *Tx) ClaimJob(ctx context.Context, id string) (bool, error) {
	res, err := tx.q.ExecContext(ctx, `UPDATE enrichment_jobs SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		JobRunning, time.Now().UTC(), id, JobQueued)
	if err != nil {
		return false, fmt.Errorf("store: claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: claim job: %w", err)
	}
	return n > 0, nil
}

// ResetInterruptedJobs puts jobs left running or retrying by a previous
// process back in the queue and returns how many were reset.
func (tx *Tx) ResetInterruptedJobs(ctx context.Context) (int64, error) {
	res, err := tx.q.ExecContext(ctx, `UPDATE enrichment_jobs SET state = ?, updated_at = ? WHERE state IN (?, ?)`,
		JobQueued, time.Now().UTC(), JobRunning, JobRetrying)
	if err != nil {
		return 0, fmt.Errorf("store: reset interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// QueuedJobIDs returns queued jobs last touched before cutoff, oldest first.
func (tx *Tx) QueuedJobIDs(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := tx.q.QueryContext(ctx, `SELECT id FROM enrichment_jobs WHERE state = ? AND updated_at <= ? ORDER BY created_at LIMIT ?`,
		JobQueued, cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("store: queued jobs: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: queued jobs: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
