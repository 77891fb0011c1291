package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"mentionscan/internal/ports"
)

const jobWriteTimeout = 5 * time.Second

// ClaimNext takes the oldest claimable job with SKIP LOCKED so concurrent
// workers never share one. Running jobs whose lease expired are claimable
// again; their run resumes from its persisted artifacts.
func (db *DB) ClaimNext(ctx context.Context) (job ports.ScanJob, found bool, err error) {
	err = pgx.BeginTxFunc(ctx, db.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            SELECT id::text, scan_run_id::text FROM scan_jobs
            WHERE status = 'queued'
               OR (status = 'running' AND started_at < now() - make_interval(secs => $1))
            ORDER BY queued_at
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        `, ports.JobLease.Seconds()).Scan(&job.ID, &job.ScanRunID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
            UPDATE scan_jobs SET status = 'running', started_at = now(), attempts = attempts + 1
            WHERE id = $1
        `, job.ID)
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.ScanJob{}, false, nil
	}
	if err != nil {
		return ports.ScanJob{}, false, err
	}
	return job, true, nil
}

func (db *DB) setJob(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, jobWriteTimeout)
	defer cancel()
	_, err := db.Pool.Exec(ctx, query, args...)
	return err
}

func (db *DB) MarkCompleted(ctx context.Context, jobID string) error {
	return db.setJob(ctx, `UPDATE scan_jobs SET status = 'completed', finished_at = now() WHERE id = $1`, jobID)
}

func (db *DB) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return db.setJob(ctx, `UPDATE scan_jobs SET status = 'failed', reason = $2, finished_at = now() WHERE id = $1`, jobID, reason)
}

func (db *DB) Requeue(ctx context.Context, jobID string) error {
	return db.setJob(ctx, `UPDATE scan_jobs SET status = 'queued', started_at = NULL WHERE id = $1`, jobID)
}

// StartJobForScan claims the queued job of one run for inline processing.
func (db *DB) StartJobForScan(ctx context.Context, scanRunID string) (string, error) {
	var jobID string
	err := db.Pool.QueryRow(ctx, `
        UPDATE scan_jobs SET status = 'running', started_at = now(), attempts = attempts + 1
        WHERE id = (
            SELECT id FROM scan_jobs
            WHERE scan_run_id = $1 AND status = 'queued'
            FOR UPDATE SKIP LOCKED
            LIMIT 1
        )
        RETURNING id::text
    `, scanRunID).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ports.ErrNotFound
	}
	return jobID, err
}
