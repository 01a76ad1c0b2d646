package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("job not found")

// ExtractionJob is one product URL submitted for background extraction.
type ExtractionJob struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Status      string          `json:"status"`
	CheckImages bool            `json:"check_images"`
	Attempts    int             `json:"attempts"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type JobStats struct {
	TotalJobs     int     `json:"total_jobs"`
	PendingJobs   int     `json:"pending_jobs"`
	RunningJobs   int     `json:"running_jobs"`
	CompletedJobs int     `json:"completed_jobs"`
	FailedJobs    int     `json:"failed_jobs"`
	SuccessRate   float64 `json:"success_rate"`
}

// JobRepository persists extraction jobs. Terminal state changes are
// written together with their outbox event.
type JobRepository struct {
	db     *DB
	outbox *OutboxRepository
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db, outbox: NewOutboxRepository(db)}
}

const jobColumns = `id, url, status, check_images, attempts, result, error,
	created_at, started_at, completed_at`

func parseJobID(id string) (uuid.UUID, error) {
	jobID, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return jobID, nil
}

func scanJob(row pgx.Row) (*ExtractionJob, error) {
	job := &ExtractionJob{}
	var id uuid.UUID
	err := row.Scan(&id, &job.URL, &job.Status, &job.CheckImages, &job.Attempts,
		&job.Result, &job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	job.ID = id.String()
	return job, nil
}

// CreateJobs inserts one pending job per URL in a single transaction.
func (r *JobRepository) CreateJobs(ctx context.Context, urls []string, checkImages bool) ([]*ExtractionJob, error) {
	jobs := make([]*ExtractionJob, 0, len(urls))

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		for _, u := range urls {
			id := uuid.New()
			job := &ExtractionJob{
				ID:          id.String(),
				URL:         u,
				Status:      JobStatusPending,
				CheckImages: checkImages,
				CreatedAt:   time.Now(),
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO extraction_jobs (id, url, status, check_images, created_at)
				VALUES ($1, $2, $3, $4, $5)`,
				id, job.URL, job.Status, job.CheckImages, job.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to create job for %s: %w", u, err)
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *JobRepository) GetJob(ctx context.Context, id string) (*ExtractionJob, error) {
	jobID, err := parseJobID(id)
	if err != nil {
		return nil, err
	}

	job, err := scanJob(r.db.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM extraction_jobs WHERE id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListJobs(ctx context.Context, status string, limit, offset int) ([]*ExtractionJob, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM extraction_jobs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*ExtractionJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return jobs, nil
}

// ClaimNext marks the oldest pending job as running and returns it. It
// returns nil without error when nothing is pending. Concurrent workers
// never claim the same row.
func (r *JobRepository) ClaimNext(ctx context.Context) (*ExtractionJob, error) {
	var job *ExtractionJob

	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		j, err := scanJob(tx.QueryRow(ctx, `
			SELECT `+jobColumns+`
			FROM extraction_jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, JobStatusPending))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to select pending job: %w", err)
		}

		now := time.Now()
		_, err = tx.Exec(ctx, `
			UPDATE extraction_jobs
			SET status = $1, started_at = $2, attempts = attempts + 1
			WHERE id = $3`, JobStatusRunning, now, uuid.MustParse(j.ID))
		if err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}

		j.Status = JobStatusRunning
		j.StartedAt = &now
		j.Attempts++
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete stores the result and its outbox event atomically.
func (r *JobRepository) Complete(ctx context.Context, id string, result json.RawMessage, event *OutboxEvent) error {
	return r.finish(ctx, id, JobStatusCompleted, result, nil, event)
}

// Fail records the failure and its outbox event atomically. result may be
// nil when nothing was extracted.
func (r *JobRepository) Fail(ctx context.Context, id string, result json.RawMessage, cause string, event *OutboxEvent) error {
	return r.finish(ctx, id, JobStatusFailed, result, &cause, event)
}

func (r *JobRepository) finish(ctx context.Context, id, status string, result json.RawMessage, cause *string, event *OutboxEvent) error {
	jobID, err := parseJobID(id)
	if err != nil {
		return err
	}

	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE extraction_jobs
			SET status = $1, result = $2, error = $3, completed_at = $4
			WHERE id = $5`, status, result, cause, time.Now(), jobID)
		if err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}

		if event != nil {
			if err := r.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResetStale returns jobs stuck in running since before cutoff to pending.
func (r *JobRepository) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE extraction_jobs
		SET status = $1, started_at = NULL
		WHERE status = $2 AND started_at < $3`,
		JobStatusPending, JobStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepository) Stats(ctx context.Context) (*JobStats, error) {
	stats := &JobStats{}

	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'running' THEN 1 END),
			COUNT(CASE WHEN status = 'completed' THEN 1 END),
			COUNT(CASE WHEN status = 'failed' THEN 1 END)
		FROM extraction_jobs`).Scan(
		&stats.TotalJobs, &stats.PendingJobs, &stats.RunningJobs,
		&stats.CompletedJobs, &stats.FailedJobs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	stats.SuccessRate = SuccessRate(stats.CompletedJobs, stats.FailedJobs)
	return stats, nil
}

// SuccessRate is the completed share of finished jobs, in percent.
func SuccessRate(completed, failed int) float64 {
	finished := completed + failed
	if finished == 0 {
		return 0
	}
	return float64(completed) / float64(finished) * 100
}
