package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/halc8312/esp/internal/database"
)

// PostgresStore keeps jobs in the scrape_jobs table.
type PostgresStore struct {
	db *database.DB
}

func NewPostgresStore(db *database.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `id::text, owner_id, search_url, max_items, max_scroll, status,
	items_found, items_saved, COALESCE(error_message, ''), created_at, started_at, completed_at`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(
		&job.ID, &job.OwnerID, &job.SearchURL, &job.MaxItems, &job.MaxScroll, &job.Status,
		&job.ItemsFound, &job.ItemsSaved, &job.Error, &job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *PostgresStore) Insert(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO scrape_jobs (id, owner_id, search_url, max_items, max_scroll, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, query,
		job.ID, job.OwnerID, job.SearchURL, job.MaxItems, job.MaxScroll, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return jobs, nil
}

// ClaimNext locks the oldest pending row with SKIP LOCKED so several
// workers never pick the same job.
func (s *PostgresStore) ClaimNext(ctx context.Context, at time.Time) (*Job, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $1, started_at = $2
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = $3
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRow(ctx, query, StatusRunning, at, StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) Finish(ctx context.Context, job *Job) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2, items_found = $3, items_saved = $4,
			error_message = NULLIF($5, ''), completed_at = $6
		WHERE id = $1`

	result, err := s.db.Exec(ctx, query,
		job.ID, job.Status, job.ItemsFound, job.ItemsSaved, job.Error, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE scrape_jobs
		SET status = $1, started_at = NULL
		WHERE status = $2 AND started_at < $3`

	result, err := s.db.Exec(ctx, query, StatusPending, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	return int(result.RowsAffected()), nil
}
