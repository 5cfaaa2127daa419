package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"social_ingest/internal/domain"
)

type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Create(ctx context.Context, run *domain.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (
			run_id, label, platform, max_posts, profile_count, estimated_cost, status, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.RunID,
		run.Label,
		run.Platform,
		run.MaxPosts,
		run.ProfileCount,
		run.EstimatedCost,
		run.Status,
		run.StartedAt,
	)
	return err
}

// Get returns nil without error for runs this service did not start.
func (s *RunStore) Get(ctx context.Context, runID string) (*domain.ScrapeRun, error) {
	var run domain.ScrapeRun
	query := `
		SELECT run_id, label, platform, max_posts, profile_count, estimated_cost,
			status, new_posts, updated_posts, started_at, completed_at
		FROM scrape_runs
		WHERE run_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &run, query, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Complete records the outcome of a run. Unknown run ids are a no-op.
func (s *RunStore) Complete(ctx context.Context, runID, status string, newPosts, updatedPosts int, at time.Time) error {
	query := `
		UPDATE scrape_runs SET
			status = $2,
			new_posts = $3,
			updated_posts = $4,
			completed_at = $5
		WHERE run_id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, runID, status, newPosts, updatedPosts, at)
	return err
}
