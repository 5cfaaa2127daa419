package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"encoding/json"
	"time"

	"social_ingest/internal/domain"
)

type ProfileStore interface {
	List(ctx context.Context) ([]domain.Profile, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Profile, error)
	UpdateLastScraped(ctx context.Context, ids []int64, at time.Time) (int64, error)
}

type PostStore interface {
	Upsert(ctx context.Context, post *domain.Post, profileID *int64, scrapedAt time.Time) (domain.UpsertAction, error)
	CountScrapedSince(ctx context.Context, since time.Time) (int, error)
}

type RunStore interface {
	Create(ctx context.Context, run *domain.ScrapeRun) error
	Get(ctx context.Context, runID string) (*domain.ScrapeRun, error)
	Complete(ctx context.Context, runID, status string, newPosts, updatedPosts int, at time.Time) error
}

type Provider interface {
	Configured() bool
	StartRun(ctx context.Context, req domain.RunRequest) (*domain.RunHandle, error)
	RunAndWait(ctx context.Context, req domain.RunRequest) (*domain.RunHandle, error)
	FetchItems(ctx context.Context, datasetID string) ([]json.RawMessage, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.Post, action domain.UpsertAction, profileID *int64) error
	Close() error
}

type RunGuard interface {
	Acquire(ctx context.Context, runID string) (bool, error)
	Release(ctx context.Context, runID string) error
}
