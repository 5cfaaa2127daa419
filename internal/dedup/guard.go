package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "social_ingest:run:"

// RunGuard makes sure a provider run is processed once even when the
// completion webhook is delivered more than once.
type RunGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRunGuard(client *redis.Client, ttl time.Duration) *RunGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RunGuard{client: client, ttl: ttl}
}

// Acquire claims the run id. It returns false when another delivery already
// holds it.
func (g *RunGuard) Acquire(ctx context.Context, runID string) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+runID, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire run %s: %w", runID, err)
	}
	return ok, nil
}

// Release drops the claim so a retried delivery can process the run again.
func (g *RunGuard) Release(ctx context.Context, runID string) error {
	if err := g.client.Del(ctx, keyPrefix+runID).Err(); err != nil {
		return fmt.Errorf("release run %s: %w", runID, err)
	}
	return nil
}

func (g *RunGuard) Close() error {
	return g.client.Close()
}
