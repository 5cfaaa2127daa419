package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"social_ingest/internal/domain"
	"social_ingest/internal/metrics"
)

var (
	ErrProviderNotConfigured = errors.New("scraping provider is not configured")
	ErrMissingDataset        = errors.New("notification carries no dataset id")
)

// Handshake finishes an asynchronously started provider run: it fetches the
// run's dataset, ingests it and stamps the touched profiles.
type Handshake struct {
	provider  Provider
	profiles  ProfileStore
	runs      RunStore
	txManager TransactionManager
	guard     RunGuard
	pipeline  *Pipeline
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewHandshake builds the completion handler. guard may be nil, in which case
// repeated notifications for one run are processed again; the upserts are
// idempotent so that only costs time.
func NewHandshake(
	provider Provider,
	profiles ProfileStore,
	runs RunStore,
	txManager TransactionManager,
	guard RunGuard,
	pipeline *Pipeline,
	m *metrics.Collector,
	logger *slog.Logger,
) *Handshake {
	return &Handshake{
		provider:  provider,
		profiles:  profiles,
		runs:      runs,
		txManager: txManager,
		guard:     guard,
		pipeline:  pipeline,
		metrics:   m,
		logger:    logger.With("component", "handshake"),
		now:       time.Now,
	}
}

func (h *Handshake) Handle(ctx context.Context, n domain.RunNotification) (_ *domain.WebhookResult, err error) {
	runID, datasetID := n.Resource.ID, n.Resource.DefaultDatasetID
	logger := h.logger.With("run_id", runID)

	if n.EventType != domain.EventRunSucceeded {
		h.metrics.Webhook("ignored")
		logger.Info("ignoring notification", "event_type", n.EventType)
		return &domain.WebhookResult{
			Success: true,
			Skipped: true,
			Reason:  "Not a success event",
			RunID:   runID,
		}, nil
	}

	if datasetID == "" {
		h.metrics.Webhook("invalid")
		return nil, ErrMissingDataset
	}
	if !h.provider.Configured() {
		h.metrics.Webhook("failed")
		return nil, ErrProviderNotConfigured
	}

	if h.guard != nil && runID != "" {
		acquired, guardErr := h.guard.Acquire(ctx, runID)
		switch {
		case guardErr != nil:
			logger.Warn("run guard unavailable, processing without it", "error", guardErr)
		case !acquired:
			h.metrics.Webhook("duplicate")
			logger.Info("run already processed")
			return &domain.WebhookResult{
				Success:   true,
				Skipped:   true,
				Reason:    "Run already processed",
				RunID:     runID,
				DatasetID: datasetID,
			}, nil
		default:
			defer func() {
				if err == nil {
					return
				}
				if relErr := h.guard.Release(context.WithoutCancel(ctx), runID); relErr != nil {
					logger.Error("failed to release run guard", "error", relErr)
				}
			}()
		}
	}

	defer func() {
		if err != nil {
			h.metrics.Webhook("failed")
		}
	}()

	if runID != "" {
		if run, getErr := h.runs.Get(ctx, runID); getErr != nil {
			logger.Warn("failed to load run record", "error", getErr)
		} else if run != nil {
			logger = logger.With("group", run.Label, "platform", run.Platform)
		}
	}

	logger.Info("processing completed run", "dataset_id", datasetID)

	items, err := h.provider.FetchItems(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset items: %w", err)
	}

	result := &domain.WebhookResult{
		Success:      true,
		RunID:        runID,
		DatasetID:    datasetID,
		ItemsFetched: len(items),
	}

	if len(items) == 0 {
		if _, err := h.complete(ctx, runID, &domain.IngestStats{}); err != nil {
			return nil, err
		}
		h.metrics.Webhook("empty")
		result.Message = "No items in dataset"
		return result, nil
	}

	profiles, err := h.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	stats, err := h.pipeline.Process(ctx, items, profiles)
	if err != nil {
		return nil, fmt.Errorf("process items: %w", err)
	}

	updated, err := h.complete(ctx, runID, stats)
	if err != nil {
		return nil, err
	}

	result.Platform = stats.Platform
	result.NewPosts = stats.New
	result.UpdatedPosts = stats.Updated
	result.ItemsSkipped = stats.Skipped
	result.ProfilesUpdated = int(updated)
	result.Message = fmt.Sprintf("Processed %d items: %d new, %d updated", len(items), stats.New, stats.Updated)

	h.metrics.Webhook("processed")
	logger.Info("run processed",
		"platform", stats.Platform,
		"new", stats.New,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"profiles_updated", updated,
	)

	return result, nil
}

// complete stamps the touched profiles and closes the run record in one
// transaction. Post upserts are already committed at this point.
func (h *Handshake) complete(ctx context.Context, runID string, stats *domain.IngestStats) (int64, error) {
	at := h.now().UTC()
	var updated int64

	err := h.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if len(stats.MatchedProfileIDs) > 0 {
			n, err := h.profiles.UpdateLastScraped(txCtx, stats.MatchedProfileIDs, at)
			if err != nil {
				return fmt.Errorf("update last scraped: %w", err)
			}
			updated = n
		}

		if runID == "" {
			return nil
		}
		if err := h.runs.Complete(txCtx, runID, domain.RunStatusSucceeded, stats.New, stats.Updated, at); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return updated, nil
}
