package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"social_ingest/internal/config"
	"social_ingest/internal/directory"
	"social_ingest/internal/domain"
	"social_ingest/internal/extract"
	"social_ingest/internal/metrics"
)

// Pipeline runs raw provider items through extraction, profile attribution
// and the upsert, one item at a time. Every upsert commits on its own: a
// failing record is counted and the batch carries on, so a partial batch
// leaves its completed rows in place.
type Pipeline struct {
	posts       PostStore
	publisher   Publisher
	metrics     *metrics.Collector
	logger      *slog.Logger
	allowSingle bool
	now         func() time.Time
}

// NewPipeline builds a pipeline. publisher may be nil to skip post events.
func NewPipeline(
	posts PostStore,
	publisher Publisher,
	m *metrics.Collector,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *Pipeline {
	return &Pipeline{
		posts:       posts,
		publisher:   publisher,
		metrics:     m,
		logger:      logger.With("component", "pipeline"),
		allowSingle: cfg.AllowSingleProfile(),
		now:         time.Now,
	}
}

// Process ingests items against the given profile directory. It only returns
// an error when ctx ends mid-batch; stats then cover the items handled so far.
func (p *Pipeline) Process(ctx context.Context, items []json.RawMessage, profiles []domain.Profile) (*domain.IngestStats, error) {
	startTime := time.Now()
	scrapedAt := p.now().UTC()

	stats := &domain.IngestStats{Fetched: len(items)}
	if len(items) > 0 {
		stats.Platform = extract.Detect(items[0])
	}

	index := directory.NewIndex(profiles)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(startTime)
			p.logger.Warn("ingestion interrupted",
				"processed", i,
				"remaining", len(items)-i,
				"error", err,
			)
			return stats, err
		}

		platform := extract.Detect(item)
		post, err := extract.ExtractAs(item, platform, scrapedAt)
		if err != nil {
			stats.Skipped++
			reason := skipReason(err)
			p.metrics.ItemSkipped(string(platform), reason)
			p.logger.Debug("skipping item", "index", i, "platform", platform, "reason", reason)
			continue
		}

		handle, name := lookupKeys(post)
		match := index.Resolve(handle, name, p.allowSingle)
		p.metrics.Attribution(string(match.Rule))
		if match.Rule == directory.MatchSingleProfile {
			p.logger.Warn("attributed post to the only tracked profile",
				"post_id", post.ID,
				"author", post.AuthorUsername,
				"profile_id", *match.ProfileID,
			)
		}

		action, err := p.posts.Upsert(ctx, post, match.ProfileID, scrapedAt)
		if err != nil {
			stats.Errors++
			p.metrics.RecordError(string(platform), "upsert")
			p.logger.Error("failed to upsert post", "post_id", post.ID, "platform", platform, "error", err)
			continue
		}

		stats.Record(domain.UpsertOutcome{PostID: post.ID, Action: action, ProfileID: match.ProfileID})
		p.metrics.PostUpserted(string(platform), string(action))

		if p.publisher != nil {
			if err := p.publisher.Publish(ctx, post, action, match.ProfileID); err != nil {
				stats.Errors++
				p.metrics.RecordError(string(platform), "publish")
				p.logger.Error("failed to publish post", "post_id", post.ID, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	stats.Duration = time.Since(startTime)

	p.logger.Info("ingestion completed",
		"platform", stats.Platform,
		"fetched", stats.Fetched,
		"new", stats.New,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"published", stats.Published,
		"profiles", len(stats.MatchedProfileIDs),
		"duration", stats.Duration,
	)

	return stats, nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, extract.ErrNoSourceID):
		return "no_source_id"
	case errors.Is(err, extract.ErrNotAPost):
		return "not_a_post"
	case errors.Is(err, extract.ErrMalformedItem):
		return "malformed"
	default:
		return "extract_failed"
	}
}

// lookupKeys drops the placeholder author values so anonymous posts never
// match a profile that happens to be called "Unknown".
func lookupKeys(post *domain.Post) (handle, name string) {
	if post.AuthorUsername != extract.UnknownHandle {
		handle = post.AuthorUsername
	}
	if post.AuthorName != extract.UnknownName {
		name = post.AuthorName
	}
	return handle, name
}
