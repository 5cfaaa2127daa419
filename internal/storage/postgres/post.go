package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social_ingest/internal/domain"
)

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// Upsert writes one post keyed by its content id and reports whether the row
// was inserted or updated. On update the url, creation time and publication
// time are left alone, and an existing profile link is only replaced by a
// non-null one.
func (s *PostStore) Upsert(ctx context.Context, post *domain.Post, profileID *int64, scrapedAt time.Time) (domain.UpsertAction, error) {
	query := `
		INSERT INTO posts (
			id, platform, profile_id, url, title, content, content_preview,
			author_name, author_username, published_at,
			likes, comments, shares, views, engagement_total, engagement_rate,
			hashtags, media_type, video_duration, transcript_language, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (id) DO UPDATE SET
			profile_id = COALESCE(EXCLUDED.profile_id, posts.profile_id),
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			content_preview = EXCLUDED.content_preview,
			author_name = EXCLUDED.author_name,
			author_username = EXCLUDED.author_username,
			likes = EXCLUDED.likes,
			comments = EXCLUDED.comments,
			shares = EXCLUDED.shares,
			views = EXCLUDED.views,
			engagement_total = EXCLUDED.engagement_total,
			engagement_rate = EXCLUDED.engagement_rate,
			hashtags = EXCLUDED.hashtags,
			media_type = EXCLUDED.media_type,
			video_duration = EXCLUDED.video_duration,
			transcript_language = EXCLUDED.transcript_language,
			scraped_at = EXCLUDED.scraped_at,
			updated_at = NOW()
		RETURNING (xmax = 0) AS inserted`

	hashtags := post.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}

	var inserted bool
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		post.ID,
		post.Platform,
		profileID,
		post.URL,
		post.Title,
		post.Content,
		post.ContentPreview,
		post.AuthorName,
		post.AuthorUsername,
		post.PublishedAt,
		post.Likes,
		post.Comments,
		post.Shares,
		post.Views,
		post.EngagementTotal,
		post.EngagementRate,
		pq.Array(hashtags),
		post.MediaType,
		post.VideoDuration,
		post.TranscriptLanguage,
		scrapedAt,
	).Scan(&inserted)
	if err != nil {
		return "", err
	}

	if inserted {
		return domain.ActionInserted, nil
	}
	return domain.ActionUpdated, nil
}

// CountScrapedSince counts posts whose last scrape happened at or after since.
func (s *PostStore) CountScrapedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count,
		`SELECT COUNT(*) FROM posts WHERE scraped_at >= $1`, since)
	return count, err
}
