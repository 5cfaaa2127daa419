package domain

import "time"

const (
	MediaTypeText  = "text"
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
)

// Post is the normalized record produced from one scraped item. It is built
// once per raw item and never mutated afterwards.
type Post struct {
	ID                 string    `json:"id"`
	Platform           Platform  `json:"platform"`
	URL                string    `json:"url"`
	Title              string    `json:"title,omitempty"`
	Content            string    `json:"content"`
	ContentPreview     string    `json:"contentPreview"`
	AuthorName         string    `json:"authorName"`
	AuthorUsername     string    `json:"authorUsername"`
	PublishedAt        time.Time `json:"publishedAt"`
	Likes              int       `json:"likes"`
	Comments           int       `json:"comments"`
	Shares             int       `json:"shares"`
	Views              int       `json:"views"`
	EngagementTotal    int       `json:"engagementTotal"`
	EngagementRate     float64   `json:"engagementRate"` // percentage, 0..100+
	Hashtags           []string  `json:"hashtags"`
	MediaType          string    `json:"mediaType"`
	VideoDuration      *int      `json:"videoDuration,omitempty"` // seconds
	TranscriptLanguage *string   `json:"transcriptLanguage,omitempty"`
}

type UpsertAction string

const (
	ActionInserted UpsertAction = "inserted"
	ActionUpdated  UpsertAction = "updated"
)

// UpsertOutcome classifies a single persisted post.
type UpsertOutcome struct {
	PostID    string
	Action    UpsertAction
	ProfileID *int64
}
