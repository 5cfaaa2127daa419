package domain

import "time"

const (
	RunStatusStarted   = "started"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusAborted   = "ABORTED"
	RunStatusTimedOut  = "TIMED-OUT"

	EventRunSucceeded = "ACTOR.RUN.SUCCEEDED"
)

// RunRequest asks the scraping provider for one job.
type RunRequest struct {
	Platform   Platform
	TargetURLs []string
	MaxPosts   int
	WebhookURL string // empty for synchronous runs
}

// RunHandle identifies a provider job and where its results land.
type RunHandle struct {
	RunID     string
	DatasetID string
	Status    string
}

// RunNotification is the inbound completion callback.
type RunNotification struct {
	EventType string           `json:"eventType"`
	Resource  NotificationBody `json:"resource"`
}

type NotificationBody struct {
	ID               string `json:"id"`
	DefaultDatasetID string `json:"defaultDatasetId"`
	Status           string `json:"status"`
}

// ScrapeRun is the bookkeeping row for an asynchronously started job.
type ScrapeRun struct {
	RunID         string     `db:"run_id"`
	Label         string     `db:"label"`
	Platform      Platform   `db:"platform"`
	MaxPosts      int        `db:"max_posts"`
	ProfileCount  int        `db:"profile_count"`
	EstimatedCost float64    `db:"estimated_cost"`
	Status        string     `db:"status"`
	NewPosts      int        `db:"new_posts"`
	UpdatedPosts  int        `db:"updated_posts"`
	StartedAt     time.Time  `db:"started_at"`
	CompletedAt   *time.Time `db:"completed_at"`
}
