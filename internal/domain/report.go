package domain

import "time"

// CohortResult reports what happened to one dispatched batch of profiles.
type CohortResult struct {
	Cohort        string   `json:"cohort"`
	Label         string   `json:"group"`
	Platform      Platform `json:"platform,omitempty"`
	ProfileCount  int      `json:"profileCount"`
	MaxPosts      int      `json:"maxPosts"`
	EstimatedCost float64  `json:"estimatedCost"`
	RunID         string   `json:"runId,omitempty"`
	ItemsFetched  int      `json:"postsScraped,omitempty"`
	NewPosts      int      `json:"newPosts,omitempty"`
	UpdatedPosts  int      `json:"updatedPosts,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// BudgetReport carries the figures behind a budget decision.
type BudgetReport struct {
	MonthlyBudget      float64 `json:"monthlyBudget"`
	MTDSpend           float64 `json:"mtdSpend"`
	MTDPosts           int     `json:"mtdPosts"`
	BatchPosts         int     `json:"batchPosts"`
	BatchEstimatedCost float64 `json:"batchEstimatedCost"`
	ProjectedTotal     float64 `json:"projectedTotal"`
	Allowed            bool    `json:"allowed"`
}

// CronReport is returned by the asynchronous scheduled trigger.
type CronReport struct {
	Success       bool           `json:"success"`
	Skipped       bool           `json:"skipped,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Message       string         `json:"message,omitempty"`
	Platform      Platform       `json:"platform"`
	ProfilesTotal int            `json:"profilesTotal"`
	GroupCount    int            `json:"groupCount"`
	Budget        *BudgetReport  `json:"budget,omitempty"`
	Runs          []CohortResult `json:"runs"`
	WebhookURL    string         `json:"webhookUrl,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Duration      string         `json:"duration"`
}

// ScrapeReport is returned by the synchronous scrape path.
type ScrapeReport struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	ProfileCount int            `json:"profileCount"`
	PostsFound   int            `json:"postsFound"`
	NewPosts     int            `json:"newPosts"`
	UpdatedPosts int            `json:"updatedPosts"`
	Groups       []CohortResult `json:"groups"`
}

// WebhookResult is returned by the completion handshake.
type WebhookResult struct {
	Success         bool     `json:"success"`
	Skipped         bool     `json:"skipped,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	Message         string   `json:"message,omitempty"`
	Platform        Platform `json:"platform,omitempty"`
	RunID           string   `json:"runId,omitempty"`
	DatasetID       string   `json:"datasetId,omitempty"`
	ItemsFetched    int      `json:"itemsFetched"`
	NewPosts        int      `json:"newPosts"`
	UpdatedPosts    int      `json:"updatedPosts"`
	ItemsSkipped    int      `json:"itemsSkipped"`
	ProfilesUpdated int      `json:"profilesUpdated"`
}
