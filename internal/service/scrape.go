package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"social_ingest/internal/budget"
	"social_ingest/internal/domain"
	"social_ingest/internal/metrics"
	"social_ingest/internal/scheduler"
)

var ErrInvalidRequest = errors.New("invalid scrape request")

const budgetExceededReason = "Monthly budget cap exceeded"

type ScraperConfig struct {
	Quotas            scheduler.Quotas
	MaxProfilesPerRun int
	YouTubeMaxVideos  int
	// WebhookURL is where the provider reports finished runs started by the
	// in-process ticker.
	WebhookURL string
}

// ScrapeRequest selects profiles for a synchronous scrape. Without ids every
// LinkedIn profile is scraped.
type ScrapeRequest struct {
	ProfileIDs []int64 `json:"profileIds"`
	OnlyNew    bool    `json:"onlyNew"`
	Strategy   string  `json:"strategy"`
	MaxPosts   int     `json:"maxPosts"`
}

// Scraper starts provider runs. Cron passes start runs asynchronously and
// leave ingestion to the Handshake; ScrapeNow waits for each run and ingests
// the results itself.
type Scraper struct {
	provider Provider
	profiles ProfileStore
	posts    PostStore
	runs     RunStore
	pipeline *Pipeline
	gate     *budget.Gate
	metrics  *metrics.Collector
	logger   *slog.Logger
	cfg      ScraperConfig
	now      func() time.Time
}

func NewScraper(
	provider Provider,
	profiles ProfileStore,
	posts PostStore,
	runs RunStore,
	pipeline *Pipeline,
	gate *budget.Gate,
	m *metrics.Collector,
	logger *slog.Logger,
	cfg ScraperConfig,
) *Scraper {
	return &Scraper{
		provider: provider,
		profiles: profiles,
		posts:    posts,
		runs:     runs,
		pipeline: pipeline,
		gate:     gate,
		metrics:  m,
		logger:   logger.With("component", "scraper"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// RunCron is the scheduler entry point.
func (s *Scraper) RunCron(ctx context.Context) (*domain.CronReport, error) {
	return s.RunLinkedInCron(ctx, s.cfg.WebhookURL)
}

// RunLinkedInCron partitions LinkedIn profiles by staleness and starts one
// asynchronous run per batch, provided the month's budget allows it.
func (s *Scraper) RunLinkedInCron(ctx context.Context, webhookURL string) (*domain.CronReport, error) {
	profiles, err := s.cronProfiles(ctx, domain.PlatformLinkedIn)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cohorts := scheduler.Partition(profiles, scheduler.StrategySmart, s.cfg.Quotas, now)
	return s.startAsync(ctx, domain.PlatformLinkedIn, profiles, cohorts, webhookURL, now)
}

// RunYouTubeCron starts runs for every tracked channel with a fixed per
// channel video quota.
func (s *Scraper) RunYouTubeCron(ctx context.Context, webhookURL string) (*domain.CronReport, error) {
	channels, err := s.cronProfiles(ctx, domain.PlatformYouTube)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return s.startAsync(ctx, domain.PlatformYouTube, channels, s.youTubeCohort(channels), webhookURL, now)
}

func (s *Scraper) cronProfiles(ctx context.Context, platform domain.Platform) ([]domain.Profile, error) {
	if !s.provider.Configured() {
		return nil, ErrProviderNotConfigured
	}

	all, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return filterPlatform(all, platform), nil
}

func (s *Scraper) youTubeCohort(channels []domain.Profile) []scheduler.Cohort {
	if len(channels) == 0 {
		return nil
	}
	return []scheduler.Cohort{{
		Name:     scheduler.CohortYouTube,
		MaxPosts: s.cfg.YouTubeMaxVideos,
		Profiles: channels,
	}}
}

func (s *Scraper) startAsync(
	ctx context.Context,
	platform domain.Platform,
	profiles []domain.Profile,
	cohorts []scheduler.Cohort,
	webhookURL string,
	now time.Time,
) (*domain.CronReport, error) {
	logger := s.logger.With("platform", platform)

	report := &domain.CronReport{
		Success:       true,
		Platform:      platform,
		ProfilesTotal: len(profiles),
		Runs:          []domain.CohortResult{},
		WebhookURL:    webhookURL,
		Timestamp:     now,
	}
	defer func() {
		report.Duration = time.Since(now).Round(time.Millisecond).String()
	}()

	if len(profiles) == 0 {
		report.Message = "No profiles to scrape"
		return report, nil
	}

	batches := scheduler.Chunk(cohorts, s.cfg.MaxProfilesPerRun)
	report.GroupCount = len(batches)

	mtdPosts, err := s.posts.CountScrapedSince(ctx, budget.MonthStart(now))
	if err != nil {
		return nil, fmt.Errorf("count month-to-date posts: %w", err)
	}

	decision := s.gate.Evaluate(mtdPosts, scheduler.TotalQuota(cohorts))
	report.Budget = &decision
	if !decision.Allowed {
		s.metrics.BudgetRefused(string(platform))
		logger.Warn("budget cap reached, skipping scrape",
			"mtd_spend", decision.MTDSpend,
			"batch_cost", decision.BatchEstimatedCost,
			"monthly_budget", decision.MonthlyBudget,
		)
		report.Success = false
		report.Skipped = true
		report.Reason = budgetExceededReason
		return report, nil
	}

	logger.Info("starting scheduled scrape",
		"profiles", len(profiles),
		"batches", len(batches),
		"batch_posts", decision.BatchPosts,
		"estimated_cost", decision.BatchEstimatedCost,
	)

	report.Runs = scheduler.Dispatch(ctx, batches, s.gate.Cost(1), func(ctx context.Context, b scheduler.Batch, res *domain.CohortResult) error {
		res.Platform = platform

		handle, err := s.provider.StartRun(ctx, domain.RunRequest{
			Platform:   platform,
			TargetURLs: domain.ProfileURLs(b.Profiles),
			MaxPosts:   b.MaxPosts,
			WebhookURL: webhookURL,
		})
		s.metrics.RunStarted(string(platform), err)
		if err != nil {
			logger.Error("failed to start run", "group", b.Label, "error", err)
			return fmt.Errorf("start run: %w", err)
		}
		res.RunID = handle.RunID

		run := &domain.ScrapeRun{
			RunID:         handle.RunID,
			Label:         b.Label,
			Platform:      platform,
			MaxPosts:      b.MaxPosts,
			ProfileCount:  len(b.Profiles),
			EstimatedCost: res.EstimatedCost,
			Status:        domain.RunStatusStarted,
			StartedAt:     now,
		}
		if err := s.runs.Create(ctx, run); err != nil {
			logger.Error("failed to record run", "run_id", handle.RunID, "error", err)
		}

		logger.Info("run started", "group", b.Label, "run_id", handle.RunID, "profiles", len(b.Profiles))
		return nil
	})

	failed := scheduler.Failed(report.Runs)
	report.Message = fmt.Sprintf("Started %d of %d runs", len(report.Runs)-failed, len(report.Runs))

	return report, nil
}

// ScrapeNow runs the selected profiles synchronously: each batch waits for
// its provider run, then ingests the dataset. The budget gate does not apply.
func (s *Scraper) ScrapeNow(ctx context.Context, req ScrapeRequest) (*domain.ScrapeReport, error) {
	strategy, err := scheduler.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.OnlyNew {
		strategy = scheduler.StrategyNewOnly
	}
	if req.MaxPosts < 0 {
		return nil, fmt.Errorf("%w: maxPosts must not be negative", ErrInvalidRequest)
	}

	if !s.provider.Configured() {
		return nil, ErrProviderNotConfigured
	}

	directory, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	explicit := len(req.ProfileIDs) > 0
	selected := filterPlatform(directory, domain.PlatformLinkedIn)
	if explicit {
		selected, err = s.profiles.ListByIDs(ctx, req.ProfileIDs)
		if err != nil {
			return nil, fmt.Errorf("list profiles by id: %w", err)
		}
	}

	report := &domain.ScrapeReport{
		Success:      true,
		ProfileCount: len(selected),
		Groups:       []domain.CohortResult{},
	}
	if len(selected) == 0 {
		report.Message = "No profiles to scrape"
		return report, nil
	}

	now := s.now().UTC()
	var touched []int64

	for _, platform := range []domain.Platform{domain.PlatformLinkedIn, domain.PlatformYouTube} {
		group := filterPlatform(selected, platform)
		if len(group) == 0 {
			continue
		}

		var cohorts []scheduler.Cohort
		switch {
		case explicit && req.MaxPosts > 0:
			cohorts = []scheduler.Cohort{{Name: scheduler.CohortCustom, MaxPosts: req.MaxPosts, Profiles: group}}
		case platform == domain.PlatformYouTube:
			cohorts = s.youTubeCohort(group)
		default:
			cohorts = scheduler.Partition(group, strategy, s.cfg.Quotas, now)
		}

		results := scheduler.Dispatch(ctx, scheduler.Chunk(cohorts, s.cfg.MaxProfilesPerRun), s.gate.Cost(1),
			func(ctx context.Context, b scheduler.Batch, res *domain.CohortResult) error {
				res.Platform = platform

				ids, err := s.scrapeBatch(ctx, platform, b, directory, res)
				if err != nil {
					return err
				}
				if explicit {
					ids = domain.ProfileIDs(b.Profiles)
				}
				touched = appendUnique(touched, ids...)
				return nil
			})
		report.Groups = append(report.Groups, results...)
	}

	for _, g := range report.Groups {
		report.PostsFound += g.ItemsFetched
		report.NewPosts += g.NewPosts
		report.UpdatedPosts += g.UpdatedPosts
	}

	if len(touched) > 0 {
		if _, err := s.profiles.UpdateLastScraped(ctx, touched, s.now().UTC()); err != nil {
			return nil, fmt.Errorf("update last scraped: %w", err)
		}
	}

	report.Message = fmt.Sprintf("Scraped %d profiles: %d new, %d updated", len(selected), report.NewPosts, report.UpdatedPosts)
	if failed := scheduler.Failed(report.Groups); failed > 0 {
		report.Message += fmt.Sprintf(" (%d of %d groups failed)", failed, len(report.Groups))
	}

	s.logger.Info("manual scrape completed",
		"profiles", len(selected),
		"groups", len(report.Groups),
		"posts_found", report.PostsFound,
		"new", report.NewPosts,
		"updated", report.UpdatedPosts,
	)

	return report, nil
}

// scrapeBatch waits for one provider run and ingests its dataset. It returns
// the ids of profiles that received posts.
func (s *Scraper) scrapeBatch(
	ctx context.Context,
	platform domain.Platform,
	b scheduler.Batch,
	directory []domain.Profile,
	res *domain.CohortResult,
) ([]int64, error) {
	handle, err := s.provider.RunAndWait(ctx, domain.RunRequest{
		Platform:   platform,
		TargetURLs: domain.ProfileURLs(b.Profiles),
		MaxPosts:   b.MaxPosts,
	})
	s.metrics.RunStarted(string(platform), err)
	if err != nil {
		s.logger.Error("provider run failed", "group", b.Label, "platform", platform, "error", err)
		return nil, fmt.Errorf("run provider job: %w", err)
	}
	res.RunID = handle.RunID

	items, err := s.provider.FetchItems(ctx, handle.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset items: %w", err)
	}
	res.ItemsFetched = len(items)

	stats, err := s.pipeline.Process(ctx, items, directory)
	res.NewPosts = stats.New
	res.UpdatedPosts = stats.Updated
	if err != nil {
		return nil, fmt.Errorf("process items: %w", err)
	}

	return stats.MatchedProfileIDs, nil
}

func filterPlatform(profiles []domain.Profile, platform domain.Platform) []domain.Profile {
	var out []domain.Profile
	for _, p := range profiles {
		if p.Platform() == platform {
			out = append(out, p)
		}
	}
	return out
}

func appendUnique(dst []int64, ids ...int64) []int64 {
	for _, id := range ids {
		found := false
		for _, existing := range dst {
			if existing == id {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, id)
		}
	}
	return dst
}
