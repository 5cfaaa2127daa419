package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/mock/gomock"

	"social_ingest/internal/budget"
	"social_ingest/internal/domain"
)

func (s *ServiceTestSuite) cronProfiles() []domain.Profile {
	return []domain.Profile{
		{ID: 1, Username: "fresh", ProfileURL: "https://www.linkedin.com/in/fresh"},
		{ID: 2, Username: "weekly", ProfileURL: "https://www.linkedin.com/in/weekly", LastScrapedAt: scrapedAgo(s.now, 2)},
		{ID: 3, Username: "stale", ProfileURL: "https://www.linkedin.com/in/stale", LastScrapedAt: scrapedAgo(s.now, 12)},
		{ID: 4, Username: "@acme-dev", ProfileURL: "https://www.youtube.com/@acme-dev"},
	}
}

func (s *ServiceTestSuite) TestRunLinkedInCron_StartsOneRunPerCohort() {
	webhook := "https://ingest.example.com/api/webhooks/apify"

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(s.cronProfiles(), nil)
	s.posts.EXPECT().CountScrapedSince(s.ctx, budget.MonthStart(s.now)).Return(1000, nil)

	gomock.InOrder(
		s.provider.EXPECT().StartRun(s.ctx, domain.RunRequest{
			Platform:   domain.PlatformLinkedIn,
			TargetURLs: []string{"https://www.linkedin.com/in/fresh"},
			MaxPosts:   100,
			WebhookURL: webhook,
		}).Return(&domain.RunHandle{RunID: "run-initial", DatasetID: "ds-a"}, nil),
		s.provider.EXPECT().StartRun(s.ctx, gomock.Any()).Return(nil, errors.New("actor not found")),
		s.provider.EXPECT().StartRun(s.ctx, domain.RunRequest{
			Platform:   domain.PlatformLinkedIn,
			TargetURLs: []string{"https://www.linkedin.com/in/weekly"},
			MaxPosts:   7,
			WebhookURL: webhook,
		}).Return(&domain.RunHandle{RunID: "run-recent", DatasetID: "ds-c"}, nil),
	)

	var recorded []domain.ScrapeRun
	s.runs.EXPECT().Create(s.ctx, gomock.Any()).DoAndReturn(func(_ context.Context, run *domain.ScrapeRun) error {
		recorded = append(recorded, *run)
		return nil
	}).Times(2)

	report, err := s.scraper.RunLinkedInCron(s.ctx, webhook)

	s.Require().NoError(err)
	s.True(report.Success)
	s.False(report.Skipped)
	s.Equal(3, report.ProfilesTotal)
	s.Equal(3, report.GroupCount)
	s.Equal("Started 2 of 3 runs", report.Message)

	s.Require().NotNil(report.Budget)
	s.True(report.Budget.Allowed)
	s.Equal(137, report.Budget.BatchPosts)

	s.Require().Len(report.Runs, 3)
	s.Equal("initial", report.Runs[0].Label)
	s.Equal("run-initial", report.Runs[0].RunID)
	s.InDelta(0.2, report.Runs[0].EstimatedCost, 1e-9)
	s.Equal("catchup", report.Runs[1].Label)
	s.Contains(report.Runs[1].Error, "actor not found")
	s.Equal("recent", report.Runs[2].Label)
	s.Equal(domain.PlatformLinkedIn, report.Runs[2].Platform)

	s.Require().Len(recorded, 2)
	s.Equal("run-initial", recorded[0].RunID)
	s.Equal(domain.RunStatusStarted, recorded[0].Status)
	s.Equal(1, recorded[0].ProfileCount)
	s.Equal("recent", recorded[1].Label)
}

func (s *ServiceTestSuite) TestRunLinkedInCron_BudgetRefusal() {
	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(s.cronProfiles(), nil)
	// 17400 posts = $34.80 spent; the batch adds 137 posts = $0.274.
	s.posts.EXPECT().CountScrapedSince(s.ctx, gomock.Any()).Return(17400, nil)

	report, err := s.scraper.RunLinkedInCron(s.ctx, "https://ingest.example.com/api/webhooks/apify")

	s.Require().NoError(err)
	s.False(report.Success)
	s.True(report.Skipped)
	s.Equal("Monthly budget cap exceeded", report.Reason)
	s.Require().NotNil(report.Budget)
	s.False(report.Budget.Allowed)
	s.InDelta(34.8, report.Budget.MTDSpend, 1e-9)
	s.InDelta(35.074, report.Budget.ProjectedTotal, 1e-9)
	s.Empty(report.Runs)
}

func (s *ServiceTestSuite) TestRunLinkedInCron_ChunksLargeCohorts() {
	s.scraper.cfg.MaxProfilesPerRun = 2

	profiles := []domain.Profile{
		{ID: 1, Username: "a", ProfileURL: "https://www.linkedin.com/in/a"},
		{ID: 2, Username: "b", ProfileURL: "https://www.linkedin.com/in/b"},
		{ID: 3, Username: "c", ProfileURL: "https://www.linkedin.com/in/c"},
	}

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(profiles, nil)
	s.posts.EXPECT().CountScrapedSince(s.ctx, gomock.Any()).Return(0, nil)

	var requests []domain.RunRequest
	s.provider.EXPECT().StartRun(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req domain.RunRequest) (*domain.RunHandle, error) {
			requests = append(requests, req)
			return &domain.RunHandle{RunID: "run"}, nil
		},
	).Times(2)
	s.runs.EXPECT().Create(s.ctx, gomock.Any()).Return(nil).Times(2)

	report, err := s.scraper.RunLinkedInCron(s.ctx, "")

	s.Require().NoError(err)
	s.Require().Len(report.Runs, 2)
	s.Equal("initial [1/2]", report.Runs[0].Label)
	s.Equal("initial [2/2]", report.Runs[1].Label)
	s.Len(requests[0].TargetURLs, 2)
	s.Len(requests[1].TargetURLs, 1)
}

func (s *ServiceTestSuite) TestRunLinkedInCron_NoProfiles() {
	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(nil, nil)

	report, err := s.scraper.RunLinkedInCron(s.ctx, "")

	s.Require().NoError(err)
	s.True(report.Success)
	s.Equal("No profiles to scrape", report.Message)
	s.Empty(report.Runs)
}

func (s *ServiceTestSuite) TestRunLinkedInCron_NotConfigured() {
	s.provider.EXPECT().Configured().Return(false)

	_, err := s.scraper.RunLinkedInCron(s.ctx, "")

	s.ErrorIs(err, ErrProviderNotConfigured)
}

func (s *ServiceTestSuite) TestRunCron_UsesConfiguredWebhook() {
	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(s.cronProfiles()[:1], nil)
	s.posts.EXPECT().CountScrapedSince(s.ctx, gomock.Any()).Return(0, nil)
	s.provider.EXPECT().StartRun(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req domain.RunRequest) (*domain.RunHandle, error) {
			s.Equal("https://ingest.example.com/api/webhooks/apify", req.WebhookURL)
			return &domain.RunHandle{RunID: "run-1"}, nil
		},
	)
	s.runs.EXPECT().Create(s.ctx, gomock.Any()).Return(nil)

	report, err := s.scraper.RunCron(s.ctx)

	s.Require().NoError(err)
	s.Len(report.Runs, 1)
}

func (s *ServiceTestSuite) TestRunYouTubeCron() {
	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(s.cronProfiles(), nil)
	s.posts.EXPECT().CountScrapedSince(s.ctx, gomock.Any()).Return(0, nil)
	s.provider.EXPECT().StartRun(s.ctx, domain.RunRequest{
		Platform:   domain.PlatformYouTube,
		TargetURLs: []string{"https://www.youtube.com/@acme-dev"},
		MaxPosts:   5,
		WebhookURL: "https://hook",
	}).Return(&domain.RunHandle{RunID: "yt-run"}, nil)
	s.runs.EXPECT().Create(s.ctx, gomock.Any()).DoAndReturn(func(_ context.Context, run *domain.ScrapeRun) error {
		s.Equal(domain.PlatformYouTube, run.Platform)
		s.Equal("youtube", run.Label)
		return nil
	})

	report, err := s.scraper.RunYouTubeCron(s.ctx, "https://hook")

	s.Require().NoError(err)
	s.Equal(domain.PlatformYouTube, report.Platform)
	s.Equal(1, report.ProfilesTotal)
	s.Require().Len(report.Runs, 1)
	s.Equal("yt-run", report.Runs[0].RunID)
}

func (s *ServiceTestSuite) TestScrapeNow_ExplicitProfilesAreAllStamped() {
	profiles := testProfiles()

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(profiles, nil)
	s.profiles.EXPECT().ListByIDs(s.ctx, []int64{1, 2}).Return(profiles, nil)
	s.provider.EXPECT().RunAndWait(s.ctx, domain.RunRequest{
		Platform:   domain.PlatformLinkedIn,
		TargetURLs: domain.ProfileURLs(profiles),
		MaxPosts:   20,
	}).Return(&domain.RunHandle{RunID: "run-1", DatasetID: "ds-1", Status: domain.RunStatusSucceeded}, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return(linkedInBatch()[:1], nil)
	s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.ActionInserted, nil)
	s.profiles.EXPECT().UpdateLastScraped(s.ctx, []int64{1, 2}, s.now).Return(int64(2), nil)

	report, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{ProfileIDs: []int64{1, 2}, MaxPosts: 20})

	s.Require().NoError(err)
	s.True(report.Success)
	s.Equal(2, report.ProfileCount)
	s.Equal(1, report.PostsFound)
	s.Equal(1, report.NewPosts)
	s.Require().Len(report.Groups, 1)
	s.Equal("custom", report.Groups[0].Label)
	s.Equal("run-1", report.Groups[0].RunID)
}

func (s *ServiceTestSuite) TestScrapeNow_AllProfilesStampsOnlyMatched() {
	profiles := append(testProfiles(), domain.Profile{ID: 9, Username: "@acme-dev", ProfileURL: "https://www.youtube.com/@acme-dev"})

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(profiles, nil)
	s.provider.EXPECT().RunAndWait(s.ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, req domain.RunRequest) (*domain.RunHandle, error) {
			s.Equal(domain.PlatformLinkedIn, req.Platform)
			s.Equal(100, req.MaxPosts)
			s.Len(req.TargetURLs, 2)
			return &domain.RunHandle{RunID: "run-1", DatasetID: "ds-1"}, nil
		},
	)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return(linkedInBatch()[:1], nil)
	s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.ActionUpdated, nil)
	s.profiles.EXPECT().UpdateLastScraped(s.ctx, []int64{1}, s.now).Return(int64(1), nil)

	report, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{})

	s.Require().NoError(err)
	s.Equal(2, report.ProfileCount)
	s.Equal(1, report.UpdatedPosts)
	s.Require().Len(report.Groups, 1)
	s.Equal("initial", report.Groups[0].Cohort)
}

func (s *ServiceTestSuite) TestScrapeNow_OnlyNewSkipsScrapedProfiles() {
	profiles := testProfiles()
	profiles[1].LastScrapedAt = scrapedAgo(s.now, 3)

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(profiles, nil)
	s.provider.EXPECT().RunAndWait(s.ctx, domain.RunRequest{
		Platform:   domain.PlatformLinkedIn,
		TargetURLs: []string{"https://www.linkedin.com/in/jane-doe"},
		MaxPosts:   100,
	}).Return(&domain.RunHandle{RunID: "run-1", DatasetID: "ds-1"}, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return([]json.RawMessage{}, nil)

	report, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{OnlyNew: true})

	s.Require().NoError(err)
	s.Equal(0, report.NewPosts)
	s.Len(report.Groups, 1)
}

func (s *ServiceTestSuite) TestScrapeNow_ProviderFailureIsReportedPerGroup() {
	profiles := testProfiles()

	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(profiles, nil)
	s.profiles.EXPECT().ListByIDs(s.ctx, []int64{1}).Return(profiles[:1], nil)
	s.provider.EXPECT().RunAndWait(s.ctx, gomock.Any()).Return(nil, errors.New("run FAILED"))

	report, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{ProfileIDs: []int64{1}})

	s.Require().NoError(err)
	s.True(report.Success)
	s.Require().Len(report.Groups, 1)
	s.Contains(report.Groups[0].Error, "run FAILED")
	s.Contains(report.Message, "1 of 1 groups failed")
}

func (s *ServiceTestSuite) TestScrapeNow_InvalidStrategy() {
	_, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{Strategy: "everything"})

	s.ErrorIs(err, ErrInvalidRequest)
}

func (s *ServiceTestSuite) TestScrapeNow_NoProfiles() {
	s.provider.EXPECT().Configured().Return(true)
	s.profiles.EXPECT().List(s.ctx).Return(nil, nil)

	report, err := s.scraper.ScrapeNow(s.ctx, ScrapeRequest{})

	s.Require().NoError(err)
	s.Equal("No profiles to scrape", report.Message)
}
