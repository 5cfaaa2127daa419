package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/mock/gomock"

	"social_ingest/internal/config"
	"social_ingest/internal/domain"
	"social_ingest/testdata/utils"
)

func (s *ServiceTestSuite) TestProcess_MixedShapes() {
	var captured []domain.Post
	var profileIDs []*int64
	s.captureUpserts(&captured, &profileIDs, domain.ActionInserted, domain.ActionInserted)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), domain.ActionInserted, gomock.Any()).Return(nil).Times(2)

	stats, err := s.pipeline.Process(s.ctx, linkedInBatch(), testProfiles())

	s.Require().NoError(err)
	s.Equal(domain.PlatformLinkedIn, stats.Platform)
	s.Equal(3, stats.Fetched)
	s.Equal(2, stats.New)
	s.Equal(0, stats.Updated)
	s.Equal(1, stats.Skipped)
	s.Equal(0, stats.Errors)
	s.Equal(2, stats.Published)
	s.ElementsMatch([]int64{1, 2}, stats.MatchedProfileIDs)

	s.Require().Len(captured, 2)

	first := captured[0]
	s.Equal("7100000000000000001", first.ID)
	s.Equal(10, first.Likes)
	s.Equal(2, first.Comments)
	s.Equal(1, first.Shares)
	s.Equal(100, first.Views)
	s.Equal(13, first.EngagementTotal)
	s.InDelta(13.0, first.EngagementRate, 1e-9)
	s.Equal([]string{"#go", "#data"}, first.Hashtags)
	s.Equal("jane-doe", first.AuthorUsername)
	s.Require().NotNil(profileIDs[0])
	s.Equal(int64(1), *profileIDs[0])

	second := captured[1]
	s.Equal("7100000000000000002", second.ID)
	s.Equal(1204, second.Likes)
	s.Equal(5, second.Comments)
	s.Equal(0, second.Views)
	s.Equal(0.0, second.EngagementRate)
	s.Equal("John Smith", second.AuthorName)
	s.Require().NotNil(profileIDs[1])
	s.Equal(int64(2), *profileIDs[1])
}

func (s *ServiceTestSuite) TestProcess_SameItemTwiceIsInsertThenUpdate() {
	item := linkedInBatch()[0]

	var captured []domain.Post
	s.captureUpserts(&captured, nil, domain.ActionInserted, domain.ActionUpdated)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := s.pipeline.Process(s.ctx, []json.RawMessage{item}, testProfiles())
	s.Require().NoError(err)
	second, err := s.pipeline.Process(s.ctx, []json.RawMessage{item}, testProfiles())
	s.Require().NoError(err)

	s.Equal(1, first.New)
	s.Equal(0, first.Updated)
	s.Equal(0, second.New)
	s.Equal(1, second.Updated)

	s.Require().Len(captured, 2)
	s.Equal(captured[0], captured[1])
}

func (s *ServiceTestSuite) TestProcess_RecordFailureDoesNotStopBatch() {
	items := linkedInBatch()[:2]

	gomock.InOrder(
		s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.UpsertAction(""), errors.New("value too long")),
		s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.ActionUpdated, nil),
	)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), domain.ActionUpdated, gomock.Any()).Return(nil)

	stats, err := s.pipeline.Process(s.ctx, items, testProfiles())

	s.Require().NoError(err)
	s.Equal(1, stats.Errors)
	s.Equal(0, stats.New)
	s.Equal(1, stats.Updated)
	s.Equal([]int64{2}, stats.MatchedProfileIDs)
}

func (s *ServiceTestSuite) TestProcess_PublishFailureKeepsClassification() {
	items := linkedInBatch()[:1]

	s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.ActionInserted, nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), domain.ActionInserted, gomock.Any()).Return(errors.New("channel closed"))

	stats, err := s.pipeline.Process(s.ctx, items, testProfiles())

	s.Require().NoError(err)
	s.Equal(1, stats.New)
	s.Equal(1, stats.Errors)
	s.Equal(0, stats.Published)
}

func (s *ServiceTestSuite) TestProcess_SingleProfileFallback() {
	item := json.RawMessage(`{"postUrl": "https://www.linkedin.com/posts/x_activity-42-a", "text": "hi"}`)
	only := testProfiles()[:1]

	var profileIDs []*int64
	var captured []domain.Post
	s.captureUpserts(&captured, &profileIDs, domain.ActionInserted)

	pipeline := s.newPipeline(nil, config.IngestConfig{})
	stats, err := pipeline.Process(s.ctx, []json.RawMessage{item}, only)

	s.Require().NoError(err)
	s.Require().NotNil(profileIDs[0])
	s.Equal(int64(1), *profileIDs[0])
	s.Equal([]int64{1}, stats.MatchedProfileIDs)
	s.Equal("unknown", captured[0].AuthorUsername)
}

func (s *ServiceTestSuite) TestProcess_SingleProfileFallbackDisabled() {
	item := json.RawMessage(`{"postUrl": "https://www.linkedin.com/posts/x_activity-42-a", "text": "hi"}`)

	var profileIDs []*int64
	var captured []domain.Post
	s.captureUpserts(&captured, &profileIDs, domain.ActionInserted)

	pipeline := s.newPipeline(nil, config.IngestConfig{SingleProfileFallback: utils.Ptr(false)})
	stats, err := pipeline.Process(s.ctx, []json.RawMessage{item}, testProfiles()[:1])

	s.Require().NoError(err)
	s.Nil(profileIDs[0])
	s.Empty(stats.MatchedProfileIDs)
	s.Equal(1, stats.New)
}

func (s *ServiceTestSuite) TestProcess_AnonymousPostIgnoresPlaceholderProfile() {
	items := []json.RawMessage{
		json.RawMessage(`{"postUrl": "https://www.linkedin.com/posts/x_activity-43-a", "text": "who wrote this"}`),
		json.RawMessage(`{"postUrl": "https://www.linkedin.com/posts/x_activity-44-a", "author": "Unknown"}`),
	}
	profiles := append(testProfiles(), domain.Profile{
		ID:          3,
		Username:    "unknown",
		DisplayName: "Unknown",
		ProfileURL:  "https://www.linkedin.com/in/unknown",
		ProfileType: domain.ProfileTypeOther,
	})

	var profileIDs []*int64
	var captured []domain.Post
	s.captureUpserts(&captured, &profileIDs, domain.ActionInserted, domain.ActionInserted)

	pipeline := s.newPipeline(nil, config.IngestConfig{})
	stats, err := pipeline.Process(s.ctx, items, profiles)

	s.Require().NoError(err)
	s.Require().Len(captured, 2)
	for i := range captured {
		s.Equal("unknown", captured[i].AuthorUsername)
		s.Equal("Unknown", captured[i].AuthorName)
		s.Nil(profileIDs[i])
	}
	s.Empty(stats.MatchedProfileIDs)
	s.Equal(2, stats.New)
}

func (s *ServiceTestSuite) TestProcess_DetectsPlatformPerItem() {
	items := []json.RawMessage{
		linkedInBatch()[0],
		json.RawMessage(`{
			"url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			"title": "Pipeline walkthrough",
			"channelUrl": "https://www.youtube.com/@acme-dev",
			"channelName": "Acme Dev",
			"viewCount": 200,
			"likes": 20
		}`),
	}

	var captured []domain.Post
	s.captureUpserts(&captured, nil, domain.ActionInserted, domain.ActionInserted)

	pipeline := s.newPipeline(nil, config.IngestConfig{})
	stats, err := pipeline.Process(s.ctx, items, testProfiles())

	s.Require().NoError(err)
	s.Equal(domain.PlatformLinkedIn, stats.Platform)
	s.Require().Len(captured, 2)
	s.Equal(domain.PlatformLinkedIn, captured[0].Platform)
	s.Equal(domain.PlatformYouTube, captured[1].Platform)
	s.Equal(domain.MediaTypeVideo, captured[1].MediaType)
}

func (s *ServiceTestSuite) TestProcess_CancelledContextKeepsPartialStats() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	stats, err := s.pipeline.Process(ctx, linkedInBatch(), testProfiles())

	s.ErrorIs(err, context.Canceled)
	s.Require().NotNil(stats)
	s.Equal(3, stats.Fetched)
	s.Equal(0, stats.New)
}

func (s *ServiceTestSuite) TestProcess_EmptyBatch() {
	stats, err := s.pipeline.Process(s.ctx, nil, testProfiles())

	s.Require().NoError(err)
	s.Equal(0, stats.Fetched)
	s.Equal(domain.Platform(""), stats.Platform)
}
