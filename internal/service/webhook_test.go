package service

import (
	"encoding/json"
	"errors"

	"go.uber.org/mock/gomock"

	"social_ingest/internal/domain"
)

func succeeded(runID, datasetID string) domain.RunNotification {
	return domain.RunNotification{
		EventType: domain.EventRunSucceeded,
		Resource: domain.NotificationBody{
			ID:               runID,
			DefaultDatasetID: datasetID,
			Status:           domain.RunStatusSucceeded,
		},
	}
}

func (s *ServiceTestSuite) TestHandle_EndToEnd() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(true, nil)
	s.runs.EXPECT().Get(s.ctx, "run-1").Return(&domain.ScrapeRun{RunID: "run-1", Label: "recent", Platform: domain.PlatformLinkedIn}, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return(linkedInBatch(), nil)
	s.profiles.EXPECT().List(s.ctx).Return(testProfiles(), nil)

	var captured []domain.Post
	s.captureUpserts(&captured, nil, domain.ActionInserted, domain.ActionInserted)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), domain.ActionInserted, gomock.Any()).Return(nil).Times(2)

	s.expectTransaction()
	s.profiles.EXPECT().UpdateLastScraped(s.ctx, gomock.InAnyOrder([]int64{1, 2}), s.now).Return(int64(2), nil)
	s.runs.EXPECT().Complete(s.ctx, "run-1", domain.RunStatusSucceeded, 2, 0, s.now).Return(nil)

	result, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Require().NoError(err)
	s.True(result.Success)
	s.False(result.Skipped)
	s.Equal(domain.PlatformLinkedIn, result.Platform)
	s.Equal("run-1", result.RunID)
	s.Equal(3, result.ItemsFetched)
	s.Equal(2, result.NewPosts)
	s.Equal(0, result.UpdatedPosts)
	s.Equal(1, result.ItemsSkipped)
	s.Equal(2, result.ProfilesUpdated)
}

func (s *ServiceTestSuite) TestHandle_IgnoresOtherEvents() {
	n := succeeded("run-1", "ds-1")
	n.EventType = "ACTOR.RUN.FAILED"

	result, err := s.handshake.Handle(s.ctx, n)

	s.Require().NoError(err)
	s.True(result.Success)
	s.True(result.Skipped)
	s.Equal("Not a success event", result.Reason)
}

func (s *ServiceTestSuite) TestHandle_MissingDataset() {
	_, err := s.handshake.Handle(s.ctx, succeeded("run-1", ""))

	s.ErrorIs(err, ErrMissingDataset)
}

func (s *ServiceTestSuite) TestHandle_ProviderNotConfigured() {
	s.provider.EXPECT().Configured().Return(false)

	_, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.ErrorIs(err, ErrProviderNotConfigured)
}

func (s *ServiceTestSuite) TestHandle_DuplicateDelivery() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(false, nil)

	result, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Require().NoError(err)
	s.True(result.Skipped)
	s.Equal("Run already processed", result.Reason)
}

func (s *ServiceTestSuite) TestHandle_EmptyDataset() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(true, nil)
	s.runs.EXPECT().Get(s.ctx, "run-1").Return(nil, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return([]json.RawMessage{}, nil)
	s.expectTransaction()
	s.runs.EXPECT().Complete(s.ctx, "run-1", domain.RunStatusSucceeded, 0, 0, s.now).Return(nil)

	result, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Require().NoError(err)
	s.True(result.Success)
	s.Equal("No items in dataset", result.Message)
	s.Equal(0, result.ItemsFetched)
}

func (s *ServiceTestSuite) TestHandle_FetchFailureReleasesGuard() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(true, nil)
	s.runs.EXPECT().Get(s.ctx, "run-1").Return(nil, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return(nil, errors.New("503 service unavailable"))
	s.guard.EXPECT().Release(gomock.Any(), "run-1").Return(nil)

	_, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Error(err)
	s.Contains(err.Error(), "fetch dataset items")
}

func (s *ServiceTestSuite) TestHandle_TransactionFailureReleasesGuard() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(true, nil)
	s.runs.EXPECT().Get(s.ctx, "run-1").Return(nil, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return(linkedInBatch()[:1], nil)
	s.profiles.EXPECT().List(s.ctx).Return(testProfiles(), nil)
	s.posts.EXPECT().Upsert(s.ctx, gomock.Any(), gomock.Any(), s.now).Return(domain.ActionInserted, nil)
	s.publisher.EXPECT().Publish(s.ctx, gomock.Any(), domain.ActionInserted, gomock.Any()).Return(nil)
	s.expectTransaction()
	s.profiles.EXPECT().UpdateLastScraped(s.ctx, []int64{1}, s.now).Return(int64(0), errors.New("connection reset"))
	s.guard.EXPECT().Release(gomock.Any(), "run-1").Return(nil)

	_, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Error(err)
	s.Contains(err.Error(), "update last scraped")
}

func (s *ServiceTestSuite) TestHandle_GuardUnavailableStillProcesses() {
	s.provider.EXPECT().Configured().Return(true)
	s.guard.EXPECT().Acquire(s.ctx, "run-1").Return(false, errors.New("dial tcp: connection refused"))
	s.runs.EXPECT().Get(s.ctx, "run-1").Return(nil, nil)
	s.provider.EXPECT().FetchItems(s.ctx, "ds-1").Return([]json.RawMessage{}, nil)
	s.expectTransaction()
	s.runs.EXPECT().Complete(s.ctx, "run-1", domain.RunStatusSucceeded, 0, 0, s.now).Return(nil)

	result, err := s.handshake.Handle(s.ctx, succeeded("run-1", "ds-1"))

	s.Require().NoError(err)
	s.False(result.Skipped)
}
