package mocks

import (
	"context"
	"io"

	"github.com/NewsPager/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockFeedClient struct {
	mock.Mock
}

func (m *MockFeedClient) FetchFeed(ctx context.Context, req domain.FeedRequest) (*domain.FeedResponse, error) {
	args := m.Called(ctx, req)

	var resp *domain.FeedResponse
	if args.Get(0) != nil {
		resp = args.Get(0).(*domain.FeedResponse)
	}
	return resp, args.Error(1)
}

type MockPageFetcher struct {
	mock.Mock
}

func (m *MockPageFetcher) FetchPage(ctx context.Context, query string, page domain.PageKey) (*domain.FeedResponse, error) {
	args := m.Called(ctx, query, page)

	var resp *domain.FeedResponse
	if args.Get(0) != nil {
		resp = args.Get(0).(*domain.FeedResponse)
	}
	return resp, args.Error(1)
}

type MockTransformer struct {
	mock.Mock
}

func (m *MockTransformer) Transform(reader io.Reader) (*domain.FeedResponse, error) {
	args := m.Called(reader)

	var resp *domain.FeedResponse
	if args.Get(0) != nil {
		resp = args.Get(0).(*domain.FeedResponse)
	}
	return resp, args.Error(1)
}

type MockEventProducer struct {
	mock.Mock
}

func (m *MockEventProducer) Publish(ctx context.Context, event *domain.PageEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}
