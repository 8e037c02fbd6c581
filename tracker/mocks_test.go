package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/client"
	"github.com/researchaccelerator-hub/song-tracker/events"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/model/youtube"
	"github.com/stretchr/testify/mock"
)

// MockVideoAPI is a testify mock of client.VideoAPI.
type MockVideoAPI struct {
	mock.Mock
}

func (m *MockVideoAPI) Search(ctx context.Context, req client.SearchRequest, key string) (*youtube.SearchPage, error) {
	args := m.Called(ctx, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.SearchPage), args.Error(1)
}

func (m *MockVideoAPI) FetchDetails(ctx context.Context, videoID string, key string) (*youtube.VideoDetails, error) {
	args := m.Called(ctx, videoID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.VideoDetails), args.Error(1)
}

func (m *MockVideoAPI) FetchStatistics(ctx context.Context, videoID string, key string) (*youtube.VideoStatistics, error) {
	args := m.Called(ctx, videoID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*youtube.VideoStatistics), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu         sync.Mutex
	discovered []model.TrackedItem
	runs       []events.RunCompletedMessage
}

func (p *recordingPublisher) PublishDiscovered(ctx context.Context, item model.TrackedItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discovered = append(p.discovered, item)
	return nil
}

func (p *recordingPublisher) PublishRunCompleted(ctx context.Context, message events.RunCompletedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = append(p.runs, message)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type countingCache struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seoul() *time.Location {
	return DefaultOptions().Location
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Location = seoul()
	return opts
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func int64Ptr(v int64) *int64 { return &v }

func searchFor(channelID, pageToken string) interface{} {
	return mock.MatchedBy(func(req client.SearchRequest) bool {
		return req.ChannelID == channelID && req.PageToken == pageToken
	})
}
