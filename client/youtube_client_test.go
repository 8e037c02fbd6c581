package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *YouTubeDataClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := NewYouTubeDataClient(Options{
		Timeout:  5 * time.Second,
		Endpoint: server.URL + "/",
	})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestNewYouTubeDataClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{name: "valid options", opts: Options{Timeout: 30 * time.Second}},
		{name: "with pacing", opts: Options{Timeout: 30 * time.Second, RequestsPerSecond: 5, Burst: 2}},
		{name: "zero timeout", opts: Options{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewYouTubeDataClient(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c.limiter)
		})
	}
}

func TestYouTubeDataClient_NotConnected(t *testing.T) {
	c, err := NewYouTubeDataClient(Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = c.Search(context.Background(), SearchRequest{ChannelID: "UCtest"}, "key")
	assert.EqualError(t, err, "YouTube client not connected")

	_, err = c.FetchDetails(context.Background(), "vid", "key")
	assert.EqualError(t, err, "YouTube client not connected")

	_, err = c.FetchStatistics(context.Background(), "vid", "key")
	assert.EqualError(t, err, "YouTube client not connected")
}

func TestYouTubeDataClient_Search(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/search"))
		q := r.URL.Query()
		assert.Equal(t, "key-a", q.Get("key"))
		assert.Equal(t, "UC123", q.Get("channelId"))
		assert.Equal(t, "date", q.Get("order"))
		assert.Equal(t, "video", q.Get("type"))
		assert.Equal(t, "20", q.Get("maxResults"))
		assert.Equal(t, "page-2", q.Get("pageToken"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"nextPageToken": "page-3",
			"items": [
				{"id": {"videoId": "v1"}, "snippet": {"channelId": "UC123", "title": "Cover song", "description": "desc", "publishedAt": "2024-05-01T10:00:00Z"}},
				{"id": {"videoId": "v2"}, "snippet": {"channelId": "UC123", "title": "Bad date", "publishedAt": "yesterday"}},
				{"id": {}, "snippet": {"title": "No id", "publishedAt": "2024-05-01T10:00:00Z"}}
			]
		}`))
	})

	page, err := c.Search(context.Background(), SearchRequest{
		ChannelID: "UC123",
		Query:     "music|cover",
		Order:     "date",
		PageToken: "page-2",
		PageSize:  20,
	}, "key-a")
	require.NoError(t, err)

	require.Len(t, page.Items, 1)
	assert.Equal(t, "v1", page.Items[0].VideoID)
	assert.Equal(t, "Cover song", page.Items[0].Title)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), page.Items[0].PublishedAt.UTC())
	assert.Equal(t, "page-3", page.NextPageToken)
	assert.True(t, page.HasNext())
}

func TestYouTubeDataClient_SearchQuotaExceeded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "quotaExceeded"}}`))
	})

	_, err := c.Search(context.Background(), SearchRequest{ChannelID: "UC123", PageSize: 20}, "key-a")
	require.Error(t, err)
	assert.True(t, IsTransport(err))

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
	assert.Equal(t, "search", te.Op)
}

func TestYouTubeDataClient_FetchDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("id") {
		case "short":
			_, _ = w.Write([]byte(`{"items": [{"id": "short", "contentDetails": {"duration": "PT45S"}}]}`))
		case "live":
			_, _ = w.Write([]byte(`{"items": [{"id": "live", "contentDetails": {}}]}`))
		default:
			_, _ = w.Write([]byte(`{"items": []}`))
		}
	})

	details, err := c.FetchDetails(context.Background(), "short", "key")
	require.NoError(t, err)
	require.NotNil(t, details.Duration)
	assert.Equal(t, 45*time.Second, *details.Duration)

	details, err = c.FetchDetails(context.Background(), "live", "key")
	require.NoError(t, err)
	assert.Nil(t, details.Duration)

	_, err = c.FetchDetails(context.Background(), "missing", "key")
	assert.True(t, IsData(err))
}

func TestYouTubeDataClient_FetchStatistics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("id") {
		case "popular":
			_, _ = w.Write([]byte(`{"items": [{"id": "popular", "statistics": {"viewCount": "1500"}}]}`))
		case "nostats":
			_, _ = w.Write([]byte(`{"items": [{"id": "nostats"}]}`))
		default:
			_, _ = w.Write([]byte(`{"items": []}`))
		}
	})

	stats, err := c.FetchStatistics(context.Background(), "popular", "key")
	require.NoError(t, err)
	require.NotNil(t, stats.ViewCount)
	assert.Equal(t, int64(1500), *stats.ViewCount)

	_, err = c.FetchStatistics(context.Background(), "nostats", "key")
	assert.True(t, IsData(err))

	_, err = c.FetchStatistics(context.Background(), "gone", "key")
	assert.True(t, IsData(err))
	assert.False(t, IsTransport(err))
}

func TestYouTubeDataClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	c, err := NewYouTubeDataClient(Options{Timeout: 20 * time.Millisecond, Endpoint: server.URL + "/"})
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	_, err = c.FetchStatistics(context.Background(), "slow", "key")
	require.Error(t, err)
	assert.True(t, IsTransport(err))
}

func TestYouTubeDataClient_CancelledContextIsNotTransport(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	c.limiter = rate.NewLimiter(rate.Limit(1), 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Search(ctx, SearchRequest{ChannelID: "UCtest"}, "key")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransport(err))

	_, err = c.FetchStatistics(ctx, "vid", "key")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTransport(err))
}
