package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/classify"
	"github.com/researchaccelerator-hub/song-tracker/model/youtube"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const searchFields = "nextPageToken,items(id/videoId,snippet/title,snippet/description,snippet/publishedAt,snippet/channelId)"

// Options configures a YouTubeDataClient.
type Options struct {
	// Timeout bounds every API call
	Timeout time.Duration
	// RequestsPerSecond paces calls across all keys; 0 disables pacing
	RequestsPerSecond float64
	// Burst is the token bucket size used with RequestsPerSecond
	Burst int
	// Endpoint overrides the API base URL (tests)
	Endpoint string
}

// YouTubeDataClient implements VideoAPI on top of the YouTube Data API v3.
// The service is created without ambient credentials; the API key travels with
// each call so the caller can rotate keys freely.
type YouTubeDataClient struct {
	service *ytapi.Service
	opts    Options
	limiter *rate.Limiter
}

// NewYouTubeDataClient creates a new YouTube data client
func NewYouTubeDataClient(opts Options) (*YouTubeDataClient, error) {
	if opts.Timeout <= 0 {
		return nil, fmt.Errorf("YouTube client timeout must be positive")
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	return &YouTubeDataClient{
		opts:    opts,
		limiter: limiter,
	}, nil
}

// Connect establishes a connection to the YouTube API
func (c *YouTubeDataClient) Connect(ctx context.Context) error {
	log.Info().Dur("timeout", c.opts.Timeout).Msg("Connecting to YouTube API")

	httpClient := &http.Client{
		Timeout: c.opts.Timeout,
	}

	clientOpts := []option.ClientOption{
		option.WithHTTPClient(httpClient),
		option.WithoutAuthentication(),
	}
	if c.opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(c.opts.Endpoint))
	}

	service, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create YouTube service")
		return fmt.Errorf("failed to create YouTube service: %w", err)
	}

	c.service = service
	log.Info().Msg("Connected to YouTube API successfully")
	return nil
}

// Disconnect closes the connection to the YouTube API
func (c *YouTubeDataClient) Disconnect(ctx context.Context) error {
	// No explicit disconnect needed for the YouTube API client
	c.service = nil
	return nil
}

// Search returns one page of a channel search.
func (c *YouTubeDataClient) Search(ctx context.Context, req SearchRequest, key string) (*youtube.SearchPage, error) {
	if c.service == nil {
		return nil, fmt.Errorf("YouTube client not connected")
	}

	ctx, cancel, err := c.prepare(ctx, "search")
	if err != nil {
		return nil, err
	}
	defer cancel()

	call := c.service.Search.List([]string{"id", "snippet"}).
		ChannelId(req.ChannelID).
		Q(req.Query).
		Type("video").
		Order(req.Order).
		MaxResults(req.PageSize).
		Fields(searchFields)

	if req.PageToken != "" {
		call = call.PageToken(req.PageToken)
	}

	response, err := call.Context(ctx).Do(googleapi.QueryParameter("key", key))
	if err != nil {
		return nil, transportError("search", err)
	}

	page := &youtube.SearchPage{
		Items:         make([]youtube.SearchItem, 0, len(response.Items)),
		NextPageToken: response.NextPageToken,
	}

	for _, item := range response.Items {
		if item == nil || item.Id == nil || item.Snippet == nil || item.Id.VideoId == "" {
			log.Warn().Str("channel_id", req.ChannelID).Msg("Skipping search result without video id or snippet")
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			log.Warn().Err(err).Str("video_id", item.Id.VideoId).Str("date", item.Snippet.PublishedAt).
				Msg("Failed to parse video published date")
			continue
		}

		channelID := item.Snippet.ChannelId
		if channelID == "" {
			channelID = req.ChannelID
		}

		page.Items = append(page.Items, youtube.SearchItem{
			VideoID:     item.Id.VideoId,
			ChannelID:   channelID,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
			PublishedAt: publishedAt,
		})
	}

	log.Debug().
		Str("channel_id", req.ChannelID).
		Int("item_count", len(page.Items)).
		Bool("has_next", page.HasNext()).
		Msg("Retrieved search page")

	return page, nil
}

// FetchDetails returns the duration of a video. A response without a parseable
// duration yields details with a nil Duration rather than an error.
func (c *YouTubeDataClient) FetchDetails(ctx context.Context, videoID string, key string) (*youtube.VideoDetails, error) {
	if c.service == nil {
		return nil, fmt.Errorf("YouTube client not connected")
	}

	ctx, cancel, err := c.prepare(ctx, "details")
	if err != nil {
		return nil, err
	}
	defer cancel()

	response, err := c.service.Videos.List([]string{"contentDetails"}).
		Id(videoID).
		Context(ctx).
		Do(googleapi.QueryParameter("key", key))
	if err != nil {
		return nil, transportError("details", err)
	}

	if len(response.Items) == 0 || response.Items[0] == nil {
		return nil, &DataError{Op: "details", VideoID: videoID, Field: "item"}
	}

	details := &youtube.VideoDetails{VideoID: videoID}
	cd := response.Items[0].ContentDetails
	if cd == nil || cd.Duration == "" {
		return details, nil
	}

	d, err := classify.ParseDuration(cd.Duration)
	if err != nil {
		log.Warn().Err(err).Str("video_id", videoID).Msg("Ignoring unparseable video duration")
		return details, nil
	}
	details.Duration = &d
	return details, nil
}

// FetchStatistics returns the view count of a video.
func (c *YouTubeDataClient) FetchStatistics(ctx context.Context, videoID string, key string) (*youtube.VideoStatistics, error) {
	if c.service == nil {
		return nil, fmt.Errorf("YouTube client not connected")
	}

	ctx, cancel, err := c.prepare(ctx, "statistics")
	if err != nil {
		return nil, err
	}
	defer cancel()

	response, err := c.service.Videos.List([]string{"statistics"}).
		Id(videoID).
		Context(ctx).
		Do(googleapi.QueryParameter("key", key))
	if err != nil {
		return nil, transportError("statistics", err)
	}

	if len(response.Items) == 0 || response.Items[0] == nil || response.Items[0].Statistics == nil {
		return nil, &DataError{Op: "statistics", VideoID: videoID, Field: "statistics"}
	}

	views := int64(response.Items[0].Statistics.ViewCount)
	return &youtube.VideoStatistics{
		VideoID:   videoID,
		ViewCount: &views,
	}, nil
}

// prepare waits for a limiter token and applies the per-call timeout.
func (c *YouTubeDataClient) prepare(ctx context.Context, op string) (context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// cancellation is the caller's, not a failing key
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &TransportError{Op: op, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	return ctx, cancel, nil
}

func transportError(op string, err error) error {
	te := &TransportError{Op: op, Err: err}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		te.StatusCode = gerr.Code
	}
	return te
}
