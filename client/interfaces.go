package client

import (
	"context"

	"github.com/researchaccelerator-hub/song-tracker/model/youtube"
)

// SearchRequest describes one page of a channel search.
type SearchRequest struct {
	ChannelID string
	Query     string
	Order     string // "date" for newest first
	PageToken string
	PageSize  int64
}

// VideoAPI is the subset of the video platform used by the tracker. Every call
// takes the credential to use; failures are returned as *TransportError or
// *DataError and are never retried internally.
type VideoAPI interface {
	// Search returns one page of videos published by a channel
	Search(ctx context.Context, req SearchRequest, key string) (*youtube.SearchPage, error)

	// FetchDetails returns the content details (duration) of a video
	FetchDetails(ctx context.Context, videoID string, key string) (*youtube.VideoDetails, error)

	// FetchStatistics returns the statistics (view count) of a video
	FetchStatistics(ctx context.Context, videoID string, key string) (*youtube.VideoStatistics, error)
}
