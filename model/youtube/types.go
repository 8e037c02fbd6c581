// Package youtube contains typed views of the YouTube Data API responses used by the tracker
package youtube

import (
	"time"
)

// SearchItem is a single video returned by a channel search.
type SearchItem struct {
	VideoID     string
	ChannelID   string
	Title       string
	Description string
	PublishedAt time.Time
}

// SearchPage is one page of search results. NextPageToken is empty on the last page.
type SearchPage struct {
	Items         []SearchItem
	NextPageToken string
}

// HasNext reports whether another page can be requested.
func (p *SearchPage) HasNext() bool {
	return p != nil && p.NextPageToken != ""
}

// VideoDetails carries the content details of a video. Duration is nil when the
// API did not report one (live streams, premieres, restricted videos).
type VideoDetails struct {
	VideoID  string
	Duration *time.Duration
}

// VideoStatistics carries the statistics block of a video. ViewCount is nil when
// the statistics block was missing from the response.
type VideoStatistics struct {
	VideoID   string
	ViewCount *int64
}
