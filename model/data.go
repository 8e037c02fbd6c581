package model

import (
	"fmt"
	"strings"
	"time"
)

// MaxDescriptionLength is the number of characters kept from a video description.
const MaxDescriptionLength = 255

// Classification distinguishes regular videos from shorts.
type Classification string

const (
	ClassificationVideo Classification = "video"
	ClassificationShort Classification = "short"
)

// Status is the lifecycle state of a tracked item.
type Status string

const (
	// StatusNew marks items discovered since the last weekly boundary
	StatusNew Status = "new"
	// StatusExisting marks items that have been through at least one weekly boundary
	StatusExisting Status = "existing"
)

// ParseStatus converts a string into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusNew:
		return StatusNew, nil
	case StatusExisting:
		return StatusExisting, nil
	}
	return "", fmt.Errorf("invalid status %q, must be one of: new, existing", s)
}

// Creator is a tracked content channel. Creators are managed by an admin and
// are read-only to the discovery and metrics jobs.
type Creator struct {
	ChannelID string `json:"channelId"`
	Name      string `json:"name"`
}

// TrackedItem is a discovered song video or short together with its view metrics.
type TrackedItem struct {
	VideoID        string         `json:"videoId"`
	ChannelID      string         `json:"channelId"`
	CreatorName    string         `json:"creatorName"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	PublishedAt    time.Time      `json:"publishedAt"`
	AddedTime      time.Time      `json:"addedTime"`
	Classification Classification `json:"classification"`
	Status         Status         `json:"status"`

	ViewCount         int64 `json:"viewCount"`
	ViewsIncreaseDay  int64 `json:"viewsIncreaseDay"`
	ViewsIncreaseWeek int64 `json:"viewsIncreaseWeek"`
	LastWeekViewCount int64 `json:"lastWeekViewCount"`

	UpdateDayTime  time.Time `json:"updateDayTime"`
	UpdateWeekTime time.Time `json:"updateWeekTime"`
}

// URL returns the watch URL of the item.
func (t TrackedItem) URL() string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", t.VideoID)
}

// TruncateDescription cuts a description down to MaxDescriptionLength characters.
// Length is counted in runes so multi-byte titles are never split mid-character.
func TruncateDescription(description string) string {
	runes := []rune(description)
	if len(runes) <= MaxDescriptionLength {
		return description
	}
	return string(runes[:MaxDescriptionLength])
}

// OrderField names a TrackedItem field usable for top-N ranking reads.
type OrderField string

const (
	OrderByViewsIncreaseWeek OrderField = "views_increase_week"
	OrderByViewsIncreaseDay  OrderField = "views_increase_day"
	OrderByPublishedAt       OrderField = "published_at"
	OrderByViewCount         OrderField = "view_count"
)

// Valid reports whether the field is one of the supported ranking fields.
func (f OrderField) Valid() bool {
	switch f {
	case OrderByViewsIncreaseWeek, OrderByViewsIncreaseDay, OrderByPublishedAt, OrderByViewCount:
		return true
	}
	return false
}
