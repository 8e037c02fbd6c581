// Package events publishes tracker events through Dapr pub/sub
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/researchaccelerator-hub/song-tracker/model"
)

// Topic names
const (
	TopicSongDiscovered = "song.discovered"
	TopicRunCompleted   = "run.completed"
)

// SongDiscoveredMessage announces a newly tracked item.
type SongDiscoveredMessage struct {
	EventID   string            `json:"eventId"`
	Item      model.TrackedItem `json:"item"`
	URL       string            `json:"url"`
	Timestamp time.Time         `json:"timestamp"`
}

// RunCompletedMessage summarises a finished job run.
type RunCompletedMessage struct {
	EventID    string         `json:"eventId"`
	RunID      string         `json:"runId"`
	Job        string         `json:"job"`
	Outcome    string         `json:"outcome"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Counts     map[string]int `json:"counts,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewSongDiscoveredMessage creates a message for item
func NewSongDiscoveredMessage(item model.TrackedItem) SongDiscoveredMessage {
	return SongDiscoveredMessage{
		EventID:   uuid.New().String(),
		Item:      item,
		URL:       item.URL(),
		Timestamp: time.Now(),
	}
}
