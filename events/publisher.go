package events

import (
	"context"
	"encoding/json"
	"fmt"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/google/uuid"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
)

// Publisher emits tracker events. Callers log publish failures and carry on.
type Publisher interface {
	PublishDiscovered(ctx context.Context, item model.TrackedItem) error
	PublishRunCompleted(ctx context.Context, message RunCompletedMessage) error
	Close() error
}

// eventClient is the subset of the Dapr client used for publishing.
type eventClient interface {
	PublishEvent(ctx context.Context, pubsubName, topicName string, data interface{}, opts ...daprc.PublishEventOption) error
	Close()
}

// DaprPublisher publishes events to a Dapr pub/sub component
type DaprPublisher struct {
	client     eventClient
	pubsubName string
}

// NewDaprPublisher creates a publisher connected to the local Dapr sidecar
func NewDaprPublisher(pubsubName string) (*DaprPublisher, error) {
	if pubsubName == "" {
		return nil, fmt.Errorf("pubsub component name cannot be empty")
	}

	daprClient, err := daprc.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Dapr client: %w", err)
	}

	return &DaprPublisher{
		client:     daprClient,
		pubsubName: pubsubName,
	}, nil
}

// PublishDiscovered publishes a song.discovered event
func (p *DaprPublisher) PublishDiscovered(ctx context.Context, item model.TrackedItem) error {
	message := NewSongDiscoveredMessage(item)

	if err := p.publish(ctx, TopicSongDiscovered, message); err != nil {
		return err
	}

	log.Debug().
		Str("video_id", item.VideoID).
		Str("channel_id", item.ChannelID).
		Str("event_id", message.EventID).
		Msg("Published song discovered event")
	return nil
}

// PublishRunCompleted publishes a run.completed event
func (p *DaprPublisher) PublishRunCompleted(ctx context.Context, message RunCompletedMessage) error {
	if message.EventID == "" {
		message.EventID = uuid.New().String()
	}

	if err := p.publish(ctx, TopicRunCompleted, message); err != nil {
		return err
	}

	log.Debug().
		Str("run_id", message.RunID).
		Str("job", message.Job).
		Str("outcome", message.Outcome).
		Msg("Published run completed event")
	return nil
}

func (p *DaprPublisher) publish(ctx context.Context, topic string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", topic, err)
	}

	if err := p.client.PublishEvent(ctx, p.pubsubName, topic, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}
	return nil
}

// Close closes the Dapr client
func (p *DaprPublisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// NoopPublisher discards every event. Used when pub/sub is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishDiscovered(ctx context.Context, item model.TrackedItem) error {
	return nil
}

func (NoopPublisher) PublishRunCompleted(ctx context.Context, message RunCompletedMessage) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
