package state

import (
	"context"
	"errors"

	"github.com/researchaccelerator-hub/song-tracker/model"
)

// ErrNotFound is returned when a lookup by natural key finds nothing.
var ErrNotFound = errors.New("state: not found")

// Store persists creators and tracked items. Save is an upsert keyed by VideoID,
// so repeating a save is harmless. Implementations must be safe for concurrent
// use by the discovery and view-count jobs.
type Store interface {
	// Creators
	FindAllCreators(ctx context.Context) ([]model.Creator, error)
	SaveCreator(ctx context.Context, creator model.Creator) error
	FindExcludedChannelIDs(ctx context.Context) ([]string, error)
	ExcludeCreator(ctx context.Context, channelID string) error

	// Tracked items
	FindByVideoID(ctx context.Context, videoID string) (model.TrackedItem, error)
	FindAll(ctx context.Context) ([]model.TrackedItem, error)
	FindByStatus(ctx context.Context, status model.Status) ([]model.TrackedItem, error)
	// FindTopNByOrder returns at most n items ordered by field descending,
	// restricted to status when status is non-nil.
	FindTopNByOrder(ctx context.Context, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error)
	Save(ctx context.Context, item model.TrackedItem) error

	// Cleanup
	Close() error
}

// Driver names a Store backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverDapr     Driver = "dapr"
)

// Config contains the configuration for all Store implementations
type Config struct {
	Driver Driver

	// DSN is a file path for sqlite and a connection URL for postgres
	DSN string

	// Dapr-specific configuration
	DaprConfig *DaprConfig
}

// DaprConfig contains Dapr-specific configuration
type DaprConfig struct {
	StateStoreName string
	GRPCPort       string
}
