// Package config provides the configuration of the song tracker
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/researchaccelerator-hub/song-tracker/client"
	"github.com/researchaccelerator-hub/song-tracker/scheduler"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/researchaccelerator-hub/song-tracker/tracker"
)

// Config holds the whole configuration of the tracker
type Config struct {
	YouTube   YouTubeConfig   `mapstructure:"youtube"`
	Store     StoreConfig     `mapstructure:"store"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Views     ViewsConfig     `mapstructure:"views"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Ranking   RankingConfig   `mapstructure:"ranking"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Dapr      DaprConfig      `mapstructure:"dapr"`
	Log       LogConfig       `mapstructure:"log"`
	LockDir   string          `mapstructure:"lock_dir"` // Directory for per-job overlap locks, empty disables them
}

// YouTubeConfig configures the YouTube Data API client
type YouTubeConfig struct {
	APIKeys           []string      `mapstructure:"api_keys"`            // Ordered credentials, rotated on failure
	Timeout           time.Duration `mapstructure:"timeout"`             // Bound on every API call
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // 0 disables pacing
	Burst             int           `mapstructure:"burst"`
	Endpoint          string        `mapstructure:"endpoint"`
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Driver     string `mapstructure:"driver"` // memory, sqlite, postgres, dapr
	DSN        string `mapstructure:"dsn"`    // File path for sqlite, connection URL for postgres
	StateStore string `mapstructure:"state_store"`
	GRPCPort   string `mapstructure:"grpc_port"`
}

// DiscoveryConfig tunes the discovery job
type DiscoveryConfig struct {
	RecencyWindow time.Duration `mapstructure:"recency_window"`
	PageSize      int64         `mapstructure:"page_size"`
	MaxPages      int           `mapstructure:"max_pages"`
	Concurrency   int           `mapstructure:"concurrency"`
}

// ViewsConfig tunes the view-count job
type ViewsConfig struct {
	Concurrency    int    `mapstructure:"concurrency"`
	WeeklyDeltaDay string `mapstructure:"weekly_delta_day"`
}

// LifecycleConfig tunes the status transition job
type LifecycleConfig struct {
	StatusTransitionDay string `mapstructure:"status_transition_day"`
}

// ScheduleConfig holds the trigger timezone and one cron expression per job
type ScheduleConfig struct {
	Timezone  string `mapstructure:"timezone"`
	Discovery string `mapstructure:"discovery"`
	Views     string `mapstructure:"views"`
	Lifecycle string `mapstructure:"lifecycle"`
}

// RankingConfig configures the ranking cache
type RankingConfig struct {
	RedisURL string        `mapstructure:"redis_url"` // Empty disables the cache
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // Empty disables the endpoint
}

// DaprConfig configures the Dapr job host and event publication
type DaprConfig struct {
	Port   int    `mapstructure:"port"`
	PubSub string `mapstructure:"pubsub"` // Empty disables event publication
}

// LogConfig configures zerolog
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // auto, console, json
}

// DefaultConfig returns a configuration with the production defaults
func DefaultConfig() *Config {
	return &Config{
		YouTube: YouTubeConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Store: StoreConfig{
			Driver:     string(state.DriverSQLite),
			DSN:        "songtracker.db",
			StateStore: "statestore",
			GRPCPort:   "50001",
		},
		Discovery: DiscoveryConfig{
			RecencyWindow: tracker.DefaultRecencyWindow,
			PageSize:      tracker.DefaultPageSize,
			MaxPages:      tracker.DefaultMaxPages,
			Concurrency:   1,
		},
		Views: ViewsConfig{
			Concurrency:    1,
			WeeklyDeltaDay: "tuesday",
		},
		Lifecycle: LifecycleConfig{
			StatusTransitionDay: "monday",
		},
		Schedule: ScheduleConfig{
			Timezone:  "Asia/Seoul",
			Discovery: scheduler.DefaultDiscoverySchedule,
			Views:     scheduler.DefaultViewsSchedule,
			Lifecycle: scheduler.DefaultLifecycleSchedule,
		},
		Ranking: RankingConfig{
			CacheTTL: 10 * time.Minute,
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Dapr: DaprConfig{
			Port: 6000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.YouTube.Timeout <= 0 {
		return fmt.Errorf("youtube.timeout must be positive")
	}
	if c.YouTube.RequestsPerSecond < 0 {
		return fmt.Errorf("youtube.requests_per_second cannot be negative")
	}

	switch state.Driver(c.Store.Driver) {
	case state.DriverMemory, state.DriverSQLite, state.DriverDapr:
	case state.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid store.driver '%s', must be one of: memory, sqlite, postgres, dapr", c.Store.Driver)
	}

	if c.Discovery.RecencyWindow <= 0 {
		return fmt.Errorf("discovery.recency_window must be positive")
	}
	if c.Discovery.PageSize < 1 || c.Discovery.PageSize > 50 {
		return fmt.Errorf("discovery.page_size must be between 1 and 50")
	}
	if c.Discovery.MaxPages < 1 {
		return fmt.Errorf("discovery.max_pages must be at least 1")
	}
	if c.Discovery.Concurrency < 1 {
		return fmt.Errorf("discovery.concurrency must be at least 1")
	}
	if c.Views.Concurrency < 1 {
		return fmt.Errorf("views.concurrency must be at least 1")
	}

	if _, err := ParseWeekday(c.Views.WeeklyDeltaDay); err != nil {
		return fmt.Errorf("views.weekly_delta_day: %w", err)
	}
	transitionDay, err := ParseWeekday(c.Lifecycle.StatusTransitionDay)
	if err != nil {
		return fmt.Errorf("lifecycle.status_transition_day: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule.timezone '%s': %w", c.Schedule.Timezone, err)
	}
	if err := c.JobSchedule().Validate(); err != nil {
		return err
	}
	if err := scheduler.CheckWeekday(c.Schedule.Lifecycle, transitionDay); err != nil {
		return fmt.Errorf("schedule.lifecycle does not match lifecycle.status_transition_day: %w", err)
	}

	if c.Ranking.CacheTTL <= 0 {
		return fmt.Errorf("ranking.cache_ttl must be positive")
	}

	switch c.Log.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("invalid log.format '%s', must be one of: auto, console, json", c.Log.Format)
	}
	return nil
}

// Location returns the configured timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// JobSchedule returns the cron expressions of the three jobs.
func (c *Config) JobSchedule() scheduler.Schedule {
	return scheduler.Schedule{
		Discovery: c.Schedule.Discovery,
		Views:     c.Schedule.Views,
		Lifecycle: c.Schedule.Lifecycle,
	}
}

// TrackerOptions converts the job settings. Call after Validate.
func (c *Config) TrackerOptions() tracker.Options {
	deltaDay, _ := ParseWeekday(c.Views.WeeklyDeltaDay)
	transitionDay, _ := ParseWeekday(c.Lifecycle.StatusTransitionDay)
	return tracker.Options{
		Location:             c.Location(),
		RecencyWindow:        c.Discovery.RecencyWindow,
		PageSize:             c.Discovery.PageSize,
		MaxPages:             c.Discovery.MaxPages,
		WeeklyDeltaDay:       deltaDay,
		StatusTransitionDay:  transitionDay,
		DiscoveryConcurrency: c.Discovery.Concurrency,
		ViewsConcurrency:     c.Views.Concurrency,
	}
}

// StateConfig converts the persistence settings.
func (c *Config) StateConfig() state.Config {
	return state.Config{
		Driver: state.Driver(c.Store.Driver),
		DSN:    c.Store.DSN,
		DaprConfig: &state.DaprConfig{
			StateStoreName: c.Store.StateStore,
			GRPCPort:       c.Store.GRPCPort,
		},
	}
}

// ClientOptions converts the YouTube client settings.
func (c *Config) ClientOptions() client.Options {
	return client.Options{
		Timeout:           c.YouTube.Timeout,
		RequestsPerSecond: c.YouTube.RequestsPerSecond,
		Burst:             c.YouTube.Burst,
		Endpoint:          c.YouTube.Endpoint,
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full or three-letter English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for full, day := range weekdays {
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return day, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday '%s'", s)
}
