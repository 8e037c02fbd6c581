package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/researchaccelerator-hub/song-tracker/client"
	"github.com/researchaccelerator-hub/song-tracker/config"
	"github.com/researchaccelerator-hub/song-tracker/events"
	"github.com/researchaccelerator-hub/song-tracker/metrics"
	"github.com/researchaccelerator-hub/song-tracker/ranking"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.config, c.configErr = config.Load(path, cmd.Flags())
	})
	return c.config, c.configErr
}

// app holds the components built from the configuration for one command.
type app struct {
	cfg       *config.Config
	store     state.Store
	cache     *ranking.Cache
	rankings  *ranking.Service
	publisher events.Publisher
	runner    *tracker.Runner
}

// openStore builds the store and ranking read path, which every command needs.
func (c *commandContext) openStore(ctx context.Context) (*app, error) {
	cfg := c.config
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}

	store, err := state.NewStore(ctx, cfg.StateConfig())
	if err != nil {
		return nil, err
	}
	cache := ranking.NewCache(ctx, cfg.Ranking.RedisURL, cfg.Ranking.CacheTTL)

	return &app{
		cfg:      cfg,
		store:    store,
		cache:    cache,
		rankings: ranking.NewService(store, cache),
	}, nil
}

// openTracker builds the whole job pipeline on top of openStore.
func (c *commandContext) openTracker(ctx context.Context) (*app, error) {
	a, err := c.openStore(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := client.NewKeyRotator(a.cfg.YouTube.APIKeys)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("no usable YouTube API keys: %w", err)
	}

	api, err := client.NewYouTubeDataClient(a.cfg.ClientOptions())
	if err != nil {
		a.close()
		return nil, err
	}
	if err := api.Connect(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.publisher = events.NoopPublisher{}
	if a.cfg.Dapr.PubSub != "" {
		publisher, err := events.NewDaprPublisher(a.cfg.Dapr.PubSub)
		if err != nil {
			log.Warn().Err(err).Msg("Event publication disabled")
		} else {
			a.publisher = publisher
		}
	}

	metrics.Init()
	opts := a.cfg.TrackerOptions()
	a.runner = tracker.NewRunner(
		tracker.NewDiscoveryEngine(api, keys, a.store, a.publisher, opts),
		tracker.NewViewCountUpdater(api, keys, a.store, opts),
		tracker.NewLifecycleManager(a.store, opts),
		tracker.RunnerOptions{
			Publisher: a.publisher,
			Cache:     a.rankings,
			LockDir:   a.cfg.LockDir,
		},
	)
	return a, nil
}

func (a *app) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}
	if err := a.cache.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close ranking cache")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}
