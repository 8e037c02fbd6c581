package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/classify"
	"github.com/researchaccelerator-hub/song-tracker/client"
	"github.com/researchaccelerator-hub/song-tracker/events"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/model/youtube"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DiscoveryReport counts what a discovery run did.
type DiscoveryReport struct {
	Creators   int `json:"creators"`
	Pages      int `json:"pages"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Filtered   int `json:"filtered"`
	Stale      int `json:"stale"`
	Failed     int `json:"failed"`
}

func (r *DiscoveryReport) add(o DiscoveryReport) {
	r.Creators += o.Creators
	r.Pages += o.Pages
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Filtered += o.Filtered
	r.Stale += o.Stale
	r.Failed += o.Failed
}

// Counts flattens the report for run summaries.
func (r DiscoveryReport) Counts() map[string]int {
	return map[string]int{
		"creators":   r.Creators,
		"pages":      r.Pages,
		"inserted":   r.Inserted,
		"duplicates": r.Duplicates,
		"filtered":   r.Filtered,
		"stale":      r.Stale,
		"failed":     r.Failed,
	}
}

// DiscoveryEngine finds recent song uploads of every tracked creator and
// stores the ones it has not seen before.
type DiscoveryEngine struct {
	api       client.VideoAPI
	keys      *client.KeyRotator
	store     state.Store
	publisher events.Publisher
	opts      Options
	now       func() time.Time
}

// NewDiscoveryEngine creates a new DiscoveryEngine
func NewDiscoveryEngine(api client.VideoAPI, keys *client.KeyRotator, store state.Store, publisher events.Publisher, opts Options) *DiscoveryEngine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &DiscoveryEngine{
		api:       api,
		keys:      keys,
		store:     store,
		publisher: publisher,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// Run searches every non-excluded creator. Failures are contained to the
// creator or item they happen on; only failing to list creators fails the run.
func (e *DiscoveryEngine) Run(ctx context.Context) (DiscoveryReport, error) {
	var report DiscoveryReport

	creators, err := e.store.FindAllCreators(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list creators: %w", err)
	}

	excludedIDs, err := e.store.FindExcludedChannelIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list excluded creators: %w", err)
	}
	excluded := make(map[string]struct{}, len(excludedIDs))
	for _, id := range excludedIDs {
		excluded[id] = struct{}{}
	}

	cutoff := e.now().Add(-e.opts.RecencyWindow)
	log.Info().
		Int("creators", len(creators)).
		Int("excluded", len(excluded)).
		Time("cutoff", cutoff).
		Msg("Starting discovery run")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DiscoveryConcurrency)

	for _, creator := range creators {
		if _, skip := excluded[creator.ChannelID]; skip {
			log.Debug().Str("channel_id", creator.ChannelID).Msg("Skipping excluded creator")
			continue
		}

		creator := creator
		g.Go(func() error {
			r := DiscoveryReport{Creators: 1}
			defer func() {
				mu.Lock()
				report.add(r)
				mu.Unlock()
			}()
			defer recoverUnit(log.With().Str("channel_id", creator.ChannelID).Logger(), func() { r.Failed++ })

			e.discoverCreator(gctx, creator, cutoff, &r)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("creators", report.Creators).
		Int("pages", report.Pages).
		Int("inserted", report.Inserted).
		Int("duplicates", report.Duplicates).
		Int("filtered", report.Filtered).
		Int("stale", report.Stale).
		Int("failed", report.Failed).
		Msg("Discovery run finished")

	return report, ctx.Err()
}

// discoverCreator paginates one creator's recent uploads. Results come newest
// first, so a page reaching the cutoff is the last page requested.
func (e *DiscoveryEngine) discoverCreator(ctx context.Context, creator model.Creator, cutoff time.Time, report *DiscoveryReport) {
	logger := log.With().Str("channel_id", creator.ChannelID).Str("creator", creator.Name).Logger()

	pageToken := ""
	for page := 0; page < e.opts.MaxPages; page++ {
		result, err := e.searchPage(ctx, creator.ChannelID, pageToken)
		if err != nil {
			logger.Error().Err(err).Int("page", page).Msg("Aborting creator for this run")
			report.Failed++
			return
		}
		report.Pages++

		reachedCutoff := false
		for _, item := range result.Items {
			if !item.PublishedAt.After(cutoff) {
				report.Stale++
				reachedCutoff = true
				continue
			}
			e.processItem(ctx, creator, item, report)
		}

		if reachedCutoff || !result.HasNext() {
			return
		}
		pageToken = result.NextPageToken
	}

	logger.Warn().Int("max_pages", e.opts.MaxPages).Msg("Stopped paginating at page limit")
}

// searchPage requests one page, rotating to the next key after each transport
// failure and retrying the same page token. It gives up once every key failed.
func (e *DiscoveryEngine) searchPage(ctx context.Context, channelID, pageToken string) (*youtube.SearchPage, error) {
	req := client.SearchRequest{
		ChannelID: channelID,
		Query:     classify.SearchQuery,
		Order:     "date",
		PageToken: pageToken,
		PageSize:  e.opts.PageSize,
	}

	var lastErr error
	for attempt := 1; attempt <= e.keys.Size(); attempt++ {
		key, keyIndex := e.keys.Acquire()
		page, err := e.api.Search(ctx, req, key)
		if err == nil {
			return page, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !client.IsTransport(err) {
			return nil, err
		}

		log.Warn().Err(err).
			Str("channel_id", channelID).
			Int("key_index", keyIndex).
			Int("attempt", attempt).
			Msg("Search failed, rotating API key")
		e.keys.AdvanceFrom(keyIndex)
	}
	return nil, fmt.Errorf("search failed with all %d keys: %w", e.keys.Size(), lastErr)
}

func (e *DiscoveryEngine) processItem(ctx context.Context, creator model.Creator, item youtube.SearchItem, report *DiscoveryReport) {
	logger := log.With().Str("video_id", item.VideoID).Str("channel_id", creator.ChannelID).Logger()

	if !classify.IsSongRelated(item.Title) {
		logger.Debug().Str("title", item.Title).Msg("Skipping item without song keywords")
		report.Filtered++
		return
	}

	_, err := e.store.FindByVideoID(ctx, item.VideoID)
	if err == nil {
		report.Duplicates++
		return
	}
	if !errors.Is(err, state.ErrNotFound) {
		logger.Error().Err(err).Msg("Failed to look up item")
		report.Failed++
		return
	}

	now := e.now()
	tracked := model.TrackedItem{
		VideoID:        item.VideoID,
		ChannelID:      creator.ChannelID,
		CreatorName:    creator.Name,
		Title:          item.Title,
		Description:    model.TruncateDescription(item.Description),
		PublishedAt:    item.PublishedAt,
		AddedTime:      now,
		Classification: e.classifyItem(ctx, item),
		Status:         model.StatusNew,
		UpdateDayTime:  now,
		UpdateWeekTime: now,
	}

	if err := e.store.Save(ctx, tracked); err != nil {
		logger.Error().Err(err).Msg("Failed to save discovered item")
		report.Failed++
		return
	}
	report.Inserted++

	logger.Info().
		Str("title", tracked.Title).
		Str("classification", string(tracked.Classification)).
		Msg("Tracking new song")

	if err := e.publisher.PublishDiscovered(ctx, tracked); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish discovered event")
	}
}

// classifyItem looks up the duration once. Any failure falls back to the
// title heuristic; transport failures also rotate the key.
func (e *DiscoveryEngine) classifyItem(ctx context.Context, item youtube.SearchItem) model.Classification {
	key, keyIndex := e.keys.Acquire()
	details, err := e.api.FetchDetails(ctx, item.VideoID, key)
	if err != nil {
		log.Warn().Err(err).Str("video_id", item.VideoID).Msg("Duration lookup failed, classifying by title")
		if client.IsTransport(err) {
			e.keys.AdvanceFrom(keyIndex)
		}
		return classify.Classify(nil, item.Title)
	}
	if details == nil {
		return classify.Classify(nil, item.Title)
	}
	return classify.Classify(details.Duration, item.Title)
}
