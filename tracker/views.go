package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/client"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ViewReport counts what a view-count run did.
type ViewReport struct {
	Items    int  `json:"items"`
	Updated  int  `json:"updated"`
	Weekly   int  `json:"weekly"`
	Skipped  int  `json:"skipped"`
	Failed   int  `json:"failed"`
	Boundary bool `json:"boundary"`
}

// Counts flattens the report for run summaries.
func (r ViewReport) Counts() map[string]int {
	return map[string]int{
		"items":   r.Items,
		"updated": r.Updated,
		"weekly":  r.Weekly,
		"skipped": r.Skipped,
		"failed":  r.Failed,
	}
}

func (r *ViewReport) count(outcome viewOutcome, weekly bool) {
	switch outcome {
	case viewUpdated:
		r.Updated++
		if weekly {
			r.Weekly++
		}
	case viewSkipped:
		r.Skipped++
	case viewFailed:
		r.Failed++
	}
}

type viewOutcome int

const (
	viewUpdated viewOutcome = iota
	viewSkipped
	viewFailed
)

// ViewCountUpdater polls the view count of every tracked item and maintains
// the daily and weekly deltas.
type ViewCountUpdater struct {
	api   client.VideoAPI
	keys  *client.KeyRotator
	store state.Store
	opts  Options
	now   func() time.Time
}

// NewViewCountUpdater creates a new ViewCountUpdater
func NewViewCountUpdater(api client.VideoAPI, keys *client.KeyRotator, store state.Store, opts Options) *ViewCountUpdater {
	return &ViewCountUpdater{
		api:   api,
		keys:  keys,
		store: store,
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// Run updates every tracked item regardless of status. On the weekly delta day
// the weekly counters are rolled as well. A failed item keeps its counters.
func (u *ViewCountUpdater) Run(ctx context.Context) (ViewReport, error) {
	var report ViewReport

	items, err := u.store.FindAll(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list tracked items: %w", err)
	}

	now := u.now()
	weekly := isBoundaryDay(now, u.opts.Location, u.opts.WeeklyDeltaDay)
	report.Items = len(items)
	report.Boundary = weekly

	log.Info().
		Int("items", len(items)).
		Bool("weekly", weekly).
		Str("weekday", now.In(u.opts.Location).Weekday().String()).
		Msg("Starting view count run")

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.ViewsConcurrency)

	for _, item := range items {
		item := item
		g.Go(func() error {
			outcome := viewFailed
			defer func() {
				mu.Lock()
				defer mu.Unlock()
				report.count(outcome, weekly)
			}()
			defer recoverUnit(log.With().Str("video_id", item.VideoID).Logger(), func() { outcome = viewFailed })

			outcome = u.updateItem(gctx, item, now, weekly)
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("items", report.Items).
		Int("updated", report.Updated).
		Int("weekly", report.Weekly).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("View count run finished")

	return report, ctx.Err()
}

func (u *ViewCountUpdater) updateItem(ctx context.Context, item model.TrackedItem, now time.Time, weekly bool) viewOutcome {
	logger := log.With().Str("video_id", item.VideoID).Logger()

	key, keyIndex := u.keys.Acquire()
	stats, err := u.api.FetchStatistics(ctx, item.VideoID, key)
	if err != nil {
		if client.IsTransport(err) {
			logger.Warn().Err(err).Int("key_index", keyIndex).Msg("Statistics fetch failed, rotating API key")
			u.keys.AdvanceFrom(keyIndex)
			return viewFailed
		}
		logger.Warn().Err(err).Msg("Statistics unavailable, skipping item")
		return viewSkipped
	}
	if stats == nil || stats.ViewCount == nil {
		logger.Warn().Msg("Statistics without view count, skipping item")
		return viewSkipped
	}

	views := *stats.ViewCount
	if views < 0 || (views == 0 && item.ViewCount > 0) {
		logger.Warn().
			Int64("reported", views).
			Int64("stored", item.ViewCount).
			Msg("Ignoring implausible view count")
		return viewSkipped
	}

	updated := applyViewCount(item, views, now, weekly)
	if err := u.store.Save(ctx, updated); err != nil {
		logger.Error().Err(err).Msg("Failed to save view counts")
		return viewFailed
	}

	logger.Debug().
		Int64("view_count", updated.ViewCount).
		Int64("increase_day", updated.ViewsIncreaseDay).
		Int64("increase_week", updated.ViewsIncreaseWeek).
		Msg("Updated view counts")
	return viewUpdated
}

// applyViewCount returns item with the daily counters rolled to views and,
// when weekly is set, the weekly counters too.
func applyViewCount(item model.TrackedItem, views int64, now time.Time, weekly bool) model.TrackedItem {
	item.ViewsIncreaseDay = views - item.ViewCount
	item.ViewCount = views
	item.UpdateDayTime = now

	if weekly {
		item.ViewsIncreaseWeek = views - item.LastWeekViewCount
		item.LastWeekViewCount = views
		item.UpdateWeekTime = now
	}
	return item
}
