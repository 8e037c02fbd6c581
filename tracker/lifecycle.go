package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/rs/zerolog/log"
)

// LifecycleReport counts what a lifecycle run did.
type LifecycleReport struct {
	Selected     int  `json:"selected"`
	Transitioned int  `json:"transitioned"`
	Failed       int  `json:"failed"`
	OffBoundary  bool `json:"offBoundary"`
}

// Counts flattens the report for run summaries.
func (r LifecycleReport) Counts() map[string]int {
	return map[string]int{
		"selected":     r.Selected,
		"transitioned": r.Transitioned,
		"failed":       r.Failed,
	}
}

// LifecycleManager moves new items to existing on the status transition day.
type LifecycleManager struct {
	store state.Store
	opts  Options
	now   func() time.Time
}

// NewLifecycleManager creates a new LifecycleManager
func NewLifecycleManager(store state.Store, opts Options) *LifecycleManager {
	return &LifecycleManager{
		store: store,
		opts:  opts.withDefaults(),
		now:   time.Now,
	}
}

// Run transitions every new item. Off the transition day it does nothing
// unless force is set. Re-running the same day selects nothing.
func (l *LifecycleManager) Run(ctx context.Context, force bool) (LifecycleReport, error) {
	var report LifecycleReport

	now := l.now()
	if !force && !isBoundaryDay(now, l.opts.Location, l.opts.StatusTransitionDay) {
		report.OffBoundary = true
		log.Info().
			Str("weekday", now.In(l.opts.Location).Weekday().String()).
			Str("transition_day", l.opts.StatusTransitionDay.String()).
			Msg("Not the status transition day, skipping lifecycle run")
		return report, nil
	}

	items, err := l.store.FindByStatus(ctx, model.StatusNew)
	if err != nil {
		return report, fmt.Errorf("failed to list new items: %w", err)
	}
	report.Selected = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		item.Status = model.StatusExisting
		item.UpdateDayTime = now
		if err := l.store.Save(ctx, item); err != nil {
			log.Error().Err(err).Str("video_id", item.VideoID).Msg("Failed to save status transition")
			report.Failed++
			continue
		}
		report.Transitioned++
	}

	log.Info().
		Int("selected", report.Selected).
		Int("transitioned", report.Transitioned).
		Int("failed", report.Failed).
		Msg("Lifecycle run finished")

	return report, nil
}
