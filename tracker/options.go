// Package tracker implements the scheduled jobs: discovery of new song videos,
// daily view-count polling and the weekly status transition.
package tracker

import (
	"time"
)

// Defaults matching the production schedule.
const (
	DefaultRecencyWindow = 72 * time.Hour
	DefaultPageSize      = 20
	DefaultMaxPages      = 25
)

// Options tunes the jobs. Zero values are replaced by defaults.
type Options struct {
	// Location is the timezone used to decide weekly boundaries
	Location *time.Location
	// RecencyWindow keeps only items published strictly after now minus this window
	RecencyWindow time.Duration
	// PageSize is the number of search results requested per page
	PageSize int64
	// MaxPages bounds pagination per creator and run
	MaxPages int

	// WeeklyDeltaDay is the weekday on which weekly view deltas are computed
	WeeklyDeltaDay time.Weekday
	// StatusTransitionDay is the weekday on which new items become existing
	StatusTransitionDay time.Weekday

	DiscoveryConcurrency int
	ViewsConcurrency     int
}

// DefaultOptions returns the production defaults: Asia/Seoul, Tuesday deltas
// and Monday transitions.
func DefaultOptions() Options {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return Options{
		Location:             loc,
		RecencyWindow:        DefaultRecencyWindow,
		PageSize:             DefaultPageSize,
		MaxPages:             DefaultMaxPages,
		WeeklyDeltaDay:       time.Tuesday,
		StatusTransitionDay:  time.Monday,
		DiscoveryConcurrency: 1,
		ViewsConcurrency:     1,
	}
}

func (o Options) withDefaults() Options {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.RecencyWindow <= 0 {
		o.RecencyWindow = DefaultRecencyWindow
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.DiscoveryConcurrency < 1 {
		o.DiscoveryConcurrency = 1
	}
	if o.ViewsConcurrency < 1 {
		o.ViewsConcurrency = 1
	}
	return o
}

// isBoundaryDay reports whether now, seen in loc, falls on day.
func isBoundaryDay(now time.Time, loc *time.Location, day time.Weekday) bool {
	return now.In(loc).Weekday() == day
}
