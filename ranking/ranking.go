// Package ranking serves the top-N reads over tracked items.
package ranking

import (
	"context"
	"fmt"
	"strings"

	"github.com/researchaccelerator-hub/song-tracker/metrics"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/rs/zerolog/log"
)

// DefaultLimit is the ranking size used when the caller asks for none.
const DefaultLimit = 10

// MaxLimit caps a single ranking read.
const MaxLimit = 100

// Kind names a ranking.
type Kind string

const (
	KindWeekly Kind = "weekly"
	KindDaily  Kind = "daily"
	KindLatest Kind = "latest"
)

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindWeekly:
		return KindWeekly, nil
	case KindDaily:
		return KindDaily, nil
	case KindLatest:
		return KindLatest, nil
	}
	return "", fmt.Errorf("unknown ranking %q, must be one of: weekly, daily, latest", s)
}

// Service answers ranking queries from the store, through the cache when one
// is enabled.
type Service struct {
	store state.Store
	cache *Cache
}

// NewService creates a new ranking Service. cache may be nil.
func NewService(store state.Store, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// TopWeekly returns existing items with the largest weekly view growth.
func (s *Service) TopWeekly(ctx context.Context, n int) ([]model.TrackedItem, error) {
	return s.Top(ctx, KindWeekly, n)
}

// TopDaily returns items with the largest daily view growth.
func (s *Service) TopDaily(ctx context.Context, n int) ([]model.TrackedItem, error) {
	return s.Top(ctx, KindDaily, n)
}

// Latest returns the most recently published items.
func (s *Service) Latest(ctx context.Context, n int) ([]model.TrackedItem, error) {
	return s.Top(ctx, KindLatest, n)
}

// Top returns ranking kind limited to n items.
func (s *Service) Top(ctx context.Context, kind Kind, n int) ([]model.TrackedItem, error) {
	if n <= 0 {
		n = DefaultLimit
	}
	if n > MaxLimit {
		n = MaxLimit
	}

	field, status, err := query(kind)
	if err != nil {
		return nil, err
	}

	key := cacheKey(kind, n)
	if items, ok := s.cache.Get(ctx, key); ok {
		metrics.Metrics.CacheHits.Inc()
		return items, nil
	}
	if s.cache.Enabled() {
		metrics.Metrics.CacheMisses.Inc()
	}

	items, err := s.store.FindTopNByOrder(ctx, field, status, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s ranking: %w", kind, err)
	}

	if err := s.cache.Set(ctx, key, items); err != nil {
		log.Warn().Err(err).Str("ranking", string(kind)).Msg("Failed to cache ranking")
	}
	return items, nil
}

// Invalidate drops cached rankings after the underlying data changed.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Invalidate(ctx)
}

func query(kind Kind) (model.OrderField, *model.Status, error) {
	switch kind {
	case KindWeekly:
		existing := model.StatusExisting
		return model.OrderByViewsIncreaseWeek, &existing, nil
	case KindDaily:
		return model.OrderByViewsIncreaseDay, nil, nil
	case KindLatest:
		return model.OrderByPublishedAt, nil, nil
	}
	return "", nil, fmt.Errorf("unknown ranking %q", kind)
}
