package state

import (
	"fmt"
	"sort"

	"github.com/researchaccelerator-hub/song-tracker/model"
)

// topN filters items by status (when given), sorts them by field descending and
// keeps the first n. Ties are broken by video id so results are stable.
func topN(items []model.TrackedItem, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unsupported order field %q", field)
	}
	if n <= 0 {
		return []model.TrackedItem{}, nil
	}

	filtered := make([]model.TrackedItem, 0, len(items))
	for _, item := range items {
		if status != nil && item.Status != *status {
			continue
		}
		filtered = append(filtered, item)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		switch field {
		case model.OrderByViewsIncreaseWeek:
			if a.ViewsIncreaseWeek != b.ViewsIncreaseWeek {
				return a.ViewsIncreaseWeek > b.ViewsIncreaseWeek
			}
		case model.OrderByViewsIncreaseDay:
			if a.ViewsIncreaseDay != b.ViewsIncreaseDay {
				return a.ViewsIncreaseDay > b.ViewsIncreaseDay
			}
		case model.OrderByViewCount:
			if a.ViewCount != b.ViewCount {
				return a.ViewCount > b.ViewCount
			}
		case model.OrderByPublishedAt:
			if !a.PublishedAt.Equal(b.PublishedAt) {
				return a.PublishedAt.After(b.PublishedAt)
			}
		}
		return a.VideoID < b.VideoID
	})

	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered, nil
}

// orderColumn maps an order field onto its SQL column. Only whitelisted fields
// reach a query string.
func orderColumn(field model.OrderField) (string, error) {
	switch field {
	case model.OrderByViewsIncreaseWeek:
		return "views_increase_week", nil
	case model.OrderByViewsIncreaseDay:
		return "views_increase_day", nil
	case model.OrderByPublishedAt:
		return "published_at", nil
	case model.OrderByViewCount:
		return "view_count", nil
	}
	return "", fmt.Errorf("unsupported order field %q", field)
}
