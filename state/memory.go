package state

import (
	"context"
	"sort"
	"sync"

	"github.com/researchaccelerator-hub/song-tracker/model"
)

// MemoryStore keeps everything in process memory. It backs tests and dry runs.
type MemoryStore struct {
	mutex    sync.RWMutex
	creators map[string]model.Creator
	excluded map[string]struct{}
	items    map[string]model.TrackedItem
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		creators: make(map[string]model.Creator),
		excluded: make(map[string]struct{}),
		items:    make(map[string]model.TrackedItem),
	}
}

func (m *MemoryStore) FindAllCreators(ctx context.Context) ([]model.Creator, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]model.Creator, 0, len(m.creators))
	for _, c := range m.creators {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out, nil
}

func (m *MemoryStore) SaveCreator(ctx context.Context, creator model.Creator) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.creators[creator.ChannelID] = creator
	return nil
}

func (m *MemoryStore) FindExcludedChannelIDs(ctx context.Context) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]string, 0, len(m.excluded))
	for id := range m.excluded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) ExcludeCreator(ctx context.Context, channelID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.excluded[channelID] = struct{}{}
	return nil
}

func (m *MemoryStore) FindByVideoID(ctx context.Context, videoID string) (model.TrackedItem, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	item, ok := m.items[videoID]
	if !ok {
		return model.TrackedItem{}, ErrNotFound
	}
	return item, nil
}

func (m *MemoryStore) FindAll(ctx context.Context) ([]model.TrackedItem, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sortedLocked(nil), nil
}

func (m *MemoryStore) FindByStatus(ctx context.Context, status model.Status) ([]model.TrackedItem, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.sortedLocked(&status), nil
}

func (m *MemoryStore) FindTopNByOrder(ctx context.Context, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error) {
	m.mutex.RLock()
	items := m.sortedLocked(nil)
	m.mutex.RUnlock()
	return topN(items, field, status, n)
}

func (m *MemoryStore) Save(ctx context.Context, item model.TrackedItem) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.items[item.VideoID] = item
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// sortedLocked returns items ordered by video id. Callers hold the read lock.
func (m *MemoryStore) sortedLocked(status *model.Status) []model.TrackedItem {
	out := make([]model.TrackedItem, 0, len(m.items))
	for _, item := range m.items {
		if status != nil && item.Status != *status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoID < out[j].VideoID })
	return out
}
