package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"sync"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultStateStoreName = "statestore"
	defaultDaprGRPCPort   = "50001"

	creatorsKey      = "creators"
	excludedKey      = "excluded-creators"
	songIndexKey     = "song-index"
	songKeyPrefix    = "song/"
	bulkParallelism  = 10
	maxDaprMessageMB = 16
)

// daprStateClient is the subset of the Dapr client used by DaprStore.
type daprStateClient interface {
	SaveState(ctx context.Context, storeName, key string, data []byte, meta map[string]string, so ...daprc.StateOption) error
	GetState(ctx context.Context, storeName, key string, meta map[string]string) (*daprc.StateItem, error)
	GetBulkState(ctx context.Context, storeName string, keys []string, meta map[string]string, parallelism int32) ([]*daprc.BulkStateItem, error)
	Close()
}

// DaprStore implements Store on a Dapr state store component. Key/value stores
// cannot be queried, so the store keeps a "song-index" entry listing every
// tracked video id and loads items in bulk from it.
type DaprStore struct {
	client         daprStateClient
	stateStoreName string

	// indexMutex serialises read-modify-write of the index and creator lists
	indexMutex sync.Mutex
}

// NewDaprStore connects to the local Dapr sidecar over gRPC.
func NewDaprStore(cfg *DaprConfig) (*DaprStore, error) {
	storeName := defaultStateStoreName
	port := defaultDaprGRPCPort
	if cfg != nil {
		if cfg.StateStoreName != "" {
			storeName = cfg.StateStoreName
		}
		if cfg.GRPCPort != "" {
			port = cfg.GRPCPort
		}
	}

	maxSizeInBytes := maxDaprMessageMB * 1024 * 1024
	conn, err := grpc.Dial(
		net.JoinHostPort("127.0.0.1", port),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(maxSizeInBytes),
			grpc.MaxCallSendMsgSize(maxSizeInBytes),
		),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	client := daprc.NewClientWithConnection(conn)
	log.Info().Str("state_store", storeName).Str("grpc_port", port).Msg("Using Dapr state store")
	return newDaprStoreWithClient(client, storeName), nil
}

func newDaprStoreWithClient(client daprStateClient, storeName string) *DaprStore {
	return &DaprStore{
		client:         client,
		stateStoreName: storeName,
	}
}

func (d *DaprStore) FindAllCreators(ctx context.Context) ([]model.Creator, error) {
	var creators []model.Creator
	if _, err := d.getJSON(ctx, creatorsKey, &creators); err != nil {
		return nil, err
	}
	sort.Slice(creators, func(i, j int) bool { return creators[i].ChannelID < creators[j].ChannelID })
	return creators, nil
}

func (d *DaprStore) SaveCreator(ctx context.Context, creator model.Creator) error {
	d.indexMutex.Lock()
	defer d.indexMutex.Unlock()

	var creators []model.Creator
	if _, err := d.getJSON(ctx, creatorsKey, &creators); err != nil {
		return err
	}

	replaced := false
	for i := range creators {
		if creators[i].ChannelID == creator.ChannelID {
			creators[i] = creator
			replaced = true
			break
		}
	}
	if !replaced {
		creators = append(creators, creator)
	}
	return d.putJSON(ctx, creatorsKey, creators)
}

func (d *DaprStore) FindExcludedChannelIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := d.getJSON(ctx, excludedKey, &ids); err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (d *DaprStore) ExcludeCreator(ctx context.Context, channelID string) error {
	d.indexMutex.Lock()
	defer d.indexMutex.Unlock()

	var ids []string
	if _, err := d.getJSON(ctx, excludedKey, &ids); err != nil {
		return err
	}
	for _, id := range ids {
		if id == channelID {
			return nil
		}
	}
	return d.putJSON(ctx, excludedKey, append(ids, channelID))
}

func (d *DaprStore) FindByVideoID(ctx context.Context, videoID string) (model.TrackedItem, error) {
	var item model.TrackedItem
	found, err := d.getJSON(ctx, songKeyPrefix+videoID, &item)
	if err != nil {
		return model.TrackedItem{}, err
	}
	if !found {
		return model.TrackedItem{}, ErrNotFound
	}
	return item, nil
}

func (d *DaprStore) FindAll(ctx context.Context) ([]model.TrackedItem, error) {
	var index []string
	if _, err := d.getJSON(ctx, songIndexKey, &index); err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return []model.TrackedItem{}, nil
	}

	keys := make([]string, len(index))
	for i, id := range index {
		keys[i] = songKeyPrefix + id
	}

	results, err := d.client.GetBulkState(ctx, d.stateStoreName, keys, nil, bulkParallelism)
	if err != nil {
		return nil, fmt.Errorf("dapr: bulk get items: %w", err)
	}

	items := make([]model.TrackedItem, 0, len(results))
	for _, result := range results {
		if result == nil {
			continue
		}
		if result.Error != "" {
			return nil, fmt.Errorf("dapr: bulk get %s: %s", result.Key, result.Error)
		}
		if len(result.Value) == 0 {
			log.Warn().Str("key", result.Key).Msg("Indexed song missing from state store")
			continue
		}
		var item model.TrackedItem
		if err := json.Unmarshal(result.Value, &item); err != nil {
			return nil, fmt.Errorf("dapr: decode %s: %w", result.Key, err)
		}
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].VideoID < items[j].VideoID })
	return items, nil
}

func (d *DaprStore) FindByStatus(ctx context.Context, status model.Status) ([]model.TrackedItem, error) {
	all, err := d.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.TrackedItem, 0, len(all))
	for _, item := range all {
		if item.Status == status {
			out = append(out, item)
		}
	}
	return out, nil
}

func (d *DaprStore) FindTopNByOrder(ctx context.Context, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unsupported order field %q", field)
	}
	all, err := d.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	return topN(all, field, status, n)
}

// Save writes the item and, for a video id seen for the first time, appends it
// to the index. The item is written first so the index never names a missing key.
func (d *DaprStore) Save(ctx context.Context, item model.TrackedItem) error {
	if err := d.putJSON(ctx, songKeyPrefix+item.VideoID, item); err != nil {
		return err
	}

	d.indexMutex.Lock()
	defer d.indexMutex.Unlock()

	var index []string
	if _, err := d.getJSON(ctx, songIndexKey, &index); err != nil {
		return err
	}
	for _, id := range index {
		if id == item.VideoID {
			return nil
		}
	}
	return d.putJSON(ctx, songIndexKey, append(index, item.VideoID))
}

func (d *DaprStore) Close() error {
	d.client.Close()
	return nil
}

// getJSON decodes the value stored at key into dst. It reports false when the
// key holds no value.
func (d *DaprStore) getJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	response, err := d.client.GetState(ctx, d.stateStoreName, key, nil)
	if err != nil {
		return false, fmt.Errorf("dapr: get %s: %w", key, err)
	}
	if response == nil || len(response.Value) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(response.Value, dst); err != nil {
		return false, fmt.Errorf("dapr: decode %s: %w", key, err)
	}
	return true, nil
}

func (d *DaprStore) putJSON(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("dapr: encode %s: %w", key, err)
	}
	if err := d.client.SaveState(ctx, d.stateStoreName, key, data, nil); err != nil {
		return fmt.Errorf("dapr: save %s: %w", key, err)
	}
	return nil
}
