package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
)

const (
	maxConnectRetries    = 5
	connectRetryInterval = 2 * time.Second
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS creators (
		channel_id TEXT PRIMARY KEY,
		name       TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS excluded_creators (
		channel_id TEXT PRIMARY KEY
	)`,
	`CREATE TABLE IF NOT EXISTS tracked_songs (
		video_id             TEXT PRIMARY KEY,
		channel_id           TEXT NOT NULL,
		creator_name         TEXT NOT NULL DEFAULT '',
		title                TEXT NOT NULL,
		description          VARCHAR(255) NOT NULL DEFAULT '',
		published_at         TIMESTAMPTZ NOT NULL,
		added_time           TIMESTAMPTZ NOT NULL,
		classification       TEXT NOT NULL,
		status               TEXT NOT NULL,
		view_count           BIGINT NOT NULL DEFAULT 0,
		views_increase_day   BIGINT NOT NULL DEFAULT 0,
		views_increase_week  BIGINT NOT NULL DEFAULT 0,
		last_week_view_count BIGINT NOT NULL DEFAULT 0,
		update_day_time      TIMESTAMPTZ NOT NULL,
		update_week_time     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tracked_songs_status ON tracked_songs (status)`,
}

// PostgresStore implements Store on PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL, retrying while the database comes
// up, and applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= maxConnectRetries; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if pingErr := pool.Ping(ctx); pingErr == nil {
				break
			} else {
				pool.Close()
				pool = nil
				err = pingErr
			}
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", maxConnectRetries).
			Msg("Database connection attempt failed")
		if attempt < maxConnectRetries {
			select {
			case <-time.After(connectRetryInterval):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if pool == nil {
		return nil, fmt.Errorf("database connection failed after %d attempts: %w", maxConnectRetries, err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres: init schema: %w", err)
		}
	}

	log.Info().Msg("Connected to PostgreSQL store")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) FindAllCreators(ctx context.Context) ([]model.Creator, error) {
	rows, err := s.pool.Query(ctx, `SELECT channel_id, name FROM creators ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list creators: %w", err)
	}
	defer rows.Close()

	var creators []model.Creator
	for rows.Next() {
		var c model.Creator
		if err := rows.Scan(&c.ChannelID, &c.Name); err != nil {
			return nil, fmt.Errorf("postgres: scan creator: %w", err)
		}
		creators = append(creators, c)
	}
	return creators, rows.Err()
}

func (s *PostgresStore) SaveCreator(ctx context.Context, creator model.Creator) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO creators (channel_id, name) VALUES ($1, $2)
		 ON CONFLICT (channel_id) DO UPDATE SET name = EXCLUDED.name`,
		creator.ChannelID, creator.Name)
	if err != nil {
		return fmt.Errorf("postgres: save creator %s: %w", creator.ChannelID, err)
	}
	return nil
}

func (s *PostgresStore) FindExcludedChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT channel_id FROM excluded_creators ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list excluded creators: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan excluded creator: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ExcludeCreator(ctx context.Context, channelID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO excluded_creators (channel_id) VALUES ($1) ON CONFLICT (channel_id) DO NOTHING`,
		channelID)
	if err != nil {
		return fmt.Errorf("postgres: exclude creator %s: %w", channelID, err)
	}
	return nil
}

func (s *PostgresStore) FindByVideoID(ctx context.Context, videoID string) (model.TrackedItem, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM tracked_songs WHERE video_id = $1`, videoID)
	item, err := scanPostgresItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TrackedItem{}, ErrNotFound
	}
	if err != nil {
		return model.TrackedItem{}, fmt.Errorf("postgres: find %s: %w", videoID, err)
	}
	return item, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]model.TrackedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM tracked_songs ORDER BY video_id`)
}

func (s *PostgresStore) FindByStatus(ctx context.Context, status model.Status) ([]model.TrackedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM tracked_songs WHERE status = $1 ORDER BY video_id`, string(status))
}

func (s *PostgresStore) FindTopNByOrder(ctx context.Context, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error) {
	column, err := orderColumn(field)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.TrackedItem{}, nil
	}

	if status != nil {
		return s.queryItems(ctx,
			`SELECT `+itemColumns+` FROM tracked_songs WHERE status = $1 ORDER BY `+column+` DESC, video_id ASC LIMIT $2`,
			string(*status), n)
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM tracked_songs ORDER BY `+column+` DESC, video_id ASC LIMIT $1`, n)
}

func (s *PostgresStore) Save(ctx context.Context, item model.TrackedItem) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracked_songs (`+itemColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (video_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			creator_name = EXCLUDED.creator_name,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			published_at = EXCLUDED.published_at,
			added_time = EXCLUDED.added_time,
			classification = EXCLUDED.classification,
			status = EXCLUDED.status,
			view_count = EXCLUDED.view_count,
			views_increase_day = EXCLUDED.views_increase_day,
			views_increase_week = EXCLUDED.views_increase_week,
			last_week_view_count = EXCLUDED.last_week_view_count,
			update_day_time = EXCLUDED.update_day_time,
			update_week_time = EXCLUDED.update_week_time`,
		item.VideoID, item.ChannelID, item.CreatorName, item.Title, item.Description,
		item.PublishedAt, item.AddedTime, string(item.Classification), string(item.Status),
		item.ViewCount, item.ViewsIncreaseDay, item.ViewsIncreaseWeek, item.LastWeekViewCount,
		item.UpdateDayTime, item.UpdateWeekTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: save %s: %w", item.VideoID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]model.TrackedItem, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query items: %w", err)
	}
	defer rows.Close()

	items := make([]model.TrackedItem, 0)
	for rows.Next() {
		item, err := scanPostgresItem(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanPostgresItem(row pgx.Row) (model.TrackedItem, error) {
	var (
		item                   model.TrackedItem
		classification, status string
	)

	err := row.Scan(
		&item.VideoID, &item.ChannelID, &item.CreatorName, &item.Title, &item.Description,
		&item.PublishedAt, &item.AddedTime, &classification, &status,
		&item.ViewCount, &item.ViewsIncreaseDay, &item.ViewsIncreaseWeek, &item.LastWeekViewCount,
		&item.UpdateDayTime, &item.UpdateWeekTime,
	)
	if err != nil {
		return model.TrackedItem{}, err
	}

	item.Classification = model.Classification(classification)
	item.Status = model.Status(status)
	return item, nil
}
