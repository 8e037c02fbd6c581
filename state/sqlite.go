package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps keep lexical order equal to chronological order.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var sqliteSchema = []string{
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
	description          TEXT NOT NULL DEFAULT '',
	published_at         TEXT NOT NULL,
	added_time           TEXT NOT NULL,
	classification       TEXT NOT NULL,
	status               TEXT NOT NULL,
	view_count           INTEGER NOT NULL DEFAULT 0,
	views_increase_day   INTEGER NOT NULL DEFAULT 0,
	views_increase_week  INTEGER NOT NULL DEFAULT 0,
	last_week_view_count INTEGER NOT NULL DEFAULT 0,
	update_day_time      TEXT NOT NULL,
	update_week_time     TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_tracked_songs_status ON tracked_songs (status)`,
}

const itemColumns = `video_id, channel_id, creator_name, title, description, published_at, added_time,
	classification, status, view_count, views_increase_day, views_increase_week,
	last_week_view_count, update_day_time, update_week_time`

// SQLiteStore implements Store on a local SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a database path")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	for _, stmt := range sqliteSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: init schema: %w", err)
		}
	}

	log.Info().Str("path", path).Msg("Opened SQLite store")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) FindAllCreators(ctx context.Context) ([]model.Creator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id, name FROM creators ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list creators: %w", err)
	}
	defer rows.Close()

	var creators []model.Creator
	for rows.Next() {
		var c model.Creator
		if err := rows.Scan(&c.ChannelID, &c.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scan creator: %w", err)
		}
		creators = append(creators, c)
	}
	return creators, rows.Err()
}

func (s *SQLiteStore) SaveCreator(ctx context.Context, creator model.Creator) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO creators (channel_id, name) VALUES (?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET name = excluded.name`,
		creator.ChannelID, creator.Name)
	if err != nil {
		return fmt.Errorf("sqlite: save creator %s: %w", creator.ChannelID, err)
	}
	return nil
}

func (s *SQLiteStore) FindExcludedChannelIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel_id FROM excluded_creators ORDER BY channel_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list excluded creators: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan excluded creator: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) ExcludeCreator(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO excluded_creators (channel_id) VALUES (?) ON CONFLICT (channel_id) DO NOTHING`,
		channelID)
	if err != nil {
		return fmt.Errorf("sqlite: exclude creator %s: %w", channelID, err)
	}
	return nil
}

func (s *SQLiteStore) FindByVideoID(ctx context.Context, videoID string) (model.TrackedItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tracked_songs WHERE video_id = ?`, videoID)
	item, err := scanSQLiteItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TrackedItem{}, ErrNotFound
	}
	if err != nil {
		return model.TrackedItem{}, fmt.Errorf("sqlite: find %s: %w", videoID, err)
	}
	return item, nil
}

func (s *SQLiteStore) FindAll(ctx context.Context) ([]model.TrackedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM tracked_songs ORDER BY video_id`)
}

func (s *SQLiteStore) FindByStatus(ctx context.Context, status model.Status) ([]model.TrackedItem, error) {
	return s.queryItems(ctx, `SELECT `+itemColumns+` FROM tracked_songs WHERE status = ? ORDER BY video_id`, string(status))
}

func (s *SQLiteStore) FindTopNByOrder(ctx context.Context, field model.OrderField, status *model.Status, n int) ([]model.TrackedItem, error) {
	column, err := orderColumn(field)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []model.TrackedItem{}, nil
	}

	if status != nil {
		return s.queryItems(ctx,
			`SELECT `+itemColumns+` FROM tracked_songs WHERE status = ? ORDER BY `+column+` DESC, video_id ASC LIMIT ?`,
			string(*status), n)
	}
	return s.queryItems(ctx,
		`SELECT `+itemColumns+` FROM tracked_songs ORDER BY `+column+` DESC, video_id ASC LIMIT ?`, n)
}

func (s *SQLiteStore) Save(ctx context.Context, item model.TrackedItem) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_songs (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (video_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			creator_name = excluded.creator_name,
			title = excluded.title,
			description = excluded.description,
			published_at = excluded.published_at,
			added_time = excluded.added_time,
			classification = excluded.classification,
			status = excluded.status,
			view_count = excluded.view_count,
			views_increase_day = excluded.views_increase_day,
			views_increase_week = excluded.views_increase_week,
			last_week_view_count = excluded.last_week_view_count,
			update_day_time = excluded.update_day_time,
			update_week_time = excluded.update_week_time`,
		item.VideoID, item.ChannelID, item.CreatorName, item.Title, item.Description,
		formatSQLiteTime(item.PublishedAt), formatSQLiteTime(item.AddedTime),
		string(item.Classification), string(item.Status),
		item.ViewCount, item.ViewsIncreaseDay, item.ViewsIncreaseWeek, item.LastWeekViewCount,
		formatSQLiteTime(item.UpdateDayTime), formatSQLiteTime(item.UpdateWeekTime),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save %s: %w", item.VideoID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryItems(ctx context.Context, query string, args ...interface{}) ([]model.TrackedItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query items: %w", err)
	}
	defer rows.Close()

	items := make([]model.TrackedItem, 0)
	for rows.Next() {
		item, err := scanSQLiteItem(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteItem(row rowScanner) (model.TrackedItem, error) {
	var (
		item                                      model.TrackedItem
		classification, status                    string
		publishedAt, addedTime, dayTime, weekTime string
	)

	err := row.Scan(
		&item.VideoID, &item.ChannelID, &item.CreatorName, &item.Title, &item.Description,
		&publishedAt, &addedTime, &classification, &status,
		&item.ViewCount, &item.ViewsIncreaseDay, &item.ViewsIncreaseWeek, &item.LastWeekViewCount,
		&dayTime, &weekTime,
	)
	if err != nil {
		return model.TrackedItem{}, err
	}

	item.Classification = model.Classification(classification)
	item.Status = model.Status(status)

	for _, f := range []struct {
		raw string
		dst *time.Time
	}{
		{publishedAt, &item.PublishedAt},
		{addedTime, &item.AddedTime},
		{dayTime, &item.UpdateDayTime},
		{weekTime, &item.UpdateWeekTime},
	} {
		t, err := time.Parse(sqliteTimeFormat, f.raw)
		if err != nil {
			return model.TrackedItem{}, fmt.Errorf("bad timestamp %q: %w", f.raw, err)
		}
		*f.dst = t
	}

	return item, nil
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}
