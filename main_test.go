package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/config"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/state"
	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the CLI against a SQLite database in dir.
func execute(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--store-driver", "sqlite", "--store-dsn", dbPath, "--log-format", "json"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "songtracker.db")
}

func TestCreatorsCommands(t *testing.T) {
	db := testDB(t)
	list := filepath.Join(t.TempDir(), "creators.txt")
	require.NoError(t, os.WriteFile(list, []byte("# seed\nUCbeta,Beta Singer\nUCgamma,Gamma Singer\n"), 0600))

	out, err := execute(t, db, "creators", "add", "https://www.youtube.com/channel/UCalpha", "Alpha", "Singer")
	require.NoError(t, err)
	assert.Contains(t, out, "Tracking creator UCalpha")

	out, err = execute(t, db, "creators", "import", list)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 creators")

	_, err = execute(t, db, "creators", "exclude", "UCgamma")
	require.NoError(t, err)

	out, err = execute(t, db, "creators", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Alpha Singer")
	assert.Contains(t, out, "Beta Singer")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "UCgamma") {
			assert.Contains(t, line, "excluded")
		}
		if strings.Contains(line, "UCalpha") {
			assert.Contains(t, line, "tracked")
		}
	}
}

func TestCreatorsAdd_InvalidChannel(t *testing.T) {
	_, err := execute(t, testDB(t), "creators", "add", "https://www.youtube.com/channel/")
	assert.Error(t, err)
}

func seedItems(t *testing.T, db string, items ...model.TrackedItem) {
	t.Helper()
	store, err := state.NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	defer store.Close()
	for _, item := range items {
		require.NoError(t, store.Save(context.Background(), item))
	}
}

func item(id string, status model.Status, week, day int64, published time.Time) model.TrackedItem {
	return model.TrackedItem{
		VideoID:           id,
		ChannelID:         "UCalpha",
		CreatorName:       "Alpha",
		Title:             "cover " + id,
		PublishedAt:       published,
		AddedTime:         published,
		Classification:    model.ClassificationVideo,
		Status:            status,
		ViewCount:         week * 10,
		ViewsIncreaseDay:  day,
		ViewsIncreaseWeek: week,
		UpdateDayTime:     published,
		UpdateWeekTime:    published,
	}
}

func TestRankCommand(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seedItems(t, db,
		item("old-small", model.StatusExisting, 100, 50, base),
		item("old-big", model.StatusExisting, 900, 10, base.Add(time.Hour)),
		item("new-huge", model.StatusNew, 5000, 70, base.Add(2*time.Hour)),
	)

	out, err := execute(t, db, "rank", "weekly", "--json")
	require.NoError(t, err)
	var weekly []model.TrackedItem
	require.NoError(t, json.Unmarshal([]byte(out), &weekly))
	require.Len(t, weekly, 2)
	assert.Equal(t, "old-big", weekly[0].VideoID)
	assert.Equal(t, "old-small", weekly[1].VideoID)

	out, err = execute(t, db, "rank", "daily", "--json", "--limit", "1")
	require.NoError(t, err)
	var daily []model.TrackedItem
	require.NoError(t, json.Unmarshal([]byte(out), &daily))
	require.Len(t, daily, 1)
	assert.Equal(t, "new-huge", daily[0].VideoID)

	out, err = execute(t, db, "rank", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "cover new-huge")
	assert.Contains(t, out, "50,000")
}

func TestRankCommand_Empty(t *testing.T) {
	out, err := execute(t, testDB(t), "rank", "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "No songs tracked yet")

	out, err = execute(t, testDB(t), "rank", "weekly", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]\n", out)
}

func TestRankCommand_UnknownKind(t *testing.T) {
	_, err := execute(t, testDB(t), "rank", "monthly")
	assert.Error(t, err)
}

func TestRunCommand_ForcedLifecycle(t *testing.T) {
	db := testDB(t)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	seedItems(t, db,
		item("fresh-1", model.StatusNew, 0, 0, base),
		item("fresh-2", model.StatusNew, 0, 0, base),
	)

	out, err := execute(t, db, "--api-keys", "test-key", "--lock-dir", t.TempDir(), "run", "lifecycle", "--force", "--json")
	require.NoError(t, err)

	var result tracker.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, tracker.OutcomeSuccess, result.Outcome)
	require.NotNil(t, result.Lifecycle)
	assert.Equal(t, 2, result.Lifecycle.Transitioned)

	store, err := state.NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	defer store.Close()
	remaining, err := store.FindByStatus(context.Background(), model.StatusNew)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestRunCommand_Errors(t *testing.T) {
	_, err := execute(t, testDB(t), "run", "backfill")
	assert.Error(t, err)

	_, err = execute(t, testDB(t), "run", "views")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API keys")
}

func TestInvalidConfig(t *testing.T) {
	_, err := execute(t, testDB(t), "--timezone", "Mars/Olympus", "creators", "list")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	setupLogging(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	setupLogging(config.LogConfig{Level: "bogus", Format: "console"}, &buf)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
