package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu   sync.Mutex
	jobs []tracker.JobName
}

func (r *recordingRunner) RunJob(ctx context.Context, job tracker.JobName, force bool) (tracker.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return tracker.RunResult{Job: job, Outcome: tracker.OutcomeSuccess}, nil
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

func TestDefaultScheduleIsValid(t *testing.T) {
	assert.NoError(t, DefaultSchedule().Validate())
}

func TestScheduleValidate(t *testing.T) {
	s := DefaultSchedule()
	s.Views = "every day"
	assert.Error(t, s.Validate())

	s = DefaultSchedule()
	s.Lifecycle = ""
	assert.Error(t, s.Validate())

	// five-field expressions lack the seconds field
	s = DefaultSchedule()
	s.Discovery = "26 15 * * *"
	assert.Error(t, s.Validate())
}

func TestCheckWeekday(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		day     time.Weekday
		wantErr bool
	}{
		{name: "default lifecycle on monday", expr: DefaultLifecycleSchedule, day: time.Monday},
		{name: "numeric weekday", expr: "0 0 9 * * 2", day: time.Tuesday},
		{name: "weekly descriptor is sunday", expr: "@weekly", day: time.Sunday},
		{name: "wrong weekday", expr: DefaultLifecycleSchedule, day: time.Tuesday, wantErr: true},
		{name: "every day", expr: "0 11 16 * * *", day: time.Monday, wantErr: true},
		{name: "weekday range", expr: "0 11 16 * * MON-FRI", day: time.Monday, wantErr: true},
		{name: "day of month", expr: "0 11 16 1 * MON", day: time.Monday, wantErr: true},
		{name: "interval", expr: "@every 1h", day: time.Monday, wantErr: true},
		{name: "unparsable", expr: "mondays", day: time.Monday, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckWeekday(tt.expr, tt.day)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEntriesFollowTimezone(t *testing.T) {
	seoul := time.FixedZone("KST", 9*60*60)
	s, err := New(&recordingRunner{}, DefaultSchedule(), seoul)
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 3)

	byJob := map[tracker.JobName]Entry{}
	for _, e := range entries {
		byJob[e.Job] = e
	}

	discovery := byJob[tracker.JobDiscovery].Next.In(seoul)
	assert.Equal(t, 15, discovery.Hour())
	assert.Equal(t, 26, discovery.Minute())

	lifecycle := byJob[tracker.JobLifecycle].Next.In(seoul)
	assert.Equal(t, time.Monday, lifecycle.Weekday())
	assert.Equal(t, 16, lifecycle.Hour())
	assert.Equal(t, 11, lifecycle.Minute())
}

func TestRunFiresJobs(t *testing.T) {
	runner := &recordingRunner{}
	s, err := New(runner, Schedule{
		Discovery: "@every 1s",
		Views:     "@every 1h",
		Lifecycle: "@every 1h",
	}, time.UTC)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return runner.count() > 0 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, tracker.JobDiscovery, runner.jobs[0])
}
