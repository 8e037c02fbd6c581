package dapr

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/dapr/go-sdk/service/common"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/ranking"
	"github.com/researchaccelerator-hub/song-tracker/scheduler"
	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/anypb"
)

type fakeJobClient struct {
	scheduled []*daprc.Job
	jobs      map[string]*daprc.Job
	err       error
	closed    bool
}

func (f *fakeJobClient) ScheduleJobAlpha1(ctx context.Context, req *daprc.Job) error {
	if f.err != nil {
		return f.err
	}
	f.scheduled = append(f.scheduled, req)
	return nil
}

func (f *fakeJobClient) GetJobAlpha1(ctx context.Context, name string) (*daprc.Job, error) {
	job, ok := f.jobs[name]
	if !ok {
		return nil, errors.New("job not found")
	}
	return job, nil
}

func (f *fakeJobClient) Close() { f.closed = true }

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) RunJob(ctx context.Context, job tracker.JobName, force bool) (tracker.RunResult, error) {
	args := m.Called(ctx, job, force)
	return args.Get(0).(tracker.RunResult), args.Error(1)
}

type MockRankings struct {
	mock.Mock
}

func (m *MockRankings) Top(ctx context.Context, kind ranking.Kind, n int) ([]model.TrackedItem, error) {
	args := m.Called(ctx, kind, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TrackedItem), args.Error(1)
}

func newTestHost() (*Host, *fakeJobClient, *MockRunner, *MockRankings) {
	client := &fakeJobClient{jobs: map[string]*daprc.Job{}}
	runner := new(MockRunner)
	rankings := new(MockRankings)
	return newHostWithClient(client, runner, rankings, scheduler.DefaultSchedule()), client, runner, rankings
}

func TestScheduleJobs(t *testing.T) {
	host, client, _, _ := newTestHost()

	require.NoError(t, host.ScheduleJobs(context.Background()))
	require.Len(t, client.scheduled, 3)

	byName := map[string]*daprc.Job{}
	for _, job := range client.scheduled {
		byName[job.Name] = job
	}
	assert.Equal(t, scheduler.DefaultDiscoverySchedule, byName["discovery"].Schedule)
	assert.Equal(t, scheduler.DefaultViewsSchedule, byName["views"].Schedule)
	assert.Equal(t, scheduler.DefaultLifecycleSchedule, byName["lifecycle"].Schedule)

	var data JobData
	require.NoError(t, json.Unmarshal(byName["views"].Data.Value, &data))
	assert.Equal(t, JobData{Job: "views"}, data)

	var lifecycle JobData
	require.NoError(t, json.Unmarshal(byName["lifecycle"].Data.Value, &lifecycle))
	assert.Equal(t, JobData{Job: "lifecycle", Force: true}, lifecycle)
}

func TestScheduledLifecycleTriggerForcesTransition(t *testing.T) {
	host, client, runner, _ := newTestHost()
	require.NoError(t, host.ScheduleJobs(context.Background()))

	var lifecycle *daprc.Job
	for _, job := range client.scheduled {
		if job.Name == "lifecycle" {
			lifecycle = job
		}
	}
	require.NotNil(t, lifecycle)

	runner.On("RunJob", mock.Anything, tracker.JobLifecycle, true).
		Return(tracker.RunResult{Job: tracker.JobLifecycle, Outcome: tracker.OutcomeSuccess}, nil).Once()

	event := &common.JobEvent{JobType: lifecycle.Name, Data: lifecycle.Data.Value}
	require.NoError(t, host.handleJob(context.Background(), event))
	runner.AssertExpectations(t)
}

func TestScheduleJobs_InvalidSchedule(t *testing.T) {
	client := &fakeJobClient{}
	schedule := scheduler.DefaultSchedule()
	schedule.Views = "not a cron"
	host := newHostWithClient(client, new(MockRunner), new(MockRankings), schedule)

	assert.Error(t, host.ScheduleJobs(context.Background()))
	assert.Empty(t, client.scheduled)
}

func TestScheduleJobs_ClientError(t *testing.T) {
	host, client, _, _ := newTestHost()
	client.err = errors.New("scheduler unavailable")

	err := host.ScheduleJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery")
}

func TestHandleJob(t *testing.T) {
	tests := []struct {
		name      string
		event     *common.JobEvent
		wantJob   tracker.JobName
		wantForce bool
	}{
		{
			name:    "payload names the job",
			event:   &common.JobEvent{JobType: "nightly", Data: []byte(`{"job":"views"}`)},
			wantJob: tracker.JobViews,
		},
		{
			name:    "empty payload falls back to the job type",
			event:   &common.JobEvent{JobType: "discovery"},
			wantJob: tracker.JobDiscovery,
		},
		{
			name:      "force is passed through",
			event:     &common.JobEvent{JobType: "lifecycle", Data: []byte(`{"force":true}`)},
			wantJob:   tracker.JobLifecycle,
			wantForce: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, _, runner, _ := newTestHost()
			runner.On("RunJob", mock.Anything, tt.wantJob, tt.wantForce).
				Return(tracker.RunResult{Job: tt.wantJob, Outcome: tracker.OutcomeSuccess}, nil)

			require.NoError(t, host.handleJob(context.Background(), tt.event))
			runner.AssertExpectations(t)
		})
	}
}

func TestHandleJob_Rejects(t *testing.T) {
	host, _, runner, _ := newTestHost()

	assert.Error(t, host.handleJob(context.Background(), nil))
	assert.Error(t, host.handleJob(context.Background(), &common.JobEvent{JobType: "backfill"}))
	assert.Error(t, host.handleJob(context.Background(), &common.JobEvent{JobType: "views", Data: []byte("{")}))
	runner.AssertNotCalled(t, "RunJob", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunJob(t *testing.T) {
	host, _, runner, _ := newTestHost()
	result := tracker.RunResult{RunID: "run-1", Job: tracker.JobViews, Outcome: tracker.OutcomeSuccess}
	runner.On("RunJob", mock.Anything, tracker.JobViews, false).Return(result, nil)

	out, err := host.runJob(context.Background(), &common.InvocationEvent{Data: []byte(`{"job":"views"}`)})
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)

	var got tracker.RunResult
	require.NoError(t, json.Unmarshal(out.Data, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, tracker.OutcomeSuccess, got.Outcome)
}

func TestRunJob_ReturnsResultWithError(t *testing.T) {
	host, _, runner, _ := newTestHost()
	result := tracker.RunResult{RunID: "run-2", Job: tracker.JobDiscovery, Outcome: tracker.OutcomeFailed, Error: "boom"}
	runner.On("RunJob", mock.Anything, tracker.JobDiscovery, false).Return(result, errors.New("boom"))

	out, err := host.runJob(context.Background(), &common.InvocationEvent{Data: []byte(`{"job":"discovery"}`)})
	assert.EqualError(t, err, "boom")
	require.NotNil(t, out)
	assert.Contains(t, string(out.Data), `"outcome":"failed"`)
}

func TestRunJob_BadRequest(t *testing.T) {
	host, _, _, _ := newTestHost()

	_, err := host.runJob(context.Background(), nil)
	assert.Error(t, err)
	_, err = host.runJob(context.Background(), &common.InvocationEvent{Data: []byte(`{"job":"backfill"}`)})
	assert.Error(t, err)
}

func TestGetJob(t *testing.T) {
	host, client, _, _ := newTestHost()
	client.jobs["views"] = &daprc.Job{
		Name:     "views",
		Schedule: scheduler.DefaultViewsSchedule,
		Data:     &anypb.Any{Value: []byte(`{"job":"views"}`)},
	}

	out, err := host.getJob(context.Background(), &common.InvocationEvent{Data: []byte("views")})
	require.NoError(t, err)

	var info JobInfo
	require.NoError(t, json.Unmarshal(out.Data, &info))
	assert.Equal(t, JobInfo{Name: "views", Schedule: scheduler.DefaultViewsSchedule, Data: JobData{Job: "views"}}, info)

	_, err = host.getJob(context.Background(), &common.InvocationEvent{Data: []byte("missing")})
	assert.Error(t, err)
}

func TestRankingHandlers(t *testing.T) {
	host, _, _, rankings := newTestHost()
	items := []model.TrackedItem{{VideoID: "v1", ViewsIncreaseWeek: 900}, {VideoID: "v2", ViewsIncreaseWeek: 100}}
	rankings.On("Top", mock.Anything, ranking.KindWeekly, 2).Return(items, nil)
	rankings.On("Top", mock.Anything, ranking.KindLatest, 0).Return(nil, nil)
	rankings.On("Top", mock.Anything, ranking.KindDaily, 0).Return(nil, errors.New("store down"))

	handlers := host.invocationHandlers()

	out, err := handlers["topWeekly"](context.Background(), &common.InvocationEvent{Data: []byte(`{"limit":2}`)})
	require.NoError(t, err)
	var got []model.TrackedItem
	require.NoError(t, json.Unmarshal(out.Data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "v1", got[0].VideoID)

	out, err = handlers["latest"](context.Background(), &common.InvocationEvent{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(out.Data))

	_, err = handlers["topDaily"](context.Background(), nil)
	assert.Error(t, err)

	_, err = handlers["topWeekly"](context.Background(), &common.InvocationEvent{Data: []byte(`{"limit":`)})
	assert.Error(t, err)
}

func TestClose(t *testing.T) {
	host, client, _, _ := newTestHost()
	host.Close()
	assert.True(t, client.closed)
}
