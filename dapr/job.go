// Package dapr runs the tracker as a Dapr application: the jobs are registered
// with the Dapr scheduler and the rankings are served over service invocation.
package dapr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	daprc "github.com/dapr/go-sdk/client"
	"github.com/dapr/go-sdk/service/common"
	daprs "github.com/dapr/go-sdk/service/grpc"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/ranking"
	"github.com/researchaccelerator-hub/song-tracker/scheduler"
	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/anypb"
)

// JobRunner runs one tracker job to completion.
type JobRunner interface {
	RunJob(ctx context.Context, job tracker.JobName, force bool) (tracker.RunResult, error)
}

// RankingReader answers ranking queries.
type RankingReader interface {
	Top(ctx context.Context, kind ranking.Kind, n int) ([]model.TrackedItem, error)
}

// jobClient is the part of the Dapr client the host needs.
type jobClient interface {
	ScheduleJobAlpha1(ctx context.Context, req *daprc.Job) error
	GetJobAlpha1(ctx context.Context, name string) (*daprc.Job, error)
	Close()
}

// JobData is the payload stored with a scheduled job and accepted by runJob.
type JobData struct {
	Job   string `json:"job"`
	Force bool   `json:"force,omitempty"`
}

// RankingRequest is the optional payload of the ranking handlers.
type RankingRequest struct {
	Limit int `json:"limit"`
}

// JobInfo describes a job as the Dapr scheduler knows it.
type JobInfo struct {
	Name     string  `json:"name"`
	Schedule string  `json:"schedule,omitempty"`
	DueTime  string  `json:"dueTime,omitempty"`
	Data     JobData `json:"data"`
}

// Host wires the tracker into a Dapr sidecar.
type Host struct {
	client   jobClient
	runner   JobRunner
	rankings RankingReader
	schedule scheduler.Schedule
}

// NewHost creates a Host connected to the local Dapr sidecar.
func NewHost(runner JobRunner, rankings RankingReader, schedule scheduler.Schedule) (*Host, error) {
	client, err := daprc.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Dapr client: %w", err)
	}
	return newHostWithClient(client, runner, rankings, schedule), nil
}

func newHostWithClient(client jobClient, runner JobRunner, rankings RankingReader, schedule scheduler.Schedule) *Host {
	return &Host{
		client:   client,
		runner:   runner,
		rankings: rankings,
		schedule: schedule,
	}
}

// ScheduleJobs registers every tracker job with the Dapr scheduler using the
// configured cron expressions. Registering an existing name replaces it.
func (h *Host) ScheduleJobs(ctx context.Context) error {
	if err := h.schedule.Validate(); err != nil {
		return err
	}

	for _, name := range tracker.JobNames() {
		// The Dapr scheduler evaluates the cron in its own timezone, so its
		// lifecycle trigger is authoritative rather than the weekday check.
		data := JobData{Job: string(name), Force: name == tracker.JobLifecycle}
		content, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s job data: %w", name, err)
		}

		job := daprc.Job{
			Name:     string(name),
			Schedule: h.schedule.ForJob(name),
			Data: &anypb.Any{
				Value: content,
			},
		}
		if err := h.client.ScheduleJobAlpha1(ctx, &job); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", name, err)
		}
		log.Info().Str("job", string(name)).Str("schedule", job.Schedule).Msg("Job scheduled")
	}
	return nil
}

// handleJob runs the job a Dapr scheduler trigger names. The payload wins over
// the trigger name so a job can be scheduled under any name.
func (h *Host) handleJob(ctx context.Context, event *common.JobEvent) error {
	if event == nil {
		return errors.New("no job event")
	}
	log.Info().Str("job_type", event.JobType).Msg("Job event received")

	data := JobData{Job: event.JobType}
	if len(event.Data) > 0 {
		if err := json.Unmarshal(event.Data, &data); err != nil {
			log.Error().Err(err).Str("job_type", event.JobType).Msg("Failed to decode job data")
			return fmt.Errorf("failed to decode job data: %w", err)
		}
		if data.Job == "" {
			data.Job = event.JobType
		}
	}

	job, err := tracker.ParseJobName(data.Job)
	if err != nil {
		return err
	}
	_, err = h.runner.RunJob(ctx, job, data.Force)
	return err
}

// runJob runs a job on demand and returns its result.
func (h *Host) runJob(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	if in == nil {
		return nil, errors.New("no invocation parameter")
	}

	var data JobData
	if err := json.Unmarshal(in.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode run request: %w", err)
	}
	job, err := tracker.ParseJobName(data.Job)
	if err != nil {
		return nil, err
	}

	result, runErr := h.runner.RunJob(ctx, job, data.Force)
	out, err := jsonContent(result)
	if err != nil {
		return nil, err
	}
	return out, runErr
}

// getJob returns the scheduler's view of a job.
func (h *Host) getJob(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
	if in == nil || len(in.Data) == 0 {
		return nil, errors.New("no invocation parameter")
	}

	name := string(in.Data)
	job, err := h.client.GetJobAlpha1(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("job", name).Msg("Failed to get job")
		return nil, err
	}

	info := JobInfo{
		Name:     job.Name,
		Schedule: job.Schedule,
		DueTime:  job.DueTime,
	}
	if job.Data != nil && len(job.Data.Value) > 0 {
		if err := json.Unmarshal(job.Data.Value, &info.Data); err != nil {
			return nil, fmt.Errorf("failed to decode %s job data: %w", name, err)
		}
	}
	return jsonContent(info)
}

func (h *Host) rankingHandler(kind ranking.Kind) common.ServiceInvocationHandler {
	return func(ctx context.Context, in *common.InvocationEvent) (*common.Content, error) {
		var req RankingRequest
		if in != nil && len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &req); err != nil {
				return nil, fmt.Errorf("failed to decode ranking request: %w", err)
			}
		}

		items, err := h.rankings.Top(ctx, kind, req.Limit)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []model.TrackedItem{}
		}
		return jsonContent(items)
	}
}

func (h *Host) invocationHandlers() map[string]common.ServiceInvocationHandler {
	return map[string]common.ServiceInvocationHandler{
		"runJob":    h.runJob,
		"getJob":    h.getJob,
		"topWeekly": h.rankingHandler(ranking.KindWeekly),
		"topDaily":  h.rankingHandler(ranking.KindDaily),
		"latest":    h.rankingHandler(ranking.KindLatest),
	}
}

// Serve registers the handlers on a gRPC service listening on port and blocks
// until ctx is cancelled or the service fails.
func (h *Host) Serve(ctx context.Context, port int) error {
	address := fmt.Sprintf(":%d", port)
	server, err := daprs.NewService(address)
	if err != nil {
		return fmt.Errorf("failed to create Dapr service: %w", err)
	}

	for name, handler := range h.invocationHandlers() {
		if err := server.AddServiceInvocationHandler(name, handler); err != nil {
			return fmt.Errorf("failed to add %s invocation handler: %w", name, err)
		}
	}
	for _, name := range tracker.JobNames() {
		if err := server.AddJobEventHandler(string(name), h.handleJob); err != nil {
			return fmt.Errorf("failed to register %s job handler: %w", name, err)
		}
		log.Info().Str("job", string(name)).Msg("Registered job handler")
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", address).Msg("Starting Dapr service")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("Stopping Dapr service")
		stopErr := server.GracefulStop()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			log.Warn().Msg("Dapr service did not stop in time")
		}
		return stopErr
	}
}

// Close releases the Dapr client.
func (h *Host) Close() {
	h.client.Close()
}

func jsonContent(v interface{}) (*common.Content, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &common.Content{
		Data:        data,
		ContentType: "application/json",
	}, nil
}
