package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/researchaccelerator-hub/song-tracker/events"
	"github.com/researchaccelerator-hub/song-tracker/metrics"
	"github.com/rs/zerolog/log"
)

// JobName identifies a scheduled job.
type JobName string

const (
	JobDiscovery JobName = "discovery"
	JobLifecycle JobName = "lifecycle"
	JobViews     JobName = "views"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// JobNames lists every job in schedule order.
func JobNames() []JobName {
	return []JobName{JobDiscovery, JobViews, JobLifecycle}
}

// ParseJobName converts a string into a JobName, rejecting unknown jobs.
func ParseJobName(s string) (JobName, error) {
	switch JobName(strings.ToLower(strings.TrimSpace(s))) {
	case JobDiscovery:
		return JobDiscovery, nil
	case JobLifecycle:
		return JobLifecycle, nil
	case JobViews:
		return JobViews, nil
	}
	return "", fmt.Errorf("unknown job %q, must be one of: discovery, lifecycle, views", s)
}

// RunResult describes one job run.
type RunResult struct {
	RunID      string           `json:"runId"`
	Job        JobName          `json:"job"`
	Outcome    string           `json:"outcome"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Discovery  *DiscoveryReport `json:"discovery,omitempty"`
	Views      *ViewReport      `json:"views,omitempty"`
	Lifecycle  *LifecycleReport `json:"lifecycle,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Counts returns the counters of whichever report the run produced.
func (r RunResult) Counts() map[string]int {
	switch {
	case r.Discovery != nil:
		return r.Discovery.Counts()
	case r.Views != nil:
		return r.Views.Counts()
	case r.Lifecycle != nil:
		return r.Lifecycle.Counts()
	}
	return nil
}

// CacheInvalidator drops cached ranking reads after a run changed the data.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// RunnerOptions holds the optional collaborators of a Runner.
type RunnerOptions struct {
	Publisher events.Publisher
	Cache     CacheInvalidator
	// LockDir enables per-job file locks so overlapping fires are skipped
	LockDir string
}

// Runner is the job boundary: it tags runs with an id, prevents overlapping
// runs of the same job, recovers panics and reports the outcome.
type Runner struct {
	discovery *DiscoveryEngine
	views     *ViewCountUpdater
	lifecycle *LifecycleManager
	publisher events.Publisher
	cache     CacheInvalidator
	lockDir   string
	now       func() time.Time
}

// NewRunner creates a new Runner
func NewRunner(discovery *DiscoveryEngine, views *ViewCountUpdater, lifecycle *LifecycleManager, opts RunnerOptions) *Runner {
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Runner{
		discovery: discovery,
		views:     views,
		lifecycle: lifecycle,
		publisher: publisher,
		cache:     opts.Cache,
		lockDir:   opts.LockDir,
		now:       time.Now,
	}
}

// RunJob executes job once. force only affects the lifecycle job, which
// otherwise does nothing off its transition day. A run skipped because another
// run of the same job holds the lock returns outcome skipped and no error.
func (r *Runner) RunJob(ctx context.Context, job JobName, force bool) (result RunResult, err error) {
	result = RunResult{
		RunID:     uuid.New().String(),
		Job:       job,
		StartedAt: r.now(),
	}
	logger := log.With().Str("run_id", result.RunID).Str("job", string(job)).Logger()

	if _, err := ParseJobName(string(job)); err != nil {
		return result, err
	}

	lock, acquired, err := r.tryLock(job)
	if err != nil {
		r.finish(ctx, &result, err)
		return result, err
	}
	if !acquired {
		logger.Warn().Msg("Previous run still holds the job lock, skipping")
		result.Outcome = OutcomeSkipped
		r.finish(ctx, &result, nil)
		return result, nil
	}
	if lock != nil {
		defer func() {
			if uerr := lock.Unlock(); uerr != nil {
				logger.Warn().Err(uerr).Msg("Failed to release job lock")
			}
		}()
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job, rec)
			logger.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic in job")
		}
		r.finish(ctx, &result, err)
	}()

	logger.Info().Bool("force", force).Msg("Starting job run")
	err = r.execute(ctx, job, force, &result)
	return result, err
}

func (r *Runner) execute(ctx context.Context, job JobName, force bool, result *RunResult) error {
	switch job {
	case JobDiscovery:
		report, err := r.discovery.Run(ctx)
		result.Discovery = &report
		return err
	case JobViews:
		report, err := r.views.Run(ctx)
		result.Views = &report
		return err
	case JobLifecycle:
		report, err := r.lifecycle.Run(ctx, force)
		result.Lifecycle = &report
		return err
	}
	return fmt.Errorf("unknown job %q", job)
}

// finish stamps the result, records metrics, invalidates cached rankings and
// publishes the run summary.
func (r *Runner) finish(ctx context.Context, result *RunResult, err error) {
	result.FinishedAt = r.now()
	if result.Outcome == "" {
		result.Outcome = OutcomeSuccess
		if err != nil {
			result.Outcome = OutcomeFailed
		}
	}
	if err != nil {
		result.Error = err.Error()
	}

	logger := log.With().Str("run_id", result.RunID).Str("job", string(result.Job)).Logger()
	duration := result.FinishedAt.Sub(result.StartedAt)

	metrics.RecordRun(string(result.Job), result.Outcome, duration)
	for name, n := range result.Counts() {
		metrics.AddItems(string(result.Job), name, n)
	}

	if result.Outcome != OutcomeSkipped && r.cache != nil {
		if cerr := r.cache.Invalidate(ctx); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to invalidate ranking cache")
		}
	}

	message := events.RunCompletedMessage{
		RunID:      result.RunID,
		Job:        string(result.Job),
		Outcome:    result.Outcome,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Counts:     result.Counts(),
		Error:      result.Error,
	}
	if perr := r.publisher.PublishRunCompleted(ctx, message); perr != nil {
		logger.Warn().Err(perr).Msg("Failed to publish run completed event")
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.Str("outcome", result.Outcome).Dur("duration", duration).Msg("Job run finished")
}

// tryLock takes the job's file lock. Without a lock directory every run proceeds.
func (r *Runner) tryLock(job JobName) (*flock.Flock, bool, error) {
	if r.lockDir == "" {
		return nil, true, nil
	}
	if err := os.MkdirAll(r.lockDir, 0750); err != nil {
		return nil, false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(filepath.Join(r.lockDir, fmt.Sprintf("songtracker-%s.lock", job)))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("failed to take %s lock: %w", job, err)
	}
	if !acquired {
		return nil, false, nil
	}
	return lock, true, nil
}
