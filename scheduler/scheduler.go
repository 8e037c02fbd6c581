// Package scheduler fires the tracker jobs from an in-process cron.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Default cron expressions (with seconds), evaluated in the scheduler timezone.
const (
	DefaultDiscoverySchedule = "0 26 15 * * *"
	DefaultViewsSchedule     = "0 33 15 * * *"
	DefaultLifecycleSchedule = "0 11 16 * * MON"
)

// Schedule holds one cron expression per job.
type Schedule struct {
	Discovery string `mapstructure:"discovery"`
	Views     string `mapstructure:"views"`
	Lifecycle string `mapstructure:"lifecycle"`
}

// DefaultSchedule returns the production schedule.
func DefaultSchedule() Schedule {
	return Schedule{
		Discovery: DefaultDiscoverySchedule,
		Views:     DefaultViewsSchedule,
		Lifecycle: DefaultLifecycleSchedule,
	}
}

// ForJob returns the expression for job.
func (s Schedule) ForJob(job tracker.JobName) string {
	switch job {
	case tracker.JobDiscovery:
		return s.Discovery
	case tracker.JobViews:
		return s.Views
	case tracker.JobLifecycle:
		return s.Lifecycle
	}
	return ""
}

var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks that every expression parses.
func (s Schedule) Validate() error {
	for _, job := range tracker.JobNames() {
		spec := s.ForJob(job)
		if spec == "" {
			return fmt.Errorf("schedule for %s job is empty", job)
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid schedule %q for %s job: %w", spec, job, err)
		}
	}
	return nil
}

// CheckWeekday verifies that expr fires on day and on no other weekday.
// A restricted day-of-month is rejected because cron would then fire on
// either field.
func CheckWeekday(expr string, day time.Weekday) error {
	parsed, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return fmt.Errorf("schedule %q must name a weekday, got an interval", expr)
	}

	// cron marks an unrestricted field with its top bit
	const (
		weekdays = 1<<7 - 1
		star     = 1 << 63
	)
	if spec.Dow&weekdays != 1<<uint(day) {
		return fmt.Errorf("schedule %q must fire only on %s", expr, day)
	}
	if spec.Dom&star == 0 {
		return fmt.Errorf("schedule %q restricts the day of month", expr)
	}
	return nil
}

// JobRunner runs one job to completion.
type JobRunner interface {
	RunJob(ctx context.Context, job tracker.JobName, force bool) (tracker.RunResult, error)
}

// Entry describes a scheduled job.
type Entry struct {
	Job  tracker.JobName
	Spec string
	Next time.Time
}

// Scheduler triggers jobs on their cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	runner   JobRunner
	schedule Schedule
	location *time.Location
	entries  map[tracker.JobName]cron.EntryID
	ctx      context.Context
}

// New creates a scheduler for runner. Fires of a job that is still running are skipped.
func New(runner JobRunner, schedule Schedule, location *time.Location) (*Scheduler, error) {
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if location == nil {
		location = time.UTC
	}

	logger := cronLogger{}
	s := &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		runner:   runner,
		schedule: schedule,
		location: location,
		entries:  make(map[tracker.JobName]cron.EntryID),
		ctx:      context.Background(),
	}

	for _, job := range tracker.JobNames() {
		job := job
		id, err := s.cron.AddFunc(schedule.ForJob(job), func() { s.fire(job) })
		if err != nil {
			return nil, fmt.Errorf("failed to schedule %s job: %w", job, err)
		}
		s.entries[job] = id
	}
	return s, nil
}

// Run starts the cron and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.ctx = ctx
	s.cron.Start()

	for _, e := range s.Entries() {
		log.Info().
			Str("job", string(e.Job)).
			Str("schedule", e.Spec).
			Time("next_run", e.Next).
			Msg("Scheduled job")
	}

	<-ctx.Done()
	log.Info().Msg("Stopping scheduler, waiting for running jobs")
	<-s.cron.Stop().Done()
	return nil
}

// Entries returns the scheduled jobs ordered by next fire time.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for job, id := range s.entries {
		entry := s.cron.Entry(id)
		next := entry.Next
		if next.IsZero() && entry.Schedule != nil {
			next = entry.Schedule.Next(time.Now().In(s.location))
		}
		out = append(out, Entry{Job: job, Spec: s.schedule.ForJob(job), Next: next})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Next.Equal(out[j].Next) {
			return out[i].Job < out[j].Job
		}
		return out[i].Next.Before(out[j].Next)
	})
	return out
}

func (s *Scheduler) fire(job tracker.JobName) {
	if _, err := s.runner.RunJob(s.ctx, job, false); err != nil {
		log.Error().Err(err).Str("job", string(job)).Msg("Scheduled job failed")
	}
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
