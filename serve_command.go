package main

import (
	"github.com/researchaccelerator-hub/song-tracker/dapr"
	"github.com/researchaccelerator-hub/song-tracker/metrics"
	"github.com/researchaccelerator-hub/song-tracker/scheduler"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the jobs on their cron schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			sched, err := scheduler.New(a.runner, a.cfg.JobSchedule(), a.cfg.Location())
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			if a.cfg.Metrics.Addr != "" {
				g.Go(func() error { return metrics.Serve(gctx, a.cfg.Metrics.Addr) })
			}
			g.Go(func() error { return sched.Run(gctx) })

			log.Info().Str("timezone", a.cfg.Schedule.Timezone).Msg("Song tracker scheduler started")
			return g.Wait()
		},
	}
	cmd.Flags().String("metrics-addr", ":9090", "Address of the Prometheus endpoint, empty disables it")
	return cmd
}

func newDaprCommand(ctx *commandContext) *cobra.Command {
	var skipSchedule bool

	cmd := &cobra.Command{
		Use:   "dapr",
		Short: "Run as a Dapr application triggered by the Dapr scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			host, err := dapr.NewHost(a.runner, a.rankings, a.cfg.JobSchedule())
			if err != nil {
				return err
			}
			defer host.Close()

			if !skipSchedule {
				if err := host.ScheduleJobs(cmd.Context()); err != nil {
					return err
				}
			}

			g, gctx := errgroup.WithContext(cmd.Context())
			if a.cfg.Metrics.Addr != "" {
				g.Go(func() error { return metrics.Serve(gctx, a.cfg.Metrics.Addr) })
			}
			g.Go(func() error { return host.Serve(gctx, a.cfg.Dapr.Port) })
			return g.Wait()
		},
	}
	cmd.Flags().Int("dapr-port", 6000, "Port of the Dapr application gRPC service")
	cmd.Flags().String("pubsub", "", "Dapr pub/sub component for events, empty disables them")
	cmd.Flags().String("metrics-addr", ":9090", "Address of the Prometheus endpoint, empty disables it")
	cmd.Flags().BoolVar(&skipSchedule, "no-schedule", false, "Do not (re)register the jobs with the Dapr scheduler")
	return cmd
}
