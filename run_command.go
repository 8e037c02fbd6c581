package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/tracker"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force, asJSON bool

	cmd := &cobra.Command{
		Use:       "run <discovery|views|lifecycle>",
		Short:     "Run one job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"discovery", "views", "lifecycle"},
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := tracker.ParseJobName(args[0])
			if err != nil {
				return err
			}

			a, err := ctx.openTracker(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			result, runErr := a.runner.RunJob(cmd.Context(), job, force)
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderRunResult(result))
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Run the lifecycle transition even off its weekday")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run result as JSON")
	cmd.Flags().Int("concurrency", 1, "Creators searched in parallel by discovery")
	cmd.Flags().Int("views-workers", 1, "Items polled in parallel by the views job")
	cmd.Flags().Duration("recency-window", tracker.DefaultRecencyWindow, "Only discover items published within this window")
	return cmd
}

func renderRunResult(result tracker.RunResult) string {
	counts := result.Counts()
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := [][]string{
		{"run", result.RunID},
		{"job", string(result.Job)},
		{"outcome", result.Outcome},
		{"duration", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond).String()},
	}
	for _, name := range names {
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	if result.Error != "" {
		rows = append(rows, []string{"error", result.Error})
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}
