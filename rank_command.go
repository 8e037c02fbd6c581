package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/researchaccelerator-hub/song-tracker/ranking"
	"github.com/spf13/cobra"
)

func newRankCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:       "rank <weekly|daily|latest>",
		Short:     "Show a song ranking",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"weekly", "daily", "latest"},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := ranking.ParseKind(args[0])
			if err != nil {
				return err
			}

			a, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			items, err := a.rankings.Top(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}

			if asJSON {
				if items == nil {
					items = []model.TrackedItem{}
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No songs tracked yet")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRanking(kind, items))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", ranking.DefaultLimit, "Number of songs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the ranking as JSON")
	return cmd
}

func renderRanking(kind ranking.Kind, items []model.TrackedItem) string {
	growth := "Week"
	if kind == ranking.KindDaily {
		growth = "Day"
	}
	headers := []string{"#", "Title", "Creator", "Type", "Views", "+" + growth, "Published", "URL"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft}

	rows := make([][]string, 0, len(items))
	for i, item := range items {
		increase := item.ViewsIncreaseWeek
		if kind == ranking.KindDaily {
			increase = item.ViewsIncreaseDay
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			truncate(item.Title, 48),
			item.CreatorName,
			string(item.Classification),
			humanize.Comma(item.ViewCount),
			humanize.Comma(increase),
			humanize.Time(item.PublishedAt),
			item.URL(),
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
