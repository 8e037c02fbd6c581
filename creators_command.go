package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/researchaccelerator-hub/song-tracker/common"
	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCreatorsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "creators",
		Short: "Manage the tracked creators",
	}
	cmd.AddCommand(
		newCreatorsAddCommand(ctx),
		newCreatorsImportCommand(ctx),
		newCreatorsExcludeCommand(ctx),
		newCreatorsListCommand(ctx),
	)
	return cmd
}

func newCreatorsAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <channel> [name...]",
		Short: "Track a creator by channel ID or channel URL",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := common.ChannelID(args[0])
			if err != nil {
				return err
			}

			a, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			creator := model.Creator{ChannelID: id, Name: strings.Join(args[1:], " ")}
			if err := a.store.SaveCreator(cmd.Context(), creator); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Tracking creator %s\n", id)
			return nil
		},
	}
}

func newCreatorsImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|url>",
		Short: "Track every creator listed in a file, one \"<channel>[,<name>]\" per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			creators, err := common.LoadCreators(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			a, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			for _, creator := range creators {
				if err := a.store.SaveCreator(cmd.Context(), creator); err != nil {
					return fmt.Errorf("failed to save creator %s: %w", creator.ChannelID, err)
				}
			}
			log.Info().Int("creators", len(creators)).Str("source", args[0]).Msg("Imported creators")
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d creators\n", len(creators))
			return nil
		},
	}
}

func newCreatorsExcludeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "exclude <channel>",
		Short: "Exclude a creator from discovery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := common.ChannelID(args[0])
			if err != nil {
				return err
			}

			a, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.store.ExcludeCreator(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Excluded creator %s\n", id)
			return nil
		},
	}
}

func newCreatorsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tracked creators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			creators, err := a.store.FindAllCreators(cmd.Context())
			if err != nil {
				return err
			}
			excludedIDs, err := a.store.FindExcludedChannelIDs(cmd.Context())
			if err != nil {
				return err
			}
			excluded := make(map[string]bool, len(excludedIDs))
			for _, id := range excludedIDs {
				excluded[id] = true
			}

			sort.Slice(creators, func(i, j int) bool { return creators[i].ChannelID < creators[j].ChannelID })
			rows := make([][]string, 0, len(creators))
			for _, c := range creators {
				status := "tracked"
				if excluded[c.ChannelID] {
					status = "excluded"
				}
				rows = append(rows, []string{c.ChannelID, c.Name, status})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Channel", "Name", "Status"}, rows, nil))
			return nil
		},
	}
}
