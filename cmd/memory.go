package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newMemoryCmd(mem memoryProvider) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the action cache and lesson store",
	}

	var scenarioID string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the cached hint and lessons for a scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := configFromContext(ctx)
			if err != nil {
				return err
			}
			store, cleanup, err := mem.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var b strings.Builder
			fmt.Fprintf(&b, "Scenario: %s\n\nCached hint:\n", scenarioID)
			if hint := store.GetCachedHint(scenarioID); hint != "" {
				b.WriteString(hint + "\n")
			} else {
				b.WriteString("(none)\n")
			}
			b.WriteString("\nLessons:\n")
			if lessons := store.GetLessons(scenarioID); lessons != "" {
				b.WriteString(lessons + "\n")
			} else {
				b.WriteString("(none)\n")
			}
			fmt.Fprint(cmd.OutOrStdout(), b.String())
			return nil
		},
	}
	show.Flags().StringVar(&scenarioID, "scenario", "", "scenario id")
	_ = show.MarkFlagRequired("scenario")

	cmd.AddCommand(show)
	return cmd
}
