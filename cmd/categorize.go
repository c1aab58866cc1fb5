package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/failure"
)

func newCategorizeCmd() *cobra.Command {
	var errMsg, logPath string

	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Classify a failure message, optionally against an action log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var log []schemas.ActionLogEntry
			if logPath != "" {
				data, err := os.ReadFile(logPath)
				if err != nil {
					return fmt.Errorf("failed to read action log: %w", err)
				}
				if err := json.Unmarshal(data, &log); err != nil {
					return fmt.Errorf("failed to parse action log %s: %w", logPath, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), failure.Categorize(errMsg, log))
			return nil
		},
	}
	cmd.Flags().StringVarP(&errMsg, "error", "e", "", "the failure message")
	cmd.Flags().StringVarP(&logPath, "log", "l", "", "JSON file holding the action log")
	return cmd
}
