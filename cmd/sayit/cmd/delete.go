package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a speech with its sections and archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		outcome, err := rt.service.DeleteSpeech(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s: %d sections", outcome.Filename, outcome.Sections)
		if len(outcome.Pruned) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", pruned speakers %s", strings.Join(outcome.Pruned, ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
