package cmd

import (
	"fmt"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"sayit/api/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <filename-or-section-id>",
	Short: "Export a speech or section as an, md, html or pdf",
	Long: `Export a speech, or a single section by numeric ID.

Without --out the document is written to stdout. With --out it replaces the
target file atomically.

Examples:
  sayit export 2024-budget-talk --format md
  sayit export 2024-budget-talk --format pdf --out budget.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var (
	exportFormat string
	exportOut    string
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.FormatMD),
		"output format (an, md, html, pdf)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "",
		"output file (default: stdout)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	entry, err := rt.service.Document(cmd.Context(), args[0], format)
	if err != nil {
		return fmt.Errorf("export %s: %w", args[0], err)
	}
	if exportOut == "" {
		_, err := cmd.OutOrStdout().Write(entry.Body)
		return err
	}
	if err := renameio.WriteFile(exportOut, entry.Body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	logger.Info().Str("key", args[0]).Str("format", string(format)).Str("out", exportOut).Int("bytes", len(entry.Body)).Msg("exported")
	return nil
}
