package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sayit/api/internal/config"
	"sayit/api/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	appVersion = "dev"
	appCommit  = "none"

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sayit",
	Short: "Speech transcript archive",
	Long: `sayit keeps speech transcripts as linked sections with stable IDs.

Editing a transcript and ingesting it again keeps the IDs of paragraphs
that survived the edit, so links to sections stay valid.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if skipsConfig(cmd) {
			return nil
		}
		return initConfig()
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./sayit.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (json, console)")

	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// skipsConfig reports whether cmd runs without loading configuration.
func skipsConfig(cmd *cobra.Command) bool {
	return cmd.Annotations["config"] == "none"
}

func initConfig() error {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	loaded, err := loader.Load()
	if err != nil {
		return err
	}
	built, err := logging.New(logging.Config{Level: loaded.Log.Level, Format: loaded.Log.Format})
	if err != nil {
		return err
	}
	cfg = loaded
	logger = built
	return nil
}
