package commands

import (
	"fmt"
	"os"

	"github.com/jrsteele09/fb-page-poster/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logLevel string

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fb-page-poster",
		Short: "Multi-session Facebook page poster dashboard",
		Long:  `fb-page-poster serves the dashboard API that manages several Facebook logins per browser session and posts to their pages.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(config.New().GetEnv(), logLevel)
		},
		RunE: runServe,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewPurgeIdleCommand())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging(env, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
	return nil
}
