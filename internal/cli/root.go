package cli

import (
	"fmt"
	"log/slog"

	"github.com/DanielMTyler/ellie-sub000/internal/config"
	"github.com/DanielMTyler/ellie-sub000/internal/logging"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

var (
	flagConfig    string
	flagEnvFile   string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	cfg    *config.Config
	logger *slog.Logger
)

// NewRootCmd creates the root cobra command for the ellie CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ellie",
		Short: "ellie — frame-driven process scheduler and event bus",
		Long: "ellie runs scenarios of cooperative process chains on a fixed-rate frame loop\n" +
			"with a deferred, time-budgeted event bus.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFiles()...); err != nil {
				return err
			}
			c, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				c.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				c.LogFormat = flagLogFormat
			}
			if flagDebug {
				c.LogLevel = "debug"
			}
			if err := logging.ValidateFormat(c.LogFormat); err != nil {
				return err
			}
			cfg = c
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(c.LogLevel), c.LogFormat, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (YAML); missing file uses defaults")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", "", "Load environment variables from this file (default .env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newTraceCmd(),
		newVersionCmd(),
	)

	return root
}

func envFiles() []string {
	if flagEnvFile == "" {
		return nil
	}
	return []string{flagEnvFile}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ellie version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "ellie %s\n", Version)
			return err
		},
	}
}
