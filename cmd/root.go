package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kickspeed/kickspeed/cmd/analyze"
	"github.com/kickspeed/kickspeed/cmd/avatars"
	"github.com/kickspeed/kickspeed/cmd/config"
	"github.com/kickspeed/kickspeed/cmd/rank"
	"github.com/kickspeed/kickspeed/cmd/serve"
	"github.com/kickspeed/kickspeed/internal/buildinfo"
	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/errors"
	"github.com/kickspeed/kickspeed/internal/logger"
)

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "kickspeed",
		Short:   "Kick video analysis service",
		Version: build.GetVersion(),
		// without a subcommand the service is started
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.Run(cmd.Context(), settings)
		},
		SilenceUsage: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}

	configCmd := config.Command(settings)

	rootCmd.AddCommand(
		serve.Command(settings),
		analyze.Command(settings),
		rank.Command(settings),
		avatars.Command(settings),
		configCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// config only prints settings, keep its output free of log lines
		if cmd.Name() == configCmd.Name() {
			return nil
		}
		return initialize(settings, build)
	}
	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		errors.FlushTelemetry(telemetryFlushTimeout)
		if err := logger.Global().Flush(); err != nil {
			fmt.Printf("error flushing logs: %v\n", err)
		}
	}

	return rootCmd
}

// initialize is called before any subcommand runs, after flags are parsed.
// It sets up logging and optional error telemetry.
func initialize(settings *conf.Settings, build *buildinfo.Context) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)

	log := logger.Global().Module("main")
	log.Info("starting kickspeed",
		logger.String("version", build.GetVersion()),
		logger.String("build_date", build.GetBuildDate()))

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, build.Release(), settings.Sentry.Environment); err != nil {
			// telemetry is optional
			log.Warn("error telemetry disabled", logger.Error(err))
		}
	}

	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Paths.Outputs, "outputs", viper.GetString("paths.outputs"), "Directory holding analysis records")
	rootCmd.PersistentFlags().StringVar(&settings.Paths.Public, "public", viper.GetString("paths.public"), "Directory holding published videos, QR codes and avatars")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}
