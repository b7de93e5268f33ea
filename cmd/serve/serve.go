// Package serve implements the HTTP service command.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kickspeed/kickspeed/internal/api"
	"github.com/kickspeed/kickspeed/internal/app"
	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/logger"
)

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP analysis service",
		Long:  "Accept kick video uploads, run the analysis pipeline and serve results with daily rankings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Server.Host, "host", viper.GetString("server.host"), "Interface to listen on")
	cmd.Flags().IntVarP(&settings.Server.Port, "port", "p", viper.GetInt("server.port"), "First port to try")
	cmd.Flags().IntVar(&settings.Server.PortRetries, "portretries", viper.GetInt("server.portretries"), "Following ports to try when the port is in use")
	cmd.Flags().StringVar(&settings.Server.PublicBaseURL, "publicbaseurl", viper.GetString("server.publicbaseurl"), "Base URL of published videos and QR codes")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

// Run binds the listener, wires the service and serves until SIGINT or SIGTERM.
func Run(ctx context.Context, settings *conf.Settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Global().Module("serve")

	// the public base URL defaults to the port actually bound
	ln, port, err := api.Listen(settings.Server.Host, settings.Server.Port, settings.Server.PortRetries)
	if err != nil {
		return err
	}
	baseURL := settings.Server.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d", port)
	}

	a, err := app.New(ctx, settings, baseURL)
	if err != nil {
		ln.Close()
		return err
	}
	defer a.Close()

	srv, err := api.New(api.ConfigFromSettings(settings),
		api.WithListener(ln),
		api.WithPipeline(a.Orchestrator),
		api.WithResults(a.Store),
		api.WithRanker(a.Leaderboard),
		api.WithMetrics(a.Metrics),
	)
	if err != nil {
		ln.Close()
		return err
	}

	log.Info("kickspeed listening",
		logger.Int("port", port),
		logger.String("public_base_url", baseURL))
	if port != settings.Server.Port {
		log.Warn("configured port was busy", logger.Int("configured_port", settings.Server.Port))
	}

	return srv.Run(ctx)
}
