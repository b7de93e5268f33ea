// Package analyze runs the pipeline once on a local video file.
package analyze

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kickspeed/kickspeed/internal/api"
	"github.com/kickspeed/kickspeed/internal/app"
	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
)

// Command creates the analyze command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [video]",
		Short: "Analyze a kick video file",
		Long:  "Run the full pipeline on a local video and print the stored result with its daily ranking.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video := args[0]
			if _, err := os.Stat(video); err != nil {
				return fmt.Errorf("cannot read video: %w", err)
			}

			baseURL := settings.Server.PublicBaseURL
			if baseURL == "" {
				baseURL = fmt.Sprintf("http://localhost:%d", settings.Server.Port)
			}

			a, err := app.New(cmd.Context(), settings, baseURL)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Orchestrator.Run(cmd.Context(), video)
			if err != nil {
				return err
			}

			resp := api.ResultResponse{
				AnalysisResult: result,
				Rankings:       a.Leaderboard.RankFor(result.ID, result.Analysis.SpeedKmh, datastore.DateKey(result.CreatedAt)),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(resp)
		},
	}
}
