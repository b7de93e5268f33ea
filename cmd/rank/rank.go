// Package rank prints the daily ranking of a stored result.
package rank

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kickspeed/kickspeed/internal/conf"
	"github.com/kickspeed/kickspeed/internal/datastore"
	"github.com/kickspeed/kickspeed/internal/leaderboard"
)

// Command creates the rank command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "rank [id]",
		Short: "Print the daily ranking of a submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := datastore.NewFileStore(settings.Paths.Outputs, 0)
			if err != nil {
				return err
			}

			ranking, err := leaderboard.NewEngine(store).Rank(args[0])
			if err != nil {
				return err
			}
			if ranking == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no ranking available")
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(ranking)
		},
	}
}
