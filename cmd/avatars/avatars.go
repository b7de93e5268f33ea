// Package avatars implements the avatar batch download command.
package avatars

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kickspeed/kickspeed/internal/avatars"
	"github.com/kickspeed/kickspeed/internal/conf"
)

// Command creates the avatars command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "avatars",
		Short: "Download generated avatar images",
		Long:  "Fetch one generated image per configured prompt into the public avatars directory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen, err := avatars.NewGenerator(&settings.Avatars, settings.Paths.Public, nil)
			if err != nil {
				return err
			}

			results, err := gen.Generate(cmd.Context())
			if err != nil {
				return err
			}

			failed := 0
			for i, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%d/%d failed: %v\n", i+1, len(results), r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d/%d saved %s\n", i+1, len(results), r.Path)
			}

			if len(results) > 0 && failed == len(results) {
				return fmt.Errorf("all %d avatar downloads failed", failed)
			}
			return nil
		},
	}
}
