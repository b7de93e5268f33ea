// Package config prints or saves the effective configuration.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kickspeed/kickspeed/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var writePath string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the effective configuration with credentials redacted, or write it unredacted to a file with --write.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if writePath != "" {
				if err := conf.SaveYAMLConfig(writePath, settings); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "configuration written to %s\n", writePath)
				return nil
			}

			data, err := conf.DumpYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&writePath, "write", "", "Write the configuration to this file instead of printing it")
	return cmd
}
