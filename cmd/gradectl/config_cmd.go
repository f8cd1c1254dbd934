package main

import (
	"github.com/spf13/cobra"
)

const redacted = "********"

func newConfigCmd(g *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long:  `Loads and validates the configuration, then prints it with secrets redacted. No connection is opened.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			out := *cfg
			if out.Database.Password != "" {
				out.Database.Password = redacted
			}
			if out.Database.URL != "" {
				out.Database.URL = redacted
			}
			if out.Redis.Password != "" {
				out.Redis.Password = redacted
			}
			return g.print(cmd, out)
		},
	}
}
