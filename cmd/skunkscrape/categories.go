package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skunkworks/skunkscrape/internal/plugin"
)

func newCategoriesCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:               "categories",
		Short:             "List manifest categories and their plugins",
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := global.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			catalog, err := plugin.LoadCatalog(cfg.Resolve(cfg.Paths.Manifest))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range catalog.Categories() {
				plugins, _ := catalog.CategoryPlugins(name)
				fmt.Fprintf(out, "%s: %s\n", name, strings.Join(plugins, ", "))
			}
			return nil
		},
	}
}
