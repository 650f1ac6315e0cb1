package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skunkworks/skunkscrape/internal/app"
	"github.com/skunkworks/skunkscrape/internal/logger"
	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/server"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var (
		addr        string
		staticDir   string
		sharedProxy bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the launcher HTTP API",
		Long: `Serves the catalog, proxy list and run history over HTTP, accepts run
requests on POST /api/runs and streams plugin events on /api/events.
Unless a proxy file is configured, this instance writes its proxy to a
file of its own so it does not race with the command line launcher.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closer, err := global.setup()
			if err != nil {
				return err
			}
			defer closer.Close()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			if staticDir == "" {
				staticDir = cfg.Resolve(cfg.Server.StaticDir)
			}

			hub := server.NewHub(logger.WithComponent("events"))
			a, err := app.New(app.Options{
				Config:         cfg,
				UniqueArtifact: !sharedProxy,
				Observers:      []orchestrator.Observer{hub},
				Logger:         log.Logger,
			})
			if err != nil {
				return err
			}
			defer a.Close()

			l := logger.WithComponent("server")
			srv := server.New(server.Config{
				StaticDir: staticDir,
				Catalog:   a.Catalog(),
				Pool:      a.Pool(),
				Runner:    a.Orchestrator(),
				Store:     a.Store(),
				Events:    hub,
				Logger:    l,
			})

			l.Info().
				Str("addr", addr).
				Str("static_dir", staticDir).
				Str("proxy_file", a.ArtifactPath()).
				Msg("Starting server.")
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides the config file)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "directory of static files to serve at /")
	cmd.Flags().BoolVar(&sharedProxy, "shared-proxy-file", false, "write the proxy to the shared temp file instead of a per-instance one")
	return cmd
}
