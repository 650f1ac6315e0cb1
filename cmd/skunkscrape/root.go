package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skunkworks/skunkscrape/internal/app"
	"github.com/skunkworks/skunkscrape/internal/config"
	"github.com/skunkworks/skunkscrape/internal/logger"
	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
)

const defaultConfigPath = "skunkscrape.ini"

// globalOptions are shared by the root command and every subcommand.
type globalOptions struct {
	configPath  string
	proxyFormat string
	logLevel    string
}

// runOptions describe one launch request from the command line.
type runOptions struct {
	plugin      string
	category    string
	all         bool
	url         string
	depth       int
	toWebhook   bool
	targetLeads int
	proxy       string
	listProxies bool
}

func newRootCmd() *cobra.Command {
	global := &globalOptions{}
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "skunkscrape",
		Short: "SkunkScrape plugin launcher",
		Long: `Runs scraping plugins declared in the plugin manifest as child processes.
A single plugin, a whole category or every plugin can be launched; each
receives the run parameters and, when one is available, a proxy file.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, global, opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&global.configPath, "config", defaultConfigPath, "path to the launcher ini file; its directory is the project root")
	pf.StringVar(&global.proxyFormat, "proxy-format", "", `proxy file format, "colon" or "json" (overrides the config file)`)
	pf.StringVar(&global.logLevel, "log-level", "", "log level (overrides the config file)")

	f := cmd.Flags()
	f.StringVar(&opts.plugin, "plugin", "", "run a single plugin (e.g. gumtree_scraper)")
	f.StringVar(&opts.category, "category", "", "run all plugins in a category")
	f.BoolVar(&opts.all, "all", false, "run all plugins")
	f.StringVar(&opts.url, "url", "", "start URL or search term, if the plugin takes one")
	f.IntVar(&opts.depth, "depth", 0, "crawl depth for the smart and bulk crawlers")
	f.BoolVar(&opts.toWebhook, "to-webhook", false, "push results to the webhook")
	f.IntVar(&opts.targetLeads, "target-leads", 0, "desired number of leads")
	f.StringVar(&opts.proxy, "proxy", "", "proxy to use: index or host:port from the proxy list")
	f.BoolVar(&opts.listProxies, "list-proxies", false, "list available proxies and exit")

	cmd.AddCommand(newServeCmd(global))
	cmd.AddCommand(newHistoryCmd(global))
	cmd.AddCommand(newCategoriesCmd(global))
	return cmd
}

// setup loads the configuration, applies flag overrides and initializes logging.
func (g *globalOptions) setup() (*config.Config, io.Closer, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.proxyFormat != "" {
		cfg.Proxy.Format = g.proxyFormat
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	closer, err := logger.Init(logger.Conf{
		Level: cfg.Log.Level,
		File:  cfg.Resolve(cfg.Log.File),
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

// target picks the request's target. --all wins over --category, which wins over --plugin.
func (o *runOptions) target() (orchestrator.Target, bool) {
	switch {
	case o.all:
		return orchestrator.All(), true
	case o.category != "":
		return orchestrator.Category(o.category), true
	case o.plugin != "":
		return orchestrator.SinglePlugin(o.plugin), true
	default:
		return orchestrator.Target{}, false
	}
}

func (o *runOptions) params() plugin.Params {
	return plugin.Params{
		URL:         o.url,
		Depth:       o.depth,
		ToWebhook:   o.toWebhook,
		TargetLeads: o.targetLeads,
		Proxy:       proxy.ParseSelector(o.proxy),
	}
}

func runRoot(cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	cfg, closer, err := global.setup()
	if err != nil {
		return err
	}
	defer closer.Close()

	out := cmd.OutOrStdout()

	if opts.listProxies {
		return listProxies(out, proxy.NewPool(cfg.Resolve(cfg.Paths.Proxies)))
	}

	target, ok := opts.target()
	if !ok {
		return cmd.Help()
	}

	logFile := cfg.Resolve(cfg.Log.File)
	a, err := app.New(app.Options{
		Config:    cfg,
		Stdout:    out,
		Stderr:    cmd.ErrOrStderr(),
		Observers: []orchestrator.Observer{newPrinter(out, logFile)},
		Logger:    log.Logger,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize launcher.")
		return err
	}
	defer a.Close()

	results, err := a.Orchestrator().Run(cmd.Context(), target, opts.params())
	if err != nil {
		reportRejected(out, a.Catalog(), target, err)
		return err
	}

	if len(results) > 1 {
		failed := 0
		for _, res := range results {
			if !res.Outcome.Success {
				failed++
			}
		}
		fmt.Fprintf(out, "\n%d of %d plugins succeeded.\n", len(results)-failed, len(results))
	}
	return nil
}

func listProxies(w io.Writer, pool *proxy.Pool) error {
	records, err := pool.List()
	if err != nil {
		return err
	}
	for i, rec := range records {
		fmt.Fprintf(w, "[%d] %s\n", i, rec.Label())
	}
	return nil
}

// reportRejected prints the operator-facing line for a request that launched nothing.
func reportRejected(w io.Writer, catalog *plugin.Catalog, target orchestrator.Target, err error) {
	switch {
	case errors.Is(err, plugin.ErrUnknownPlugin):
		names := catalog.Plugins()
		sort.Strings(names)
		fmt.Fprintf(w, "Unknown plugin: %s\n", target.Name)
		fmt.Fprintf(w, "Available plugins: %s\n", strings.Join(names, ", "))
	case errors.Is(err, plugin.ErrUnknownCategory):
		fmt.Fprintf(w, "Unknown category: %s\n", target.Name)
		fmt.Fprintf(w, "Available categories: %s\n", strings.Join(catalog.Categories(), ", "))
	}
}
