// Package app wires the launcher's components together from configuration.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/config"
	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
	"github.com/skunkworks/skunkscrape/internal/store"
)

// defaultSourcesFile is where the bulk crawler reads its seeds when crawler.yaml names none.
var defaultSourcesFile = filepath.Join("sources", "sources.csv")

// Options control how an App is assembled.
type Options struct {
	Config *config.Config

	// UniqueArtifact gives this instance its own proxy file instead of the
	// shared one. A configured proxy file still wins.
	UniqueArtifact bool

	// Launcher replaces the process launcher; nil runs real child processes.
	Launcher plugin.Launcher

	// Stdout and Stderr receive child output when Launcher is nil.
	Stdout io.Writer
	Stderr io.Writer

	Observers []orchestrator.Observer
	Logger    zerolog.Logger
}

// App owns the catalog, proxy pool, history store and orchestrator.
type App struct {
	config       *config.Config
	catalog      *plugin.Catalog
	pool         *proxy.Pool
	materializer *proxy.Materializer
	store        *store.Store
	orch         *orchestrator.Orchestrator
	logger       zerolog.Logger
}

// New loads the manifest and crawler settings and builds the orchestrator.
// A missing manifest is fatal; a missing proxy source is not.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	l := opts.Logger

	catalog, err := plugin.LoadCatalog(cfg.Resolve(cfg.Paths.Manifest))
	if err != nil {
		return nil, err
	}

	crawler, err := config.LoadCrawler(cfg.Resolve(cfg.Paths.Crawler))
	if err != nil {
		return nil, err
	}
	if crawler.SourcesFile == "" {
		crawler.SourcesFile = defaultSourcesFile
	}
	crawler.SourcesFile = cfg.Resolve(crawler.SourcesFile)

	artifact := cfg.Resolve(cfg.Proxy.File)
	if artifact == "" && opts.UniqueArtifact {
		artifact = proxy.UniqueArtifactPath()
	}

	a := &App{
		config:       cfg,
		catalog:      catalog,
		pool:         proxy.NewPool(cfg.Resolve(cfg.Paths.Proxies)),
		materializer: proxy.NewMaterializer(artifact, proxy.Format(cfg.Proxy.Format), l.With().Str("component", "proxy").Logger()),
		logger:       l,
	}

	launcher := opts.Launcher
	if launcher == nil {
		el := plugin.NewExecLauncher(l.With().Str("component", "launcher").Logger())
		el.Dir = cfg.Paths.Root
		if opts.Stdout != nil {
			el.Stdout = opts.Stdout
		}
		if opts.Stderr != nil {
			el.Stderr = opts.Stderr
		}
		launcher = el
	}

	observers := append([]orchestrator.Observer(nil), opts.Observers...)
	if cfg.Paths.HistoryDB != "" {
		dbPath := cfg.Resolve(cfg.Paths.HistoryDB)
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
		st, err := store.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		a.store = st
		observers = append(observers, NewHistoryRecorder(st, l.With().Str("component", "history").Logger()))
	}

	builder := plugin.NewBuilder(cfg.Launch.Interpreter, cfg.Launch.ModulePrefix, crawler)
	builder.CrawlerPlugin = cfg.Launch.CrawlerPlugin

	a.orch = orchestrator.New(orchestrator.Config{
		Catalog:      catalog,
		Proxies:      a.pool,
		Materializer: a.materializer,
		Builder:      builder,
		Launcher:     launcher,
		Logger:       l.With().Str("component", "orchestrator").Logger(),
		Observers:    observers,
	})

	l.Debug().
		Str("manifest", cfg.Resolve(cfg.Paths.Manifest)).
		Str("proxies", a.pool.Path()).
		Str("artifact", a.materializer.Path()).
		Int("plugins", len(catalog.Plugins())).
		Bool("history", a.store != nil).
		Msg("Launcher initialized.")

	return a, nil
}

// Close releases the history store, if any.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.config
}

// Catalog returns the loaded plugin catalog.
func (a *App) Catalog() *plugin.Catalog {
	return a.catalog
}

// Pool returns the proxy pool.
func (a *App) Pool() *proxy.Pool {
	return a.pool
}

// ArtifactPath returns where the selected proxy is written.
func (a *App) ArtifactPath() string {
	return a.materializer.Path()
}

// Store returns the history store, or nil when history is disabled.
func (a *App) Store() *store.Store {
	return a.store
}

// Orchestrator returns the run orchestrator.
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}
