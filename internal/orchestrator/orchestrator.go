// Package orchestrator drives plugin runs: it expands a target into plugin
// names and, for each, resolves a proxy, materializes it, builds the command
// line and launches the plugin.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
)

// TargetKind identifies what a run request names.
type TargetKind int

const (
	// TargetPlugin runs a single plugin.
	TargetPlugin TargetKind = iota
	// TargetCategory runs every plugin of a category.
	TargetCategory
	// TargetAll runs every plugin in the catalog.
	TargetAll
)

// Target is the subject of a run request.
type Target struct {
	Kind TargetKind
	Name string
}

// SinglePlugin targets one plugin by name.
func SinglePlugin(name string) Target { return Target{Kind: TargetPlugin, Name: name} }

// Category targets every plugin of a category.
func Category(name string) Target { return Target{Kind: TargetCategory, Name: name} }

// All targets every plugin in the catalog.
func All() Target { return Target{Kind: TargetAll} }

func (t Target) String() string {
	switch t.Kind {
	case TargetPlugin:
		return "plugin " + t.Name
	case TargetCategory:
		return "category " + t.Name
	default:
		return "all plugins"
	}
}

// MarshalText encodes the target in its log form.
func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Result is the outcome of one plugin launch within a batch.
type Result struct {
	ID         string            `json:"id"`
	BatchID    string            `json:"batch_id"`
	Target     Target            `json:"target"`
	Params     plugin.Params     `json:"params"`
	Plugin     string            `json:"plugin"`
	Argv       plugin.Invocation `json:"argv"`
	Proxy      string            `json:"proxy,omitempty"`
	Outcome    plugin.Outcome    `json:"outcome"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ProxySource resolves a selector to a proxy record. ok is false when none matches.
type ProxySource interface {
	Resolve(sel proxy.Selector) (rec proxy.Record, ok bool, err error)
}

// Materializer writes a selected proxy where the plugin can read it.
type Materializer interface {
	Materialize(rec *proxy.Record) (path string, ok bool, err error)
}

// CommandBuilder builds a plugin's command line.
type CommandBuilder interface {
	Build(name string, params plugin.Params, proxyPath string) plugin.Invocation
}

// Observer is notified around every plugin launch. Implementations must not block for long.
type Observer interface {
	PluginStarted(res Result)
	PluginFinished(res Result)
}

// Config holds the collaborators of an Orchestrator.
type Config struct {
	Catalog      *plugin.Catalog
	Proxies      ProxySource
	Materializer Materializer
	Builder      CommandBuilder
	Launcher     plugin.Launcher
	Logger       zerolog.Logger
	Observers    []Observer
}

// Orchestrator runs plugins strictly one after another.
type Orchestrator struct {
	config Config
	mu     sync.Mutex
	now    func() time.Time
}

// New creates an Orchestrator from its collaborators.
func New(config Config) *Orchestrator {
	return &Orchestrator{
		config: config,
		now:    time.Now,
	}
}

// Catalog returns the catalog the orchestrator resolves targets against.
func (o *Orchestrator) Catalog() *plugin.Catalog {
	return o.config.Catalog
}

// Resolve expands target into plugin names without launching anything.
func (o *Orchestrator) Resolve(target Target) ([]string, error) {
	c := o.config.Catalog
	switch target.Kind {
	case TargetPlugin:
		if !c.HasPlugin(target.Name) {
			return nil, fmt.Errorf("%w: %s", plugin.ErrUnknownPlugin, target.Name)
		}
		return []string{target.Name}, nil
	case TargetCategory:
		return c.CategoryPlugins(target.Name)
	case TargetAll:
		return c.Plugins(), nil
	default:
		return nil, fmt.Errorf("unknown target kind %d", target.Kind)
	}
}

// Run launches every plugin named by target and returns one Result per plugin.
// Unknown targets fail before any process starts. A failing plugin does not
// stop the batch; its failure is carried in its Result. Concurrent calls are
// serialized.
func (o *Orchestrator) Run(ctx context.Context, target Target, params plugin.Params) ([]Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	names, err := o.Resolve(target)
	if err != nil {
		o.config.Logger.Warn().Err(err).Str("target", target.String()).Msg("Rejected run request.")
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	batchID := uuid.New().String()
	l := o.config.Logger.With().Str("batch", batchID).Logger()
	l.Info().
		Str("target", target.String()).
		Int("plugins", len(names)).
		Str("proxy_selector", params.Proxy.String()).
		Msg("Starting run.")

	results := make([]Result, 0, len(names))
	for _, name := range names {
		res := Result{
			ID:      uuid.New().String(),
			BatchID: batchID,
			Target:  target,
			Params:  params,
			Plugin:  name,
		}
		results = append(results, o.runOne(ctx, l, res))
	}

	failed := 0
	for _, r := range results {
		if !r.Outcome.Success {
			failed++
		}
	}
	l.Info().Int("succeeded", len(results)-failed).Int("failed", failed).Msg("Run finished.")

	return results, nil
}

// runOne resolves and materializes the proxy, builds the command line and
// launches a single plugin. Once ctx is done the plugin is only reported
// as not started. The same selector is resolved for every plugin,
// so a batch shares one proxy.
func (o *Orchestrator) runOne(ctx context.Context, l zerolog.Logger, res Result) Result {
	name, params := res.Plugin, res.Params

	if err := ctx.Err(); err != nil {
		res.StartedAt = o.now()
		res.FinishedAt = res.StartedAt
		res.Outcome = plugin.Failed(-1, fmt.Sprintf("not started: %v", err))
		l.Warn().Str("plugin", name).Err(err).Msg("Skipping plugin, run interrupted.")
		o.notifyFinished(res)
		return res
	}

	proxyPath := ""
	if o.config.Proxies != nil {
		rec, ok, err := o.config.Proxies.Resolve(params.Proxy)
		switch {
		case err != nil:
			l.Warn().Err(err).Str("plugin", name).Msg("Failed to load proxies, running without a proxy.")
		case !ok:
			l.Debug().Str("plugin", name).Str("selector", params.Proxy.String()).Msg("No proxy matched selector.")
		default:
			res.Proxy = rec.Address()
			if o.config.Materializer != nil {
				path, written, err := o.config.Materializer.Materialize(&rec)
				if err != nil {
					l.Warn().Err(err).Str("plugin", name).Msg("Failed to write proxy file, running without a proxy.")
					res.Proxy = ""
				} else if written {
					proxyPath = path
				}
			}
		}
	}

	res.Argv = o.config.Builder.Build(name, params, proxyPath)
	res.StartedAt = o.now()
	o.notifyStarted(res)

	l.Info().Str("plugin", name).Str("proxy", res.Proxy).Strs("argv", res.Argv).Msg("Launching plugin.")

	res.Outcome = o.config.Launcher.Launch(ctx, res.Argv)
	res.FinishedAt = o.now()

	if res.Outcome.Success {
		l.Info().Str("plugin", name).Dur("duration", res.FinishedAt.Sub(res.StartedAt)).Msg("Plugin finished.")
	} else {
		l.Error().
			Str("plugin", name).
			Str("command", res.Argv.String()).
			Int("exit_code", res.Outcome.ExitCode).
			Str("reason", res.Outcome.Reason).
			Msg("Plugin failed.")
	}

	o.notifyFinished(res)
	return res
}

func (o *Orchestrator) notifyStarted(res Result) {
	for _, obs := range o.config.Observers {
		obs.PluginStarted(res)
	}
}

func (o *Orchestrator) notifyFinished(res Result) {
	for _, obs := range o.config.Observers {
		obs.PluginFinished(res)
	}
}
