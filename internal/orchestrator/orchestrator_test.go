package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/config"
	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
)

// fakeLauncher records invocations and returns scripted outcomes by plugin module.
type fakeLauncher struct {
	mu       sync.Mutex
	calls    []plugin.Invocation
	outcomes map[string]plugin.Outcome
}

func (f *fakeLauncher) Launch(ctx context.Context, inv plugin.Invocation) plugin.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)
	if out, ok := f.outcomes[inv[2]]; ok {
		return out
	}
	return plugin.Succeeded()
}

// countingSource wraps a Pool and counts Resolve calls.
type countingSource struct {
	pool  *proxy.Pool
	calls int
}

func (c *countingSource) Resolve(sel proxy.Selector) (proxy.Record, bool, error) {
	c.calls++
	return c.pool.Resolve(sel)
}

type recordingObserver struct {
	started  []string
	finished []Result
}

func (r *recordingObserver) PluginStarted(res Result)  { r.started = append(r.started, res.Plugin) }
func (r *recordingObserver) PluginFinished(res Result) { r.finished = append(r.finished, res) }

type fixture struct {
	orch     *Orchestrator
	launcher *fakeLauncher
	source   *countingSource
	observer *recordingObserver
	artifact string
}

func newFixture(t *testing.T, proxiesJSON string) *fixture {
	t.Helper()
	dir := t.TempDir()

	catalog, err := plugin.NewCatalog(&plugin.Manifest{Categories: []plugin.Category{
		{Name: "classifieds", Plugins: []string{"gumtree_scraper", "olx_scraper", "junk_mail"}},
		{Name: "directories", Plugins: []string{"smart_contact_crawler"}},
	}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	proxiesPath := filepath.Join(dir, "proxies.json")
	if proxiesJSON != "" {
		if err := os.WriteFile(proxiesPath, []byte(proxiesJSON), 0644); err != nil {
			t.Fatalf("failed to write proxies: %v", err)
		}
	}

	f := &fixture{
		launcher: &fakeLauncher{outcomes: map[string]plugin.Outcome{}},
		source:   &countingSource{pool: proxy.NewPool(proxiesPath)},
		observer: &recordingObserver{},
		artifact: filepath.Join(dir, "selected_proxy.txt"),
	}
	f.orch = New(Config{
		Catalog:      catalog,
		Proxies:      f.source,
		Materializer: proxy.NewMaterializer(f.artifact, proxy.FormatColon, zerolog.Nop()),
		Builder:      plugin.NewBuilder("python", "skunkscrape.plugins", config.CrawlerConf{}),
		Launcher:     f.launcher,
		Logger:       zerolog.Nop(),
		Observers:    []Observer{f.observer},
	})
	return f
}

const twoProxies = `[
	{"host": "10.0.0.1", "port": 8080, "username": "u", "password": "p"},
	{"host": "10.0.0.2", "port": 3128, "username": "v", "password": "q"}
]`

func TestRun_SinglePlugin(t *testing.T) {
	f := newFixture(t, twoProxies)

	results, err := f.orch.Run(context.Background(), SinglePlugin("smart_contact_crawler"), plugin.Params{
		URL:   "http://example.com",
		Depth: 2,
		Proxy: proxy.ParseSelector("1"),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	res := results[0]
	if !res.Outcome.Success {
		t.Errorf("expected success, got %+v", res.Outcome)
	}
	if res.Proxy != "10.0.0.2:3128" {
		t.Errorf("Proxy = %q, want 10.0.0.2:3128", res.Proxy)
	}
	if res.ID == "" || res.BatchID == "" {
		t.Error("expected run and batch IDs")
	}

	want := plugin.Invocation{"python", "-m", "skunkscrape.plugins.smart_contact_crawler",
		"--url", "http://example.com", "--depth", "2", "--proxy-file", f.artifact}
	if !reflect.DeepEqual(f.launcher.calls[0], want) {
		t.Errorf("launched %v\nwant %v", f.launcher.calls[0], want)
	}

	data, err := os.ReadFile(f.artifact)
	if err != nil {
		t.Fatalf("failed to read artifact: %v", err)
	}
	if string(data) != "10.0.0.2:3128:v:q" {
		t.Errorf("artifact = %q", data)
	}
}

func TestRun_UnknownTargetsLaunchNothing(t *testing.T) {
	f := newFixture(t, twoProxies)

	_, err := f.orch.Run(context.Background(), SinglePlugin("nonexistent"), plugin.Params{})
	if !errors.Is(err, plugin.ErrUnknownPlugin) || !plugin.IsUnknownTarget(err) {
		t.Errorf("expected unknown plugin error, got %v", err)
	}

	_, err = f.orch.Run(context.Background(), Category("nonexistent"), plugin.Params{})
	if !errors.Is(err, plugin.ErrUnknownCategory) || !plugin.IsUnknownTarget(err) {
		t.Errorf("expected unknown category error, got %v", err)
	}

	if len(f.launcher.calls) != 0 {
		t.Errorf("expected no launches, got %d", len(f.launcher.calls))
	}
	if f.source.calls != 0 {
		t.Errorf("expected no proxy resolution, got %d", f.source.calls)
	}
	if _, err := os.Stat(f.artifact); !os.IsNotExist(err) {
		t.Error("no proxy file should be written for an unknown target")
	}
}

func TestRun_CategoryContinuesPastFailure(t *testing.T) {
	f := newFixture(t, twoProxies)
	f.launcher.outcomes["skunkscrape.plugins.olx_scraper"] = plugin.Failed(1, "exit status 1")

	results, err := f.orch.Run(context.Background(), Category("classifieds"), plugin.Params{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(f.launcher.calls) != 3 {
		t.Fatalf("expected 3 launches, got %d", len(f.launcher.calls))
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	wantOrder := []string{"gumtree_scraper", "olx_scraper", "junk_mail"}
	wantSuccess := []bool{true, false, true}
	for i, res := range results {
		if res.Plugin != wantOrder[i] {
			t.Errorf("result %d plugin = %q, want %q", i, res.Plugin, wantOrder[i])
		}
		if res.Outcome.Success != wantSuccess[i] {
			t.Errorf("result %d success = %v, want %v", i, res.Outcome.Success, wantSuccess[i])
		}
		if res.BatchID != results[0].BatchID {
			t.Error("results of one request should share a batch ID")
		}
	}
	if results[1].Outcome.ExitCode != 1 {
		t.Errorf("failed outcome exit code = %d, want 1", results[1].Outcome.ExitCode)
	}

	if !reflect.DeepEqual(f.observer.started, wantOrder) {
		t.Errorf("observer started = %v", f.observer.started)
	}
	if len(f.observer.finished) != 3 {
		t.Errorf("observer finished %d times, want 3", len(f.observer.finished))
	}
}

func TestRun_AllUsesSameProxyForEveryPlugin(t *testing.T) {
	f := newFixture(t, twoProxies)

	results, err := f.orch.Run(context.Background(), All(), plugin.Params{Proxy: proxy.ParseSelector("10.0.0.2:3128")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	// Selection runs once per plugin, each time with the same selector.
	if f.source.calls != 4 {
		t.Errorf("expected 4 proxy resolutions, got %d", f.source.calls)
	}
	for _, res := range results {
		if res.Proxy != "10.0.0.2:3128" {
			t.Errorf("%s proxy = %q, want 10.0.0.2:3128", res.Plugin, res.Proxy)
		}
	}

	want := []string{"gumtree_scraper", "olx_scraper", "junk_mail", "smart_contact_crawler"}
	for i, res := range results {
		if res.Plugin != want[i] {
			t.Errorf("result %d = %q, want %q", i, res.Plugin, want[i])
		}
	}
}

func TestRun_NoProxyOmitsFlag(t *testing.T) {
	tests := []struct {
		name     string
		proxies  string
		selector proxy.Selector
	}{
		{"missing source", "", proxy.Default()},
		{"empty pool", "[]", proxy.Default()},
		{"ordinal out of range", twoProxies, proxy.ParseSelector("7")},
		{"unmatched address", twoProxies, proxy.ParseSelector("1.2.3.4:5")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.proxies)

			results, err := f.orch.Run(context.Background(), SinglePlugin("gumtree_scraper"), plugin.Params{Proxy: tt.selector})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if results[0].Proxy != "" {
				t.Errorf("expected no proxy, got %q", results[0].Proxy)
			}
			for _, arg := range f.launcher.calls[0] {
				if arg == "--proxy-file" {
					t.Errorf("unexpected --proxy-file in %v", f.launcher.calls[0])
				}
			}
			if _, err := os.Stat(f.artifact); !os.IsNotExist(err) {
				t.Error("no proxy file should be written")
			}
		})
	}
}

func TestRun_BrokenProxySourceIsNotFatal(t *testing.T) {
	f := newFixture(t, "{broken")

	results, err := f.orch.Run(context.Background(), SinglePlugin("gumtree_scraper"), plugin.Params{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !results[0].Outcome.Success || results[0].Proxy != "" {
		t.Errorf("expected proxy-less success, got %+v", results[0])
	}
}

func TestRun_InvalidParams(t *testing.T) {
	f := newFixture(t, twoProxies)

	if _, err := f.orch.Run(context.Background(), All(), plugin.Params{Depth: -1}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(f.launcher.calls) != 0 {
		t.Error("no plugin should be launched for invalid params")
	}
}

func TestRun_CanceledContextSkipsRemaining(t *testing.T) {
	f := newFixture(t, twoProxies)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := f.orch.Run(ctx, Category("classifieds"), plugin.Params{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Outcome.Success {
			t.Errorf("%s should not have run", res.Plugin)
		}
	}
	if len(f.launcher.calls) != 0 {
		t.Errorf("expected no launches, got %d", len(f.launcher.calls))
	}
	if f.source.calls != 0 {
		t.Errorf("expected no proxy lookups, got %d", f.source.calls)
	}
	if _, err := os.Stat(f.artifact); !os.IsNotExist(err) {
		t.Errorf("proxy file should not be written after interrupt, stat err = %v", err)
	}
	if len(f.observer.started) != 0 {
		t.Errorf("no plugin should be reported as started, got %v", f.observer.started)
	}
	if len(f.observer.finished) != 3 {
		t.Errorf("expected 3 finished notifications, got %d", len(f.observer.finished))
	}
}

func TestResolve(t *testing.T) {
	f := newFixture(t, "")

	names, err := f.orch.Resolve(Category("directories"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !reflect.DeepEqual(names, []string{"smart_contact_crawler"}) {
		t.Errorf("Resolve(directories) = %v", names)
	}

	if len(f.launcher.calls) != 0 {
		t.Error("Resolve should not launch anything")
	}
}

func TestResult_CarriesRequest(t *testing.T) {
	f := newFixture(t, twoProxies)

	params := plugin.Params{URL: "cars", ToWebhook: true, Proxy: proxy.ParseSelector("0")}
	results, err := f.orch.Run(context.Background(), Category("classifieds"), params)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := results[0]
	if res.Target != Category("classifieds") {
		t.Errorf("Target = %v", res.Target)
	}
	if res.Params != params {
		t.Errorf("Params = %+v, want %+v", res.Params, params)
	}

	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["target"] != "category classifieds" {
		t.Errorf("target = %v", decoded["target"])
	}
	p, _ := decoded["params"].(map[string]any)
	if p["proxy"] != "0" || p["url"] != "cars" {
		t.Errorf("params = %v", p)
	}
}
