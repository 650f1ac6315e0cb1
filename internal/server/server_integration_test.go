package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skunkworks/skunkscrape/internal/config"
	"github.com/skunkworks/skunkscrape/internal/orchestrator"
	"github.com/skunkworks/skunkscrape/internal/plugin"
	"github.com/skunkworks/skunkscrape/internal/proxy"
)

type scriptedLauncher struct {
	fail map[string]bool
}

func (l scriptedLauncher) Launch(ctx context.Context, inv plugin.Invocation) plugin.Outcome {
	if l.fail[inv[2]] {
		return plugin.Failed(2, "exit status 2")
	}
	return plugin.Succeeded()
}

func newLauncherServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	catalog, err := plugin.NewCatalog(&plugin.Manifest{Categories: []plugin.Category{
		{Name: "classifieds", Plugins: []string{"gumtree_scraper", "olx_scraper"}},
	}})
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	dir := t.TempDir()
	hub := NewHub(zerolog.Nop())
	pool := proxy.NewPool(filepath.Join(dir, "proxies.json"))
	orch := orchestrator.New(orchestrator.Config{
		Catalog:      catalog,
		Proxies:      pool,
		Materializer: proxy.NewMaterializer(filepath.Join(dir, "selected_proxy.txt"), proxy.FormatColon, zerolog.Nop()),
		Builder:      plugin.NewBuilder("python", "skunkscrape.plugins", config.CrawlerConf{}),
		Launcher:     scriptedLauncher{fail: map[string]bool{"skunkscrape.plugins.olx_scraper": true}},
		Logger:       zerolog.Nop(),
		Observers:    []orchestrator.Observer{hub},
	})

	srv := New(Config{
		Catalog: catalog,
		Pool:    pool,
		Runner:  orch,
		Events:  hub,
		Logger:  zerolog.Nop(),
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return ts, hub
}

func TestAPI_RunWorkflowWithEvents(t *testing.T) {
	ts, hub := newLauncherServer(t)
	client := ts.Client()

	// 1. Subscribe to events
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s error = %v", wsURL, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client was not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 2. Run a category
	resp, err := client.Post(ts.URL+"/api/runs", "application/json", bytes.NewBufferString(`{"category": "classifieds", "url": "cars"}`))
	if err != nil {
		t.Fatalf("POST /api/runs error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var run struct {
		BatchID   string `json:"batch_id"`
		Succeeded int    `json:"succeeded"`
		Failed    int    `json:"failed"`
	}
	json.NewDecoder(resp.Body).Decode(&run)
	resp.Body.Close()

	if run.Succeeded != 1 || run.Failed != 1 || run.BatchID == "" {
		t.Errorf("run summary = %+v", run)
	}

	// 3. Read the lifecycle events
	wantTypes := []string{EventPluginStarted, EventPluginFinished, EventPluginStarted, EventPluginFinished}
	wantPlugins := []string{"gumtree_scraper", "gumtree_scraper", "olx_scraper", "olx_scraper"}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := range wantTypes {
		var ev struct {
			Type   string `json:"type"`
			Result struct {
				BatchID string `json:"batch_id"`
				Plugin  string `json:"plugin"`
				Target  string `json:"target"`
				Outcome struct {
					Success  bool `json:"success"`
					ExitCode int  `json:"exit_code"`
				} `json:"outcome"`
			} `json:"result"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("event %d: read error = %v", i, err)
		}
		if ev.Type != wantTypes[i] || ev.Result.Plugin != wantPlugins[i] {
			t.Errorf("event %d = %s/%s, want %s/%s", i, ev.Type, ev.Result.Plugin, wantTypes[i], wantPlugins[i])
		}
		if ev.Result.BatchID != run.BatchID {
			t.Errorf("event %d batch = %q, want %q", i, ev.Result.BatchID, run.BatchID)
		}
		if ev.Result.Target != "category classifieds" {
			t.Errorf("event %d target = %q", i, ev.Result.Target)
		}
		if i == 3 && (ev.Result.Outcome.Success || ev.Result.Outcome.ExitCode != 2) {
			t.Errorf("olx_scraper outcome = %+v", ev.Result.Outcome)
		}
	}

	// 4. Unknown targets are rejected without events
	resp, _ = client.Post(ts.URL+"/api/runs", "application/json", bytes.NewBufferString(`{"plugin": "nope"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("POST unknown plugin status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	ts, _ := newLauncherServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status  string `json:"status"`
		Uptime  string `json:"uptime"`
		Plugins int    `json:"plugins"`
		History bool   `json:"history"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
	if health.Plugins != 2 || health.History {
		t.Errorf("health = %+v", health)
	}
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	s := New(Config{Events: NewHub(zerolog.Nop()), Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}
