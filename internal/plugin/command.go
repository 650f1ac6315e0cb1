package plugin

import (
	"strconv"

	"github.com/skunkworks/skunkscrape/internal/config"
)

// CrawlerModule is the entry point of the crawler plugin.
const CrawlerModule = "crawler.crawler"

// defaultCrawlerDepth applies when neither the request nor crawler.yaml sets a depth.
const defaultCrawlerDepth = 2

// Builder turns a plugin name and run parameters into a command line.
// It performs no I/O; crawler settings are read once by the caller.
type Builder struct {
	Interpreter  string
	ModulePrefix string
	Crawler      config.CrawlerConf

	// CrawlerPlugin names the plugin launched with the crawler's own flags.
	// Empty means every plugin follows the standard convention.
	CrawlerPlugin string
}

// NewBuilder creates a Builder running plugins as "<interpreter> -m <prefix>.<name>".
func NewBuilder(interpreter, modulePrefix string, crawler config.CrawlerConf) *Builder {
	return &Builder{
		Interpreter:  interpreter,
		ModulePrefix: modulePrefix,
		Crawler:      crawler,
	}
}

// Build returns a fresh invocation for name. proxyPath is empty when no proxy was materialized.
func (b *Builder) Build(name string, params Params, proxyPath string) Invocation {
	if b.CrawlerPlugin != "" && name == b.CrawlerPlugin {
		return b.buildCrawler(params, proxyPath)
	}

	cmd := Invocation{b.Interpreter, "-m", b.module(name)}

	if params.URL != "" {
		if name == SmartContactCrawler {
			cmd = append(cmd, "--url", params.URL)
		} else {
			// Every other plugin accepts its input under any of the three names.
			cmd = append(cmd,
				"--url", params.URL,
				"--category", params.URL,
				"--search", params.URL,
			)
		}
	}
	if name == SmartContactCrawler && params.Depth > 0 {
		cmd = append(cmd, "--depth", strconv.Itoa(params.Depth))
	}
	if params.ToWebhook {
		cmd = append(cmd, "--to-webhook")
	}
	if params.TargetLeads > 0 {
		cmd = append(cmd, "--target-leads", strconv.Itoa(params.TargetLeads))
	}
	if proxyPath != "" {
		cmd = append(cmd, "--proxy-file", proxyPath)
	}

	return cmd
}

func (b *Builder) module(name string) string {
	if b.ModulePrefix == "" {
		return name
	}
	return b.ModulePrefix + "." + name
}

// buildCrawler follows the crawler's own flags: sources and tuning come from
// crawler.yaml, the request only contributes depth and the webhook switch.
func (b *Builder) buildCrawler(params Params, proxyPath string) Invocation {
	cmd := Invocation{b.Interpreter, "-m", CrawlerModule}

	if b.Crawler.SourcesFile != "" {
		cmd = append(cmd, "--sources-file", b.Crawler.SourcesFile)
	}

	depth := params.Depth
	if depth <= 0 {
		depth = b.Crawler.Depth
	}
	if depth <= 0 {
		depth = defaultCrawlerDepth
	}
	cmd = append(cmd, "--depth", strconv.Itoa(depth))

	if proxyPath != "" {
		cmd = append(cmd, "--proxy-file", proxyPath)
	}
	if b.Crawler.Timeout > 0 {
		cmd = append(cmd, "--timeout", strconv.Itoa(b.Crawler.Timeout))
	}
	if b.Crawler.Retries > 0 {
		cmd = append(cmd, "--retries", strconv.Itoa(b.Crawler.Retries))
	}
	if params.ToWebhook || b.Crawler.ToWebhook {
		cmd = append(cmd, "--to-webhook")
	}

	return cmd
}
