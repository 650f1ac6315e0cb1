// Package plugin resolves scraping plugins from the manifest, builds their
// command lines and launches them as child processes.
package plugin

import (
	"errors"
	"strings"

	"github.com/skunkworks/skunkscrape/internal/proxy"
)

// Names of plugins with their own argument conventions.
const (
	// SmartContactCrawler takes a single --url and honors --depth.
	SmartContactCrawler = "smart_contact_crawler"
	// BulkCrawler is the plugin usually configured as the crawler plugin.
	BulkCrawler = "bulk_crawler"
)

// Manifest is the parsed form of manifest.json.
type Manifest struct {
	Categories []Category
}

// Category is a named group of plugins in declaration order.
type Category struct {
	Name    string
	Plugins []string
}

// Params are the per-run values passed to every plugin of a request.
// Zero values mean "not set".
type Params struct {
	URL         string         `json:"url,omitempty"`
	Depth       int            `json:"depth,omitempty"`
	ToWebhook   bool           `json:"to_webhook,omitempty"`
	TargetLeads int            `json:"target_leads,omitempty"`
	Proxy       proxy.Selector `json:"proxy"`
}

// Validate rejects negative optional integers. Zero means unset.
func (p Params) Validate() error {
	if p.Depth < 0 {
		return errors.New("depth must be at least 1")
	}
	if p.TargetLeads < 0 {
		return errors.New("target leads must be at least 1")
	}
	return nil
}

// Invocation is a built command line; element 0 is the program.
type Invocation []string

// String renders the invocation for logs.
func (inv Invocation) String() string {
	return strings.Join(inv, " ")
}

// Outcome is the pass/fail result of one plugin process.
type Outcome struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Reason   string `json:"reason,omitempty"`
}

// Succeeded returns a successful Outcome.
func Succeeded() Outcome {
	return Outcome{Success: true}
}

// Failed returns a failed Outcome with the observed exit code and reason.
func Failed(exitCode int, reason string) Outcome {
	return Outcome{ExitCode: exitCode, Reason: reason}
}
