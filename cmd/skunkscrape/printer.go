package main

import (
	"fmt"
	"io"

	"github.com/skunkworks/skunkscrape/internal/orchestrator"
)

// printer reports plugin launches to the operator.
type printer struct {
	w       io.Writer
	logFile string
}

func newPrinter(w io.Writer, logFile string) *printer {
	return &printer{w: w, logFile: logFile}
}

func (p *printer) PluginStarted(res orchestrator.Result) {
	if res.Proxy == "" {
		fmt.Fprintf(p.w, "\nRunning %s without a proxy...\n", res.Plugin)
		return
	}
	fmt.Fprintf(p.w, "\nRunning %s with proxy %s...\n", res.Plugin, res.Proxy)
}

func (p *printer) PluginFinished(res orchestrator.Result) {
	if res.Outcome.Success {
		return
	}
	fmt.Fprintf(p.w, "Error running %s: %s (see %s)\n", res.Plugin, res.Outcome.Reason, p.logFile)
}
