// Command skunkscrape launches scraping plugins from the manifest, one
// process at a time, with an optional proxy from the proxy list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "skunkscrape: %v\n", err)
		os.Exit(1)
	}
}
