// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pitchscope/cmd"
	applog "pitchscope/internal/log"
	"pitchscope/pkg/build"
)

// main is the entry point for pitchscope. Build information is resolved
// first, then the command line runs under a context cancelled by SIGINT or
// SIGTERM so that serve shuts its transports down cleanly.
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("Development build: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		stop()
		applog.Fatalf("%v", err)
	}
}
