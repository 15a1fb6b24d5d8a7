// Package main provides the entry point for the catalog daemon. It keeps the
// secondary store in step with the primary store by replaying failed sync
// tasks from the outbox.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/Lydia02/E-Library-sub000/internal/di"
	"github.com/Lydia02/E-Library-sub000/internal/di/providers"
)

func main() {
	injector := di.NewContainer(os.Args[1:])

	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap catalog: %v\n", err)
		os.Exit(1)
	}

	log := do.MustInvoke[*slog.Logger](injector)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	worker := do.MustInvoke[*providers.SyncWorkerHandle](injector)
	worker.Start()
	if worker.Worker != nil {
		log.Info("Sync retry worker started")
	}

	<-ctx.Done()
	log.Info("Shutting down catalog gracefully...")

	// The container stops the worker first, then waits for in-flight sync
	// writes, then closes the stores.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}

	log.Info("Catalog stopped")
}
