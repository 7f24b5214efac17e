// Storefront signs in to the storefront backends and manages the local session.
// Configuration is read from the environment and an optional .env file; see
// internal/config.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/client/internal/shell"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := shell.New(shell.OpenFromEnv, nil, os.Stdin, os.Stdout).Command()
	if err := cmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
