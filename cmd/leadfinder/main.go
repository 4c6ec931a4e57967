// Command leadfinder discovers local businesses, audits their websites and
// ranks them as sales leads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Storage backends register themselves by DSN scheme.
	_ "github.com/FranksOps/leadfinder/internal/storage/postgres"
	_ "github.com/FranksOps/leadfinder/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
