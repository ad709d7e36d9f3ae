package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilal/clashstat/internal/app"
)

func main() {
	// Context for graceful shutdown of serve
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := app.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
