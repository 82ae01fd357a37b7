package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/scriptdesk/internal/app"
	"github.com/nfrund/scriptdesk/internal/config"
	"github.com/nfrund/scriptdesk/internal/logging"
)

func main() {
	slog.SetDefault(logging.New())

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := app.New(cfg)
	err := a.Serve(ctx)
	if cerr := a.Close(context.Background()); cerr != nil {
		slog.Error("Failed to shut down cleanly", "error", cerr)
	}
	if err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}
