package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/straja-ai/soundlens/internal/app"
	"github.com/straja-ai/soundlens/internal/config"
	"github.com/straja-ai/soundlens/internal/redact"
	"github.com/straja-ai/soundlens/internal/server"
)

func main() {
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "soundlens.yaml", "Path to SoundLens config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		redact.Logf("failed to read .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		redact.Fatalf("failed to load config: %v", err)
	}
	if *addrFlag != "" {
		cfg.Server.Addr = *addrFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		redact.Fatalf("startup failed: %v", err)
	}

	srv, err := server.New(cfg, server.Deps{Pipeline: a.Pipeline})
	if err != nil {
		a.Close(context.Background())
		redact.Fatalf("failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start("")
	}()

	select {
	case err := <-errCh:
		if err != nil {
			redact.Logf("server error: %v", err)
		}
	case <-ctx.Done():
		redact.Logf("shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		redact.Logf("server shutdown: %v", err)
	}
	a.Close(shutdownCtx)
}
