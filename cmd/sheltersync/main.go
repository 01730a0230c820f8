package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ShelterSync/internal/app"
	"ShelterSync/internal/config"
	"ShelterSync/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "run a single sync pass and exit")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Warn("close", "error", err)
		}
	}()

	if *once {
		summary, err := application.RunOnce(ctx)
		if err != nil {
			logger.Error("sync failed", "run_id", summary.RunID, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := application.Serve(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
