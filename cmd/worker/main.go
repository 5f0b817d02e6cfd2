package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/storefront-insights/internal/app"
	"github.com/ignite/storefront-insights/internal/config"
	"github.com/ignite/storefront-insights/internal/pkg/logger"
	"github.com/ignite/storefront-insights/internal/worker"
)

func main() {
	once := flag.Bool("once", false, "run the current slot once and exit")
	flag.Parse()

	log.Println("Starting Storefront Insights scheduled worker...")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logger.SetLevel(logger.ParseLevel(lvl))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	scheduler := worker.NewAnalyticsScheduler(application.Orchestrator, application.Engine, application.Claims, cfg.Schedule)
	if application.Queue != nil {
		scheduler.SetQueue(application.Queue)
		application.Queue.Start(ctx)
	}

	if *once {
		ok := scheduler.Tick(ctx)
		application.Close()
		if !ok {
			os.Exit(1)
		}
		return
	}

	schedCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		scheduler.Start(schedCtx)
	}()
	log.Println("Worker running...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	stopScheduler()
	// An in-flight run finishes against open connections
	<-schedulerDone

	// Drain queued digests before cancelling their context
	application.Close()
	cancel()

	completed, failed, skipped := scheduler.Stats()
	log.Printf("Worker stopped (runs completed=%d failed=%d slots skipped=%d)", completed, failed, skipped)
}
