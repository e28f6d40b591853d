// Command webrunner runs the browser test automation service: an HTTP API
// that plans, executes, and reports on natural-language test sessions.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odvcencio/webrunner/pkg/analyze"
	"github.com/odvcencio/webrunner/pkg/api"
	"github.com/odvcencio/webrunner/pkg/config"
	"github.com/odvcencio/webrunner/pkg/driver"
	chromedriver "github.com/odvcencio/webrunner/pkg/driver/chromedp"
	"github.com/odvcencio/webrunner/pkg/engine"
	"github.com/odvcencio/webrunner/pkg/logging"
	"github.com/odvcencio/webrunner/pkg/planner"
	"github.com/odvcencio/webrunner/pkg/screenshot"
	"github.com/odvcencio/webrunner/pkg/storage"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	listenAddr := flag.String("listen", "", "listen address override")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	logger, err := logging.NewLogger(cfg.LogsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	store, err := storage.New(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening session store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	shots, err := screenshot.NewStore(cfg.Screenshots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing screenshot directory: %v\n", err)
		os.Exit(1)
	}

	runtime := chromedriver.NewRuntime(driver.NewMetrics())
	defer runtime.Close()

	resolver := engine.NewResolver(logger)
	executor := engine.NewExecutor(resolver, shots, logger)
	orchestrator := engine.NewOrchestrator(store, runtime, executor, logger, engine.Options{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		RetryBackoff:  time.Duration(cfg.Engine.RetryBackoffMs) * time.Millisecond,
		Driver: driver.Config{
			Headless:       cfg.Browser.Headless,
			NoSandbox:      cfg.Browser.NoSandbox,
			ViewportWidth:  cfg.Browser.ViewportWidth,
			ViewportHeight: cfg.Browser.ViewportHeight,
			UserAgent:      cfg.Browser.UserAgent,
		},
	})

	server := api.NewServer(api.ServerConfig{
		Address:     cfg.Server.ListenAddr,
		Engine:      orchestrator,
		Planner:     planner.New(logger),
		Analyzer:    analyze.New(logger),
		Store:       store,
		Screenshots: shots,
		Logger:      logger,
	})

	// Set up signal handler
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info(logging.CategoryAPI, "shutdown_started", "", "signal received, shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}
	}()

	logger.Info(logging.CategoryAPI, "server_started", "",
		"listening on "+cfg.Server.ListenAddr, nil)
	fmt.Printf("webrunner listening on %s\n", cfg.Server.ListenAddr)

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error running server: %v\n", err)
		os.Exit(1)
	}
}
