package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/config"
	"github.com/matthewjhunter/newsalert/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config file (YAML or TOML)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsalert-web: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	// Waits for the database on startup; a signal aborts the wait.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg := cfg.EngineConfig(logger)
	engineCfg.ReadOnly = true
	engine, err := newsalert.NewEngine(ctx, engineCfg)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: newRouter(engine, routerOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			JWTSecret:      cfg.Server.JWTSecret,
			Logger:         logger.With("component", "http"),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Server.Addr, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
