// newsalert-mcp is a standalone MCP server for newsalert. It connects
// directly to the article database and serves the feeds as tools over
// stdio. Logs go to stderr; stdout carries the protocol.
package main

import (
	"context"
	"flag"
	"fmt"
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
	poll := flag.Duration("poll", 0, "ingest feeds in the background at this interval (0 disables)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "newsalert-mcp: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineCfg := cfg.EngineConfig(logger)
	engineCfg.ReadOnly = *poll <= 0
	engine, err := newsalert.NewEngine(ctx, engineCfg)
	if err != nil {
		logger.Error("create engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	srv := newServer(engine, logger.With("component", "mcp"))
	if *poll > 0 {
		srv.poller = newPoller(engine, max(*poll, time.Minute), logger.With("component", "poller"))
		srv.poller.start(ctx)
		defer srv.poller.stop()
	}

	if err := srv.run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
