package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/alert"
)

func daemonCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run ingestion in a loop with configurable interval",
		Long: `Continuously fetch the configured feeds and store tagged articles on a timer.
Designed for running inside a container or as a background service.
Handles SIGINT/SIGTERM for graceful shutdown (finishes the current cycle).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = cfg.Feeds.Interval
			}
			if interval <= 0 {
				interval = 15 * time.Minute
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := openEngine(ctx, false)
			if err != nil {
				return err
			}
			defer engine.Close()

			return runDaemon(ctx, engine, interval)
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "duration between ingest cycles (default: feeds.interval from config)")
	return cmd
}

func runDaemon(ctx context.Context, engine *newsalert.Engine, interval time.Duration) error {
	log := logger.With("component", "daemon")
	log.Info("starting", "interval", interval)

	cycle := 1
	for {
		start := time.Now()
		result, err := engine.Ingest(ctx)
		if err != nil {
			log.Error("cycle failed", "cycle", cycle, "error", err)
		} else {
			log.Info("cycle completed",
				"cycle", cycle,
				"new_articles", result.NewArticles,
				"feeds_errored", result.FeedsErrored,
				"duration", time.Since(start).Round(time.Millisecond))
		}
		cycle++

		// Wait for the next tick or a shutdown signal.
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("received shutdown signal, exiting")
			return nil
		case <-timer.C:
		}
	}
}

func watchCmd() *cobra.Command {
	var (
		interval time.Duration
		ack      bool
		target   string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the critical feed and print an alert for each new article",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, err := openEngine(ctx, true)
			if err != nil {
				return err
			}
			defer engine.Close()

			watcher := alert.NewWatcher(engine, alert.NewNotifier(cmd.OutOrStdout(), target), interval, ack,
				logger.With("component", "watch"))
			return watcher.Run(ctx)
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", time.Minute, "duration between polls")
	cmd.Flags().BoolVar(&ack, "ack", false, "acknowledge each article after alerting")
	cmd.Flags().StringVarP(&target, "target", "t", "", "alert recipient shown in the banner (default: on-call)")
	return cmd
}
