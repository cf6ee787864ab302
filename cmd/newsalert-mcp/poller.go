package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/matthewjhunter/newsalert"
)

// poller runs a background ingest loop.
type poller struct {
	engine   *newsalert.Engine
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	done chan struct{}
}

func newPoller(engine *newsalert.Engine, interval time.Duration, logger *slog.Logger) *poller {
	return &poller{
		engine:   engine,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// start launches the background poll loop. It polls immediately, then on
// each tick of the configured interval.
func (p *poller) start(ctx context.Context) {
	go p.loop(ctx)
	p.logger.Info("poller started", "interval", p.interval)
}

// stop signals the poll loop to exit.
func (p *poller) stop() {
	close(p.done)
	p.logger.Info("poller stopped")
}

// poll runs a single ingest cycle. Also used by the ingest_now tool.
func (p *poller) poll(ctx context.Context) (*newsalert.IngestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	result, err := p.engine.Ingest(ctx)
	if err != nil {
		return nil, err
	}

	p.logger.Info("poll complete",
		"feeds_downloaded", result.FeedsDownloaded,
		"feeds_total", result.FeedsTotal,
		"not_modified", result.FeedsNotModified,
		"errors", result.FeedsErrored,
		"new_articles", result.NewArticles)
	return result, nil
}

func (p *poller) loop(ctx context.Context) {
	if _, err := p.poll(ctx); err != nil {
		p.logger.Error("initial poll failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.poll(ctx); err != nil {
				p.logger.Error("poll failed", "error", err)
			}
		}
	}
}
