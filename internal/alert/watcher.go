// Package alert watches the critical feed and raises each new article once.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/matthewjhunter/newsalert"
)

// Feed is the part of the engine the watcher polls.
type Feed interface {
	CriticalArticles(ctx context.Context) ([]newsalert.Article, error)
	MarkRead(ctx context.Context, articleID int64) error
}

type Watcher struct {
	feed     Feed
	notifier *Notifier
	interval time.Duration
	ack      bool
	logger   *slog.Logger

	seen map[int64]bool
}

// NewWatcher polls feed every interval. With ack set, each alerted article
// is acknowledged so it leaves the critical feed.
func NewWatcher(feed Feed, notifier *Notifier, interval time.Duration, ack bool, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		feed:     feed,
		notifier: notifier,
		interval: interval,
		ack:      ack,
		logger:   logger,
		seen:     make(map[int64]bool),
	}
}

// Poll checks the critical feed once and returns how many alerts it sent.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	articles, err := w.feed.CriticalArticles(ctx)
	if err != nil {
		return 0, fmt.Errorf("poll critical feed: %w", err)
	}

	var fresh []newsalert.Article
	for _, a := range articles {
		if !w.seen[a.ID] {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := w.notifier.NotifyCritical(fresh); err != nil {
		return 0, err
	}
	for _, a := range fresh {
		w.seen[a.ID] = true
		if !w.ack {
			continue
		}
		if err := w.feed.MarkRead(ctx, a.ID); err != nil {
			w.logger.Warn("acknowledge failed", "id", a.ID, "error", err)
		}
	}
	return len(fresh), nil
}

// Run polls until ctx is cancelled. Poll errors are logged, not fatal.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching critical feed", "interval", w.interval, "ack", w.ack)
	for {
		if n, err := w.Poll(ctx); err != nil {
			w.logger.Error("watch cycle failed", "error", err)
		} else if n > 0 {
			w.logger.Info("sent critical alerts", "count", n)
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}
