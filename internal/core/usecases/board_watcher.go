package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkoskinen/hslproxy/internal/core/ports"
	"github.com/mkoskinen/hslproxy/internal/pkg/metrics"
)

// BoardWatcher periodically refreshes the departure boards of a fixed
// set of stops and publishes them to the message broker, feeding the
// WebSocket relay.
type BoardWatcher struct {
	boards   *DepartureService
	pub      ports.BoardPublisher
	stops    []string
	limit    int
	interval time.Duration
}

// NewBoardWatcher creates a watcher for the given stop codes.
func NewBoardWatcher(boards *DepartureService, pub ports.BoardPublisher, stops []string, limit int, interval time.Duration) *BoardWatcher {
	if limit <= 0 {
		limit = 5
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BoardWatcher{boards: boards, pub: pub, stops: stops, limit: limit, interval: interval}
}

// Run polls until ctx is cancelled. The first refresh happens
// immediately so subscribers do not wait a full interval after startup.
func (w *BoardWatcher) Run(ctx context.Context) {
	if len(w.stops) == 0 || w.pub == nil {
		return
	}

	slog.Info("board watcher starting", "stops", w.stops, "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refreshAll(ctx)
	for {
		select {
		case <-ticker.C:
			w.refreshAll(ctx)
		case <-ctx.Done():
			slog.Info("board watcher stopped")
			return
		}
	}
}

func (w *BoardWatcher) refreshAll(ctx context.Context) {
	for _, stop := range w.stops {
		if ctx.Err() != nil {
			return
		}
		w.refresh(ctx, stop)
	}
}

func (w *BoardWatcher) refresh(ctx context.Context, stop string) {
	start := time.Now()
	board, err := w.boards.Board(ctx, stop, w.limit)
	metrics.BoardPollDuration.WithLabelValues(stop).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BoardPollErrors.WithLabelValues(stop).Inc()
		slog.Warn("board refresh failed", "stop", stop, "error", err)
		return
	}

	if err := w.pub.PublishBoard(ctx, stop, board); err != nil {
		metrics.BoardPollErrors.WithLabelValues(stop).Inc()
		slog.Warn("board publish failed", "stop", stop, "error", err)
		return
	}

	slog.Debug("board published", "stop", stop, "departures", len(board.Departures))
}
