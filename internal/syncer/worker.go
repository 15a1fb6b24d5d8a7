package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/ratelimit"
)

// Worker replays outbox tasks that are due.
type Worker struct {
	engine  *Engine
	outbox  Outbox
	limiter *ratelimit.Keyed[domain.Kind]
	logger  *slog.Logger
}

// NewWorker creates a worker replaying tasks through engine.
func NewWorker(engine *Engine, outbox Outbox, log *slog.Logger) *Worker {
	return &Worker{
		engine:  engine,
		outbox:  outbox,
		limiter: ratelimit.New[domain.Kind](engine.opts.Rate, engine.opts.Burst),
		logger:  logger.Component(log, "sync-worker"),
	}
}

// Run polls the outbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.engine.opts.PollInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims due tasks and replays them. Tasks over their kind's retry rate
// keep their lease and are picked up on a later poll. It returns the number of
// tasks that succeeded.
func (w *Worker) RunOnce(ctx context.Context) int {
	opts := w.engine.opts
	// The lease outlives one attempt so a slow write is not replayed twice.
	lease := 2 * opts.Timeout
	tasks, err := w.outbox.Claim(ctx, w.engine.now(), lease, opts.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim sync tasks", logger.Err(err))
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	var done, throttled int
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if !w.limiter.Allow(task.Kind) {
			throttled++
			continue
		}
		tctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err := w.engine.apply(tctx, task)
		w.engine.settle(tctx, task, err)
		cancel()
		if err == nil {
			done++
		}
	}

	w.logger.Info("replayed sync tasks",
		slog.Int("claimed", len(tasks)),
		slog.Int("succeeded", done),
		slog.Int("throttled", throttled),
	)
	return done
}
