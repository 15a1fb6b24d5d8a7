package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/Lydia02/E-Library-sub000/internal/config"
	"github.com/Lydia02/E-Library-sub000/internal/syncer"
)

// shutdownTimeout is the maximum time to wait for in-flight sync writes.
const shutdownTimeout = 30 * time.Second

// SyncEngineHandle wraps the sync engine with shutdown capability.
type SyncEngineHandle struct {
	*syncer.Engine
	logger *slog.Logger
}

// Shutdown implements do.Shutdownable. It waits for in-flight secondary writes
// so they are recorded in the outbox before it closes.
func (h *SyncEngineHandle) Shutdown() error {
	done := make(chan struct{})
	go func() {
		h.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		h.logger.Warn("Timed out waiting for sync writes", "timeout", shutdownTimeout)
	}
	return nil
}

// ProvideSyncEngine provides the sync engine.
func ProvideSyncEngine(i do.Injector) (*SyncEngineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	secondary := do.MustInvoke[*SecondaryHandle](i)
	outbox := do.MustInvoke[*OutboxHandle](i)

	opts := syncOptions(cfg.Sync)
	// A nil *sqlite.Outbox inside the interface would not read as disabled.
	var engine *syncer.Engine
	if outbox.Outbox != nil {
		engine = syncer.New(secondary, outbox.Outbox, opts, log)
	} else {
		engine = syncer.New(secondary, nil, opts, log)
	}
	return &SyncEngineHandle{Engine: engine, logger: log}, nil
}

func syncOptions(c config.SyncConfig) syncer.Options {
	return syncer.Options{
		Timeout:      c.Timeout,
		BaseBackoff:  c.BaseBackoff,
		MaxBackoff:   c.MaxBackoff,
		MaxAttempts:  c.MaxAttempts,
		PollInterval: c.PollInterval,
		BatchSize:    c.BatchSize,
		Rate:         c.RatePerSecond,
		Burst:        c.Burst,
	}
}

// SyncWorkerHandle runs the outbox retry worker in the background. Worker is
// nil when the outbox is disabled.
type SyncWorkerHandle struct {
	Worker *syncer.Worker
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs the worker until Shutdown. It is a no-op without an outbox.
func (h *SyncWorkerHandle) Start() {
	if h.Worker == nil || h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})
	go func() {
		defer close(h.done)
		h.Worker.Run(ctx)
	}()
}

// Shutdown implements do.Shutdownable.
func (h *SyncWorkerHandle) Shutdown() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	<-h.done
	return nil
}

// ProvideSyncWorker provides the outbox retry worker. The worker is started by
// the daemon, not by the provider.
func ProvideSyncWorker(i do.Injector) (*SyncWorkerHandle, error) {
	log := do.MustInvoke[*slog.Logger](i)
	engine := do.MustInvoke[*SyncEngineHandle](i)
	outbox := do.MustInvoke[*OutboxHandle](i)

	if outbox.Outbox == nil {
		return &SyncWorkerHandle{}, nil
	}
	return &SyncWorkerHandle{Worker: syncer.NewWorker(engine.Engine, outbox.Outbox, log)}, nil
}
