// Package syncer mirrors primary writes into the secondary store.
//
// A write is handed to the Engine after the primary accepted it. The Engine
// records a task in the outbox, dispatches the secondary write in the
// background and returns immediately; the caller never observes a secondary
// failure. Tasks that fail stay in the outbox and are replayed by the Worker
// with capped exponential backoff until they succeed or are marked dead.
package syncer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/id"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/store/postgres"
)

// Secondary is the subset of the secondary store the engine writes through.
type Secondary interface {
	Upsert(ctx context.Context, r postgres.Row) (bool, error)
	UpdateByPrimaryID(ctx context.Context, r postgres.Row) (bool, error)
	Delete(ctx context.Context, table domain.Kind, primaryID string) error
	BatchDelete(ctx context.Context, table domain.Kind, primaryIDs []string) (int, error)
}

// Outbox persists sync tasks between attempts.
type Outbox interface {
	Enqueue(ctx context.Context, task *domain.SyncTask) error
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.SyncTask, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, lastError string, next time.Time) (int, error)
	MarkDead(ctx context.Context, id, lastError string) error
}

// Options tunes dispatch and retry.
type Options struct {
	Timeout      time.Duration // per secondary write
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int
	Rate         float64 // retries per second per kind
	Burst        int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:      15 * time.Second,
		BaseBackoff:  2 * time.Second,
		MaxBackoff:   5 * time.Minute,
		MaxAttempts:  8,
		PollInterval: 5 * time.Second,
		BatchSize:    50,
		Rate:         20,
		Burst:        10,
	}
}

// Stats are cumulative engine counters.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
}

// Engine dispatches secondary writes.
type Engine struct {
	secondary Secondary
	outbox    Outbox
	opts      Options
	logger    *slog.Logger
	now       func() time.Time

	wg         sync.WaitGroup
	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	dead       atomic.Int64
}

// New creates an engine. outbox may be nil, in which case a failed write is
// logged and dropped.
func New(secondary Secondary, outbox Outbox, opts Options, log *slog.Logger) *Engine {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = def.BaseBackoff
	}
	if opts.MaxBackoff < opts.BaseBackoff {
		opts.MaxBackoff = max(def.MaxBackoff, opts.BaseBackoff)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Rate <= 0 {
		opts.Rate = def.Rate
	}
	if opts.Burst < 1 {
		opts.Burst = def.Burst
	}
	return &Engine{
		secondary: secondary,
		outbox:    outbox,
		opts:      opts,
		logger:    logger.Component(log, "sync"),
		now:       domain.Now,
	}
}

// Submit mirrors a primary write of e. For SyncDelete only the kind and id of e
// are used. Submit returns once the task is recorded; the secondary write
// happens in the background.
func (e *Engine) Submit(ctx context.Context, op domain.SyncOp, entity domain.Entity) {
	task := &domain.SyncTask{
		Kind:       entity.Kind(),
		Op:         op,
		PrimaryID:  entity.EntityID(),
		NaturalKey: entity.NaturalKey(),
	}
	if op != domain.SyncDelete {
		row, err := mapper.ToRow(entity)
		if err != nil {
			e.logger.Error("cannot map entity for sync", e.taskAttrs(task, err)...)
			return
		}
		if task.Payload, err = json.Marshal(row); err != nil {
			e.logger.Error("cannot encode sync payload", e.taskAttrs(task, err)...)
			return
		}
	}
	e.submit(ctx, task)
}

// SubmitBatchDelete mirrors a primary batch delete.
func (e *Engine) SubmitBatchDelete(ctx context.Context, kind domain.Kind, primaryIDs []string) {
	if len(primaryIDs) == 0 {
		return
	}
	payload, err := json.Marshal(primaryIDs)
	if err != nil {
		e.logger.Error("cannot encode sync payload", slog.String(logger.KeyKind, string(kind)), logger.Err(err))
		return
	}
	e.submit(ctx, &domain.SyncTask{Kind: kind, Op: domain.SyncBatchDelete, Payload: payload})
}

func (e *Engine) submit(ctx context.Context, task *domain.SyncTask) {
	now := e.now()
	task.ID = id.Task()
	task.Status = domain.TaskPending
	task.CreatedAt = now
	task.UpdatedAt = now
	// The worker must not pick the task up while the first dispatch is in flight.
	task.NextAttemptAt = now.Add(e.opts.Timeout)

	ctx = context.WithoutCancel(ctx)
	if e.outbox != nil {
		ectx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		err := e.outbox.Enqueue(ectx, task)
		cancel()
		if err != nil {
			e.logger.Error("cannot record sync task", e.taskAttrs(task, err)...)
		}
	}

	e.dispatched.Add(1)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		dctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
		e.settle(dctx, task, e.apply(dctx, task))
	}()
}

// apply performs the secondary write a task describes.
func (e *Engine) apply(ctx context.Context, task *domain.SyncTask) error {
	switch task.Op {
	case domain.SyncDelete:
		err := e.secondary.Delete(ctx, task.Kind, task.PrimaryID)
		if domainerrors.CodeOf(err) == domainerrors.CodeNotFound {
			// Never mirrored, or already gone.
			return nil
		}
		return err
	case domain.SyncBatchDelete:
		var ids []string
		if err := json.Unmarshal(task.Payload, &ids); err != nil {
			return domainerrors.Validationf("decode batch delete payload: %v", err)
		}
		n, err := e.secondary.BatchDelete(ctx, task.Kind, ids)
		if err != nil {
			return err
		}
		e.logger.Debug("batch delete mirrored", slog.String(logger.KeyKind, string(task.Kind)), slog.Int("count", n))
		return nil
	case domain.SyncInsert, domain.SyncUpdate:
	default:
		return domainerrors.Validationf("unknown sync op %q", task.Op)
	}

	row, err := decodeRow(task)
	if err != nil {
		return err
	}
	if task.Op == domain.SyncUpdate {
		applied, err := e.secondary.UpdateByPrimaryID(ctx, row)
		if err != nil || applied {
			return err
		}
		// No row yet, e.g. the insert was never mirrored.
	}
	_, err = e.secondary.Upsert(ctx, row)
	return err
}

func decodeRow(task *domain.SyncTask) (postgres.Row, error) {
	row, err := postgres.NewRow(task.Kind)
	if err != nil {
		return nil, domainerrors.Validationf("sync task %s: %v", task.ID, err)
	}
	if err := json.Unmarshal(task.Payload, row); err != nil {
		return nil, domainerrors.Validationf("decode sync payload of task %s: %v", task.ID, err)
	}
	return row, nil
}

// settle records the outcome of an attempt in the outbox. The attempt's own
// context may already be done, so the bookkeeping gets a fresh deadline.
func (e *Engine) settle(ctx context.Context, task *domain.SyncTask, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.Timeout)
	defer cancel()

	if err == nil {
		e.succeeded.Add(1)
		if e.outbox != nil {
			if cerr := e.outbox.Complete(ctx, task.ID); cerr != nil {
				e.logger.Error("cannot complete sync task", e.taskAttrs(task, cerr)...)
			}
		}
		return
	}

	e.failed.Add(1)
	// A payload that cannot be decoded never succeeds.
	permanent := domainerrors.CodeOf(err) == domainerrors.CodeValidation
	err = domainerrors.TransientSync(err, "secondary write failed")
	e.logger.Warn("secondary sync failed", e.taskAttrs(task, err)...)
	if e.outbox == nil {
		return
	}

	if permanent {
		e.markDead(ctx, task, task.Attempts+1, err)
		return
	}

	next := e.now().Add(e.Backoff(task.Attempts + 1))
	attempts, ferr := e.outbox.Fail(ctx, task.ID, err.Error(), next)
	if ferr != nil {
		e.logger.Error("cannot reschedule sync task", e.taskAttrs(task, ferr)...)
		return
	}
	if attempts >= e.opts.MaxAttempts {
		e.markDead(ctx, task, attempts, err)
	}
}

func (e *Engine) markDead(ctx context.Context, task *domain.SyncTask, attempts int, cause error) {
	if err := e.outbox.MarkDead(ctx, task.ID, cause.Error()); err != nil {
		e.logger.Error("cannot mark sync task dead", e.taskAttrs(task, err)...)
		return
	}
	e.dead.Add(1)
	e.logger.Error("sync task permanently failed",
		append(e.taskAttrs(task, cause), slog.Int("attempts", attempts))...)
}

// Backoff returns the delay before the given attempt, counting from 1.
func (e *Engine) Backoff(attempt int) time.Duration {
	b := retry.WithCappedDuration(e.opts.MaxBackoff, retry.NewExponential(e.opts.BaseBackoff))
	d := e.opts.BaseBackoff
	for range attempt {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

// Wait blocks until every in-flight dispatch has settled.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Stats returns the cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Dispatched: e.dispatched.Load(),
		Succeeded:  e.succeeded.Load(),
		Failed:     e.failed.Load(),
		Dead:       e.dead.Load(),
	}
}

func (e *Engine) taskAttrs(task *domain.SyncTask, err error) []any {
	attrs := []any{
		slog.String(logger.KeyKind, string(task.Kind)),
		slog.String(logger.KeyOp, string(task.Op)),
	}
	if task.NaturalKey != "" {
		attrs = append(attrs, slog.String(logger.KeyNaturalKey, task.NaturalKey))
	}
	if task.PrimaryID != "" {
		attrs = append(attrs, slog.String(logger.KeyPrimaryID, task.PrimaryID))
	}
	if task.ID != "" {
		attrs = append(attrs, slog.String(logger.KeyTaskID, task.ID))
	}
	return append(attrs, logger.Err(err))
}
