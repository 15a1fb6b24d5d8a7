package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/id"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
)

func newTestOutbox(t *testing.T) (*Outbox, *time.Time) {
	t.Helper()
	o, err := Open(filepath.Join(t.TempDir(), "outbox.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })

	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return clock }
	return o, &clock
}

func task(kind domain.Kind, op domain.SyncOp, primaryID string) *domain.SyncTask {
	return &domain.SyncTask{
		ID:        id.Task(),
		Kind:      kind,
		Op:        op,
		PrimaryID: primaryID,
		Payload:   []byte(`{"PrimaryID":"` + primaryID + `"}`),
	}
}

func TestOpen_AppliesSchemaAndWAL(t *testing.T) {
	o, _ := newTestOutbox(t)

	var journalMode string
	require.NoError(t, o.db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var name string
	require.NoError(t, o.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='sync_tasks'").Scan(&name))
}

func TestEnqueue_RoundTrip(t *testing.T) {
	ctx := context.Background()
	o, clock := newTestOutbox(t)

	in := task(domain.KindBooks, domain.SyncInsert, "book_1")
	in.NaturalKey = "9780441013593"
	require.NoError(t, o.Enqueue(ctx, in))

	got, err := o.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindBooks, got.Kind)
	assert.Equal(t, domain.SyncInsert, got.Op)
	assert.Equal(t, "9780441013593", got.NaturalKey)
	assert.Equal(t, in.Payload, got.Payload)
	assert.Equal(t, domain.TaskPending, got.Status)
	assert.True(t, got.CreatedAt.Equal(*clock))

	_, err = o.Get(ctx, "missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestEnqueue_SupersedesPendingTasksOfSameEntity(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOutbox(t)

	first := task(domain.KindBooks, domain.SyncInsert, "book_1")
	other := task(domain.KindBooks, domain.SyncInsert, "book_2")
	second := task(domain.KindBooks, domain.SyncUpdate, "book_1")
	require.NoError(t, o.Enqueue(ctx, first))
	require.NoError(t, o.Enqueue(ctx, other))
	require.NoError(t, o.Enqueue(ctx, second))

	tasks, err := o.List(ctx, domain.TaskPending, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	ids := []string{tasks[0].ID, tasks[1].ID}
	assert.Contains(t, ids, second.ID)
	assert.Contains(t, ids, other.ID)
	assert.NotContains(t, ids, first.ID)
}

func TestEnqueue_BatchDeletesAreNotSuperseded(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOutbox(t)

	require.NoError(t, o.Enqueue(ctx, task(domain.KindFavorites, domain.SyncBatchDelete, "")))
	require.NoError(t, o.Enqueue(ctx, task(domain.KindFavorites, domain.SyncBatchDelete, "")))

	tasks, err := o.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestClaim_LeasesDueTasks(t *testing.T) {
	ctx := context.Background()
	o, clock := newTestOutbox(t)

	due := task(domain.KindBooks, domain.SyncInsert, "book_1")
	later := task(domain.KindBooks, domain.SyncInsert, "book_2")
	later.NextAttemptAt = clock.Add(time.Hour)
	require.NoError(t, o.Enqueue(ctx, due))
	require.NoError(t, o.Enqueue(ctx, later))

	claimed, err := o.Claim(ctx, *clock, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)

	again, err := o.Claim(ctx, *clock, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "leased tasks are not handed out twice")

	afterLease, err := o.Claim(ctx, clock.Add(2*time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, afterLease, 1)
	assert.Equal(t, due.ID, afterLease[0].ID)
}

func TestFailAndMarkDead(t *testing.T) {
	ctx := context.Background()
	o, clock := newTestOutbox(t)

	tk := task(domain.KindFavorites, domain.SyncInsert, "fav_1")
	require.NoError(t, o.Enqueue(ctx, tk))

	n, err := o.Fail(ctx, tk.ID, "connection refused", clock.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = o.Fail(ctx, tk.ID, "connection refused", clock.Add(4*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := o.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, "connection refused", got.LastError)
	assert.True(t, got.NextAttemptAt.Equal(clock.Add(4*time.Second)))

	require.NoError(t, o.MarkDead(ctx, tk.ID, "gave up"))
	n, err = o.Fail(ctx, tk.ID, "late", *clock)
	require.NoError(t, err)
	assert.Zero(t, n, "dead tasks are not failed again")

	claimed, err := o.Claim(ctx, clock.Add(time.Hour), time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	counts, err := o.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.TaskDead])
	assert.Equal(t, 0, counts[domain.TaskPending])

	n, err = o.Fail(ctx, "missing", "x", *clock)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRequeue(t *testing.T) {
	ctx := context.Background()
	o, clock := newTestOutbox(t)

	a := task(domain.KindBooks, domain.SyncInsert, "book_1")
	b := task(domain.KindBooks, domain.SyncInsert, "book_2")
	require.NoError(t, o.Enqueue(ctx, a))
	require.NoError(t, o.Enqueue(ctx, b))
	_, err := o.Fail(ctx, a.ID, "boom", *clock)
	require.NoError(t, err)
	require.NoError(t, o.MarkDead(ctx, a.ID, "boom"))
	require.NoError(t, o.MarkDead(ctx, b.ID, "boom"))

	n, err := o.Requeue(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := o.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskPending, got.Status)
	assert.Zero(t, got.Attempts)

	_, err = o.Requeue(ctx, a.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound, "pending tasks cannot be requeued")

	n, err = o.Requeue(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestComplete(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOutbox(t)

	tk := task(domain.KindBooks, domain.SyncDelete, "book_1")
	require.NoError(t, o.Enqueue(ctx, tk))
	require.NoError(t, o.Complete(ctx, tk.ID))
	require.NoError(t, o.Complete(ctx, tk.ID))

	_, err := o.Get(ctx, tk.ID)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}
