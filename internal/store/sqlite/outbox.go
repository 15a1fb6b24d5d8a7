// Package sqlite is the durable sync outbox: secondary writes that have not yet
// been confirmed, kept in an embedded SQLite database so they survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskColumns = `id, kind, op, primary_id, natural_key, payload, attempts, status,
	next_attempt_at, last_error, created_at, updated_at`

// Outbox persists sync tasks.
type Outbox struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates the outbox database at path.
// It configures WAL mode, sets pragmas, and applies the schema.
func Open(path string, log *slog.Logger) (*Outbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	o := &Outbox{db: db, logger: logger.Component(log, "outbox"), now: time.Now}
	o.logger.Info("Sync outbox opened", "path", path)
	return o, nil
}

// Close closes the underlying database connection.
func (o *Outbox) Close() error {
	return o.db.Close()
}

// Enqueue stores a new pending task. Older pending tasks for the same entity are
// superseded and removed, since the new task carries the entity's latest state.
func (o *Outbox) Enqueue(ctx context.Context, task *domain.SyncTask) error {
	now := o.now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = now
	}
	task.UpdatedAt = now
	task.Status = domain.TaskPending

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	if task.PrimaryID != "" {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM sync_tasks WHERE kind = ? AND primary_id = ? AND status = ?`,
			string(task.Kind), task.PrimaryID, string(domain.TaskPending))
		if err != nil {
			return fmt.Errorf("supersede tasks: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			o.logger.Debug("superseded pending tasks",
				logger.KeyKind, task.Kind,
				logger.KeyPrimaryID, task.PrimaryID,
				"count", n,
			)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID,
		string(task.Kind),
		string(task.Op),
		task.PrimaryID,
		task.NaturalKey,
		task.Payload,
		task.Attempts,
		string(task.Status),
		formatTime(task.NextAttemptAt),
		task.LastError,
		formatTime(task.CreatedAt),
		formatTime(task.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domainerrors.Conflictf("sync task %s already exists", task.ID)
		}
		return fmt.Errorf("insert sync task: %w", err)
	}
	return tx.Commit()
}

// Claim returns up to limit pending tasks due at now, oldest first, and leases
// them by pushing their next attempt time out by lease.
func (o *Outbox) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]*domain.SyncTask, error) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM sync_tasks
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY next_attempt_at, id
		LIMIT ?`,
		string(domain.TaskPending), formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("select due tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}

	leased := formatTime(now.Add(lease))
	for _, t := range tasks {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sync_tasks SET next_attempt_at = ? WHERE id = ?`, leased, t.ID); err != nil {
			return nil, fmt.Errorf("lease task %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return tasks, nil
}

// Complete removes a task that reached the secondary store. Completing a task
// that was superseded meanwhile is a no-op.
func (o *Outbox) Complete(ctx context.Context, id string) error {
	if _, err := o.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	return nil
}

// Fail records a failed attempt and schedules the next one. It returns the
// number of attempts made so far, or 0 when the task no longer exists.
func (o *Outbox) Fail(ctx context.Context, id, lastError string, next time.Time) (int, error) {
	var attempts int
	err := o.db.QueryRowContext(ctx, `
		UPDATE sync_tasks
		SET attempts = attempts + 1, last_error = ?, next_attempt_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING attempts`,
		lastError, formatTime(next), formatTime(o.now()), id, string(domain.TaskPending),
	).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("fail task %s: %w", id, err)
	}
	return attempts, nil
}

// MarkDead parks a task that will not be retried automatically.
func (o *Outbox) MarkDead(ctx context.Context, id, lastError string) error {
	_, err := o.db.ExecContext(ctx, `
		UPDATE sync_tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(domain.TaskDead), lastError, formatTime(o.now()), id)
	if err != nil {
		return fmt.Errorf("mark task %s dead: %w", id, err)
	}
	return nil
}

// Get retrieves a task by id.
// Returns a NOT_FOUND error if the task does not exist.
func (o *Outbox) Get(ctx context.Context, id string) (*domain.SyncTask, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, domainerrors.NotFoundf("sync task %s not found", id)
	}
	return tasks[0], nil
}

// List returns tasks with the given status, or every task when status is empty,
// oldest first. A limit of zero lists all.
func (o *Outbox) List(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.SyncTask, error) {
	query := `SELECT ` + taskColumns + ` FROM sync_tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return scanTasks(rows)
}

// Counts returns the number of tasks per status.
func (o *Outbox) Counts(ctx context.Context) (map[domain.TaskStatus]int, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[domain.TaskStatus]int{domain.TaskPending: 0, domain.TaskDead: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// Requeue returns dead tasks to the pending queue with a fresh attempt budget.
// An empty id requeues every dead task. It returns the number requeued.
func (o *Outbox) Requeue(ctx context.Context, id string) (int, error) {
	now := formatTime(o.now())
	query := `UPDATE sync_tasks SET status = ?, attempts = 0, next_attempt_at = ?, updated_at = ? WHERE status = ?`
	args := []any{string(domain.TaskPending), now, now, string(domain.TaskDead)}
	if id != "" {
		query += ` AND id = ?`
		args = append(args, id)
	}

	res, err := o.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if id != "" && n == 0 {
		return 0, domainerrors.NotFoundf("dead sync task %s not found", id)
	}
	o.logger.Info("requeued sync tasks", "count", n)
	return int(n), nil
}

func scanTasks(rows *sql.Rows) ([]*domain.SyncTask, error) {
	defer rows.Close()

	tasks := []*domain.SyncTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(scanner interface{ Scan(dest ...any) error }) (*domain.SyncTask, error) {
	var t domain.SyncTask
	var (
		kind, op, status             string
		nextAt, createdAt, updatedAt string
	)
	err := scanner.Scan(
		&t.ID,
		&kind,
		&op,
		&t.PrimaryID,
		&t.NaturalKey,
		&t.Payload,
		&t.Attempts,
		&status,
		&nextAt,
		&t.LastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan sync task: %w", err)
	}
	t.Kind = domain.Kind(kind)
	t.Op = domain.SyncOp(op)
	t.Status = domain.TaskStatus(status)

	if t.NextAttemptAt, err = parseTime(nextAt); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// formatTime formats a time.Time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a stored time string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
