// Package postgres is the secondary relational store: typed rows projected from
// primary documents, kept in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	domainerrors "github.com/Lydia02/E-Library-sub000/internal/errors"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultTimeout        = 10 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxConns       = 10
)

// PgxPool is a minimal abstraction over a Postgres connection pool.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Close()
}

// Options configures the connection pool.
type Options struct {
	DSN            string
	MaxConns       int32
	ConnectTimeout time.Duration
	// Timeout bounds each call.
	Timeout time.Duration
}

// DB is the secondary store.
type DB struct {
	Pool    PgxPool
	timeout time.Duration
	logger  *slog.Logger
}

// Open connects a pool for opts.DSN and pings it.
func Open(ctx context.Context, opts Options, log *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, domainerrors.Validationf("invalid secondary dsn: %v", err)
	}
	cfg.MaxConns = opts.MaxConns
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = DefaultMaxConns
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	cfg.ConnConfig.ConnectTimeout = connectTimeout

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, domainerrors.Unavailable(err, "connect secondary store")
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, domainerrors.Unavailable(err, "ping secondary store")
	}

	db := NewWithPool(pool, opts.Timeout, log)
	db.logger.Info("Secondary store connected",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"max_conns", cfg.MaxConns,
	)
	return db, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool PgxPool, timeout time.Duration, log *slog.Logger) *DB {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DB{Pool: pool, timeout: timeout, logger: logger.Component(log, "secondary")}
}

// Close closes the underlying pool.
func (db *DB) Close() { db.Pool.Close() }

func (db *DB) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, db.timeout)
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == "23505"
}

// classify maps driver errors onto the error taxonomy.
func classify(err error, op string, table domain.Kind) error {
	var pg *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return domainerrors.NotFoundf("%s row not found", table)
	case isUniqueViolation(err):
		errors.As(err, &pg)
		return domainerrors.Conflictf("%s row violates %s", table, pg.ConstraintName).WithCause(err)
	case errors.As(err, &pg):
		return domainerrors.Wrapf(err, domainerrors.CodeInternal, "secondary %s %s", op, table)
	}
	return domainerrors.Unavailable(err, fmt.Sprintf("secondary %s %s", op, table))
}

func errUnknownTable(k domain.Kind) error {
	return domainerrors.Validationf("unknown table %q", k)
}
