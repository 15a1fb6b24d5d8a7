// Package store is the primary document store: schemaless JSON documents grouped
// in collections, kept in an embedded Badger database.
//
// Every top-level scalar field and every element of an array field is indexed
// automatically. Queries that order by a field other than the only filtered one
// need a composite index declared up front, mirroring the query planner of a
// hosted document database; see planner.go.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Lydia02/E-Library-sub000/internal/logger"
)

// DefaultTimeout bounds every call when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// maxTxnRetries bounds retries of a write transaction that lost an optimistic
// concurrency race.
const maxTxnRetries = 8

// Options configures a Store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	// Timeout bounds each call.
	Timeout time.Duration
	// Indexes are the declared composite indexes.
	Indexes []CompositeIndex
}

// Store wraps a Badger database instance.
type Store struct {
	db      *badger.DB
	logger  *slog.Logger
	timeout time.Duration
	planner *planner
	now     func() time.Time
}

// New opens the document store.
func New(opts Options, log *slog.Logger) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
		bopts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	}
	bopts.Logger = nil // Disable Badger's internal logging

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Store{
		db:      db,
		logger:  logger.Component(log, "primary"),
		timeout: timeout,
		planner: newPlanner(opts.Indexes),
		now:     time.Now,
	}

	s.logger.Info("Document store opened",
		"path", opts.Path,
		"in_memory", opts.InMemory,
		"composite_indexes", len(opts.Indexes),
	)

	return s, nil
}

// Close gracefully closes the database.
func (s *Store) Close() error {
	s.logger.Info("Closing document store")
	return s.db.Close()
}

// Indexes returns the declared composite indexes.
func (s *Store) Indexes() []CompositeIndex {
	return s.planner.declared()
}

// bound derives the per-call context.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// update runs fn in a read-write transaction, retrying when a concurrent
// transaction committed a conflicting write first.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("transaction conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("transaction kept conflicting: %w", err)
}
