package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/logger"
	"github.com/Lydia02/E-Library-sub000/internal/mapper"
	"github.com/Lydia02/E-Library-sub000/internal/store"
	"github.com/Lydia02/E-Library-sub000/internal/store/sqlite"
)

type env struct {
	primaryPath string
	outboxPath  string
}

// setupEnv points configuration at a scratch directory with a memory secondary.
func setupEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		primaryPath: filepath.Join(dir, "primary"),
		outboxPath:  filepath.Join(dir, "outbox.db"),
	}
	t.Setenv("ENV", "development")
	t.Setenv("PRIMARY_PATH", e.primaryPath)
	t.Setenv("PRIMARY_IN_MEMORY", "false")
	t.Setenv("SECONDARY_DRIVER", "memory")
	t.Setenv("SYNC_OUTBOX_ENABLED", "true")
	t.Setenv("SYNC_OUTBOX_PATH", e.outboxPath)
	return e
}

// execute runs catalogctl with captured output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Cobra parses into package-level variables; reset them so values from a
	// previous test do not leak.
	envFile = filepath.Join(t.TempDir(), "missing.env")
	jsonOutput = false
	migrateStrategy = ""
	migrateWorkers = 0
	outboxStatus = ""
	outboxLimit = 50

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(append(args, "--env-file", envFile))

	err := rootCmd.Execute()

	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)
	rootCmd.SetArgs(nil)
	return out.String(), err
}

func seedPrimary(t *testing.T, path string, books ...*domain.Book) {
	t.Helper()
	s, err := store.New(store.Options{Path: path}, logger.Discard())
	require.NoError(t, err)
	for _, b := range books {
		fields, err := mapper.ToDocument(b)
		require.NoError(t, err)
		_, err = s.InsertWithID(context.Background(), string(domain.KindBooks), b.ID, fields)
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
}

func seedDeadTask(t *testing.T, path, id string) {
	t.Helper()
	ctx := context.Background()
	o, err := sqlite.Open(path, logger.Discard())
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, o.Enqueue(ctx, &domain.SyncTask{
		ID:            id,
		Kind:          domain.KindBooks,
		Op:            domain.SyncDelete,
		PrimaryID:     "book_" + id,
		Status:        domain.TaskPending,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))
	require.NoError(t, o.MarkDead(ctx, id, "secondary offline"))
	require.NoError(t, o.Close())
}

func TestMigrate(t *testing.T) {
	e := setupEnv(t)
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	seedPrimary(t, e.primaryPath,
		&domain.Book{ID: "book_a", Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", CreatedAt: at, UpdatedAt: at},
		&domain.Book{ID: "book_b", Title: "Dune", Author: "Herbert", ISBN: "9780441013593", CreatedAt: at, UpdatedAt: at},
	)

	out, err := execute(t, "migrate", "books", "--strategy", "skip-existing", "--workers", "1", "--json")
	require.NoError(t, err)

	var got struct {
		Results []struct {
			Kind     string `json:"kind"`
			Strategy string `json:"strategy"`
			Migrated int64  `json:"migrated"`
			Skipped  int64  `json:"skipped"`
			Total    int64  `json:"total"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Results, 1)
	assert.Equal(t, "books", got.Results[0].Kind)
	assert.Equal(t, "skip-existing", got.Results[0].Strategy)
	assert.Equal(t, int64(1), got.Results[0].Migrated)
	assert.Equal(t, int64(1), got.Results[0].Skipped)
	assert.Equal(t, int64(2), got.Results[0].Total)
}

func TestMigrate_AllTable(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "migrate", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "books")
	assert.Contains(t, out, "favorites")
	assert.Contains(t, out, "user_books")
}

func TestMigrate_BadInput(t *testing.T) {
	setupEnv(t)

	_, err := execute(t, "migrate", "shelves")
	assert.Error(t, err)

	_, err = execute(t, "migrate", "books", "--strategy", "merge")
	assert.Error(t, err)

	_, err = execute(t, "migrate")
	assert.Error(t, err)
}

func TestDrift(t *testing.T) {
	e := setupEnv(t)
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	seedPrimary(t, e.primaryPath, &domain.Book{ID: "book_a", Title: "Dune", Author: "Frank Herbert", CreatedAt: at, UpdatedAt: at})

	// The memory secondary starts empty, so every primary record is missing.
	out, err := execute(t, "drift", "books", "--json")
	require.NoError(t, err)

	var got struct {
		Reports []struct {
			Primary            int      `json:"primary"`
			Secondary          int      `json:"secondary"`
			MissingInSecondary []string `json:"missingInSecondary"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Reports, 1)
	assert.Equal(t, 1, got.Reports[0].Primary)
	assert.Zero(t, got.Reports[0].Secondary)
	assert.Equal(t, []string{"book_a"}, got.Reports[0].MissingInSecondary)
}

func TestOutbox_ListAndRequeue(t *testing.T) {
	e := setupEnv(t)
	seedDeadTask(t, e.outboxPath, "task_1")
	seedDeadTask(t, e.outboxPath, "task_2")

	out, err := execute(t, "outbox", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0 pending, 2 dead")
	assert.Contains(t, out, "task_1")
	assert.Contains(t, out, "secondary offline")

	out, err = execute(t, "outbox", "requeue", "task_1")
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued 1 task(s).")

	_, err = execute(t, "outbox", "requeue", "task_1")
	assert.Error(t, err, "task_1 is no longer dead")

	out, err = execute(t, "outbox", "requeue", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"requeued": 1}`, out)

	out, err = execute(t, "outbox", "list", "--status", "dead", "--json")
	require.NoError(t, err)
	var got struct {
		Tasks   []domain.SyncTask `json:"tasks"`
		Pending int               `json:"pending"`
		Dead    int               `json:"dead"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Empty(t, got.Tasks)
	assert.Equal(t, 2, got.Pending)
	assert.Zero(t, got.Dead)
}

func TestOutbox_ListEmptyAndBadStatus(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "outbox", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks found.")

	_, err = execute(t, "outbox", "list", "--status", "done")
	assert.Error(t, err)
}

func TestSchemaUp_MemoryDriver(t *testing.T) {
	setupEnv(t)

	out, err := execute(t, "schema", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")
}
