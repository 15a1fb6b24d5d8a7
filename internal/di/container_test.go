package di

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lydia02/E-Library-sub000/internal/di/providers"
	"github.com/Lydia02/E-Library-sub000/internal/domain"
	"github.com/Lydia02/E-Library-sub000/internal/service"
)

func testArgs(t *testing.T, extra ...string) []string {
	dir := t.TempDir()
	return append([]string{
		"-env-file=" + filepath.Join(dir, "missing.env"),
		"-primary-in-memory=true",
		"-secondary-driver=memory",
		"-outbox-path=" + filepath.Join(dir, "outbox.db"),
	}, extra...)
}

func TestContainer_WiresCatalog(t *testing.T) {
	injector := NewContainer(testArgs(t))
	require.NoError(t, Bootstrap(injector))
	t.Cleanup(func() { _ = injector.Shutdown() })

	catalog := do.MustInvoke[*service.Catalog](injector)
	b, err := catalog.CreateBook(context.Background(), &domain.Book{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593"})
	require.NoError(t, err)

	engine := do.MustInvoke[*providers.SyncEngineHandle](injector)
	engine.Wait()
	assert.Equal(t, int64(1), engine.Stats().Succeeded)

	secondary := do.MustInvoke[*providers.SecondaryHandle](injector)
	_, err = secondary.Get(context.Background(), domain.KindBooks, b.ID)
	assert.NoError(t, err)

	worker := do.MustInvoke[*providers.SyncWorkerHandle](injector)
	assert.NotNil(t, worker.Worker)
}

func TestContainer_OutboxDisabled(t *testing.T) {
	injector := NewContainer(testArgs(t, "-outbox-enabled=false"))
	require.NoError(t, Bootstrap(injector))
	t.Cleanup(func() { _ = injector.Shutdown() })

	outbox := do.MustInvoke[*providers.OutboxHandle](injector)
	assert.Nil(t, outbox.Outbox)
	worker := do.MustInvoke[*providers.SyncWorkerHandle](injector)
	assert.Nil(t, worker.Worker)

	// Without an outbox, starting the worker is a no-op.
	worker.Start()
	assert.NoError(t, worker.Shutdown())
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	injector := NewContainer(testArgs(t, "-secondary-driver=oracle"))
	assert.Error(t, Bootstrap(injector))
}
