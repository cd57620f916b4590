package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
	"github.com/slok/taskbroker/internal/storage"
	"github.com/slok/taskbroker/internal/storage/sqlite"
	"github.com/slok/taskbroker/internal/storage/sqlite/migrations"
	"github.com/slok/taskbroker/internal/storage/storagetest"
)

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
		Logger: log.Noop,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRepository(t *testing.T) {
	storagetest.TestRepository(t, func(t *testing.T) storage.Repository { return newRepo(t) })
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "data", "test.db")
	now := time.Now().UTC().Truncate(time.Millisecond)

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)

	final, commission := model.Money(10000), model.Money(1700)
	task := storagetest.TaskFixture("t1", now)
	task.Status = model.TaskStatusCompleted
	task.ContractorID = "contractor-1"
	task.FinalAmount = &final
	task.CommissionAmount = &commission
	task.CompletionPhotos = []string{"https://photos.example/1.jpg", "https://photos.example/2.jpg"}
	task.CompletedAt = &now
	require.NoError(t, repo.CreateTask(ctx, task))
	require.NoError(t, repo.Close())

	repo, err = sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath})
	require.NoError(t, err)
	defer repo.Close()

	got, err := repo.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task, *got)
}

func TestRepositoryPaymentRequiresTask(t *testing.T) {
	repo := newRepo(t)

	err := repo.CreatePayment(context.Background(), storagetest.PaymentFixture("p1", "missing", time.Now()))
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMigratorVersion(t *testing.T) {
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	m, err := migrations.NewMigrator(db, log.Noop)
	require.NoError(t, err)

	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, m.Up(ctx))
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(3), version)

	// Running again is a no-op.
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}
