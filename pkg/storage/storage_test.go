package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/node"
	pkgerrors "github.com/fedloop/fedloop/pkg/errors"
	"github.com/fedloop/fedloop/pkg/storage"
	"github.com/fedloop/fedloop/session"
)

func TestInMemoryStorageCRUD(t *testing.T) {
	t.Parallel()
	db := storage.NewInMemoryStorage()
	ctx := context.Background()

	require.NoError(t, db.Create(ctx, "a", 1))
	assert.ErrorIs(t, db.Create(ctx, "a", 2), pkgerrors.ErrEntityExists)
	assert.ErrorIs(t, db.Create(ctx, "", 1), pkgerrors.ErrEmptyKey)

	v, err := db.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = db.Get(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)

	require.NoError(t, db.Update(ctx, "a", 2))
	assert.ErrorIs(t, db.Update(ctx, "missing", 2), pkgerrors.ErrNotFound)

	require.NoError(t, db.Delete(ctx, "a"))
	_, err = db.Get(ctx, "a")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestInMemoryStorageListPagination(t *testing.T) {
	t.Parallel()
	db := storage.NewInMemoryStorage()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, db.Create(ctx, fmt.Sprintf("key-%d", i), i))
	}

	page, total, err := db.List(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), total)
	require.Len(t, page, 4)
	// Insertion order is preserved.
	assert.Equal(t, 0, page[0])
	assert.Equal(t, 3, page[3])

	page, total, err = db.List(ctx, 8, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), total)
	assert.Len(t, page, 2)

	page, _, err = db.List(ctx, 20, 4)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestSessionRepository(t *testing.T) {
	t.Parallel()
	repo := storage.NewSessionRepository(storage.NewInMemoryStorage())
	ctx := context.Background()

	sess := session.Session{ID: "s1", Cluster: "edge-eu-1", State: session.Pending}
	require.NoError(t, repo.Create(ctx, sess))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	sess.State = session.Running
	require.NoError(t, repo.Update(ctx, sess))

	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, session.Running, got.State)

	sessions, total, err := repo.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
	assert.Len(t, sessions, 1)
}

func TestNodeRepository(t *testing.T) {
	t.Parallel()
	repo := storage.NewNodeRepository(storage.NewInMemoryStorage())
	ctx := context.Background()

	n := node.NewNode("worker-1", "10.0.0.1:9000")
	require.NoError(t, repo.Create(ctx, n))

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, n.Name, got.Name)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}
