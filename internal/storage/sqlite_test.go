package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/taskmesh/internal/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.db.Close() })
	return store
}

func TestSQLiteStore_NamespaceCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	ns := &engine.Namespace{
		ID:          "ns-1",
		Name:        "default",
		Description: "first namespace",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.CreateNamespace(ctx, ns))

	got, err := store.GetNamespace(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, "first namespace", got.Description)
	assert.True(t, got.CreatedAt.Equal(now))

	byName, err := store.GetNamespaceByName(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, "ns-1", byName.ID)

	_, err = store.GetNamespace(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	got.Name = "renamed"
	got.AssignmentCounts.Add(engine.AssignmentPending, 2)
	require.NoError(t, store.UpdateNamespace(ctx, got))

	reread, err := store.GetNamespace(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", reread.Name)
	assert.Equal(t, 2, reread.AssignmentCounts.Pending)

	list, err := store.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.RemoveNamespace(ctx, "ns-1"))
	err = store.RemoveNamespace(ctx, "ns-1")
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSQLiteStore_AssignmentListByStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	mk := func(id string, priority int, status engine.AssignmentStatus) *engine.Assignment {
		return &engine.Assignment{
			ID: id, NamespaceID: "ns-1", NorthStar: "goal", Status: status,
			Priority: priority, CreatedAt: now, UpdatedAt: now,
		}
	}
	require.NoError(t, store.CreateAssignment(ctx, mk("a-pending-hi", 5, engine.AssignmentPending)))
	require.NoError(t, store.CreateAssignment(ctx, mk("a-pending-lo", 1, engine.AssignmentPending)))
	require.NoError(t, store.CreateAssignment(ctx, mk("a-active", 10, engine.AssignmentActive)))
	require.NoError(t, store.CreateAssignment(ctx, mk("a-complete", 10, engine.AssignmentComplete)))

	eligible, err := store.ListAssignmentsByStatuses(ctx, "ns-1",
		[]engine.AssignmentStatus{engine.AssignmentPending, engine.AssignmentActive})
	require.NoError(t, err)
	require.Len(t, eligible, 3)
	assert.Equal(t, "a-pending-lo", eligible[0].ID)
	assert.Equal(t, "a-pending-hi", eligible[1].ID)
	assert.Equal(t, "a-active", eligible[2].ID)

	none, err := store.ListAssignmentsByStatuses(ctx, "ns-1", nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateNamespace(ctx, &engine.Namespace{
		ID: "ns-1", Name: "ns", CreatedAt: now, UpdatedAt: now,
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		require.NoError(t, tx.CreateAssignment(ctx, &engine.Assignment{
			ID: "a-1", NamespaceID: "ns-1", NorthStar: "goal",
			Status: engine.AssignmentPending, CreatedAt: now, UpdatedAt: now,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, getErr := store.GetAssignment(ctx, "a-1")
	assert.ErrorIs(t, getErr, engine.ErrNotFound, "transaction should have rolled back the insert")
}

func TestSQLiteStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.CreateNamespace(ctx, &engine.Namespace{
		ID: "ns-1", Name: "ns", CreatedAt: now, UpdatedAt: now,
	}))

	err := store.WithTx(ctx, func(ctx context.Context, tx engine.Store) error {
		return tx.CreateAssignment(ctx, &engine.Assignment{
			ID: "a-1", NamespaceID: "ns-1", NorthStar: "goal",
			Status: engine.AssignmentPending, CreatedAt: now, UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	got, err := store.GetAssignment(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, "goal", got.NorthStar)
}
