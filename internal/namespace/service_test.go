package namespace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/internal/storage"
)

func newTestStore(t *testing.T) engine.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir() + "/test.db")
	require.NoError(t, err)
	return store
}

func TestService_Create_IdempotentOnName(t *testing.T) {
	svc := New(newTestStore(t))
	ctx := context.Background()

	first, err := svc.Create(ctx, "default", "first description")
	require.NoError(t, err)

	second, err := svc.Create(ctx, "default", "a different description entirely")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "first description", second.Description, "second call must not overwrite the existing row")

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestService_Update_CountersNotDirectlyWritable(t *testing.T) {
	svc := New(newTestStore(t))
	ctx := context.Background()

	ns, err := svc.Create(ctx, "default", "")
	require.NoError(t, err)

	newName := "renamed"
	newDesc := "updated"
	updated, err := svc.Update(ctx, ns.ID, &newName, &newDesc)
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, "updated", updated.Description)
	assert.Equal(t, 0, updated.AssignmentCounts.Pending)
}

func TestService_BackfillNamespaceCounts(t *testing.T) {
	store := newTestStore(t)
	svc := New(store)
	ctx := context.Background()

	ns, err := svc.Create(ctx, "default", "")
	require.NoError(t, err)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: ns.ID, NorthStar: "goal-1", Status: engine.AssignmentPending,
	}))
	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-2", NamespaceID: ns.ID, NorthStar: "goal-2", Status: engine.AssignmentActive,
	}))
	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-3", NamespaceID: ns.ID, NorthStar: "goal-3", Status: engine.AssignmentActive,
	}))

	require.NoError(t, svc.BackfillNamespaceCounts(ctx))

	reread, err := svc.Get(ctx, ns.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, reread.AssignmentCounts.Pending)
	assert.Equal(t, 2, reread.AssignmentCounts.Active)
	assert.Equal(t, 0, reread.AssignmentCounts.Complete)
}

func TestService_Remove_NotFoundAfterRemoval(t *testing.T) {
	svc := New(newTestStore(t))
	ctx := context.Background()

	ns, err := svc.Create(ctx, "default", "")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, ns.ID))
	_, err = svc.Get(ctx, ns.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}
