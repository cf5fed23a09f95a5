package chat

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
	require.NoError(t, store.CreateNamespace(context.Background(), &engine.Namespace{ID: "ns-1", Name: "default"}))
	return store
}

func mustAssignmentWithGroup(t *testing.T, store engine.Store) string {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", NorthStar: "ship it", Status: engine.AssignmentComplete,
	}))
	result := "all done"
	require.NoError(t, store.CreateGroup(ctx, &engine.JobGroup{
		ID: "g-1", AssignmentID: "a-1", Status: engine.GroupComplete, AggregatedResult: &result,
	}))
	return "a-1"
}

func TestThreadService_CreateAndGet(t *testing.T) {
	svc := NewThreadService(newTestStore(t))
	ctx := context.Background()

	th, err := svc.Create(ctx, "ns-1", "my thread", engine.ChatModeJam)
	require.NoError(t, err)

	got, err := svc.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.Equal(t, "my thread", got.Title)
	assert.Equal(t, engine.ChatModeJam, got.Mode)
}

func TestThreadService_EnableGuardianMode_LinksAndSeedsMessage(t *testing.T) {
	store := newTestStore(t)
	assignmentID := mustAssignmentWithGroup(t, store)
	svc := NewThreadService(store)
	ctx := context.Background()

	th, err := svc.Create(ctx, "ns-1", "guardian thread", engine.ChatModeJam)
	require.NoError(t, err)

	linked, err := svc.EnableGuardianMode(ctx, th.ID, assignmentID)
	require.NoError(t, err)
	assert.Equal(t, engine.ChatModeGuardian, linked.Mode)
	assert.Equal(t, assignmentID, linked.AssignmentID)

	a, err := store.GetAssignment(ctx, assignmentID)
	require.NoError(t, err)
	assert.Equal(t, engine.AlignmentAligned, a.AlignmentStatus)

	messages, err := svc.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, engine.ChatRolePM, messages[0].Role)
	assert.Contains(t, messages[0].Content, "all done")
}

func TestThreadService_UnlinkAssignment_AlwaysRefuses(t *testing.T) {
	store := newTestStore(t)
	assignmentID := mustAssignmentWithGroup(t, store)
	svc := NewThreadService(store)
	ctx := context.Background()

	th, err := svc.Create(ctx, "ns-1", "guardian thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = svc.EnableGuardianMode(ctx, th.ID, assignmentID)
	require.NoError(t, err)

	_, err = svc.UnlinkAssignment(ctx, th.ID)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)
}

func TestThreadService_Remove_CascadesMessages(t *testing.T) {
	store := newTestStore(t)
	svc := NewThreadService(store)
	ctx := context.Background()

	th, err := svc.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = svc.AddMessage(ctx, th.ID, engine.ChatRoleUser, "hello", "")
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, th.ID))

	_, err = svc.Get(ctx, th.ID)
	assert.ErrorIs(t, err, engine.ErrNotFound)

	messages, err := store.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestThreadService_AddMessage_TouchesThreadUpdatedAt(t *testing.T) {
	store := newTestStore(t)
	svc := NewThreadService(store)
	ctx := context.Background()

	th, err := svc.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	before := th.UpdatedAt

	_, err = svc.AddMessage(ctx, th.ID, engine.ChatRoleUser, "hello", "")
	require.NoError(t, err)

	reread, err := svc.Get(ctx, th.ID)
	require.NoError(t, err)
	assert.True(t, !reread.UpdatedAt.Before(before))
}
