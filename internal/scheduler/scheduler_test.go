package scheduler

import (
	"context"
	"testing"
	"time"

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

func mustJob(t *testing.T, store engine.Store, groupID, jobType string, status engine.JobStatus, result *string) {
	t.Helper()
	require.NoError(t, store.CreateJob(context.Background(), &engine.Job{
		ID: jobType + "-" + groupID, GroupID: groupID, JobType: jobType,
		Harness: engine.HarnessClaude, Status: status, Result: result,
	}))
}

func mustGroup(t *testing.T, store engine.Store, id, assignmentID, nextID string) {
	t.Helper()
	require.NoError(t, store.CreateGroup(context.Background(), &engine.JobGroup{
		ID: id, AssignmentID: assignmentID, NextGroupID: nextID, Status: engine.GroupPending,
	}))
}

func TestGetReadyJobs_SkipsAssignmentsWithRunningGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", Status: engine.AssignmentActive, HeadGroupID: "g-1",
	}))
	mustGroup(t, store, "g-1", "a-1", "")
	mustJob(t, store, "g-1", "build", engine.JobRunning, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	assert.Empty(t, ready, "a group with a running member contributes no ready jobs this pass")
}

func TestGetReadyJobs_ReturnsPendingJobsInHeadGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", Status: engine.AssignmentPending, HeadGroupID: "g-1",
	}))
	mustGroup(t, store, "g-1", "a-1", "")
	mustJob(t, store, "g-1", "build", engine.JobPending, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "a-1", ready[0].Assignment.ID)
}

func TestGetReadyJobs_SequentialAssignmentsPickActiveOverPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-pending", NamespaceID: "ns-1", Status: engine.AssignmentPending, Priority: 1, HeadGroupID: "g-pending",
	}))
	mustGroup(t, store, "g-pending", "a-pending", "")
	mustJob(t, store, "g-pending", "build", engine.JobPending, nil)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-active", NamespaceID: "ns-1", Status: engine.AssignmentActive, Priority: 10, HeadGroupID: "g-active",
	}))
	mustGroup(t, store, "g-active", "a-active", "")
	mustJob(t, store, "g-active", "build", engine.JobPending, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "a-active", ready[0].Assignment.ID)
}

func TestGetReadyJobs_SequentialTieBreaksByPriorityThenCreatedAt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-hi-prio", NamespaceID: "ns-1", Status: engine.AssignmentPending, Priority: 5, CreatedAt: newer, HeadGroupID: "g-1",
	}))
	mustGroup(t, store, "g-1", "a-hi-prio", "")
	mustJob(t, store, "g-1", "build", engine.JobPending, nil)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-lo-prio", NamespaceID: "ns-1", Status: engine.AssignmentPending, Priority: 1, CreatedAt: older, HeadGroupID: "g-2",
	}))
	mustGroup(t, store, "g-2", "a-lo-prio", "")
	mustJob(t, store, "g-2", "build", engine.JobPending, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "a-lo-prio", ready[0].Assignment.ID, "lower priority number wins the sequential slot")
}

func TestGetReadyJobs_IndependentAssignmentsAllContribute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	for _, id := range []string{"a-1", "a-2"} {
		require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
			ID: id, NamespaceID: "ns-1", Status: engine.AssignmentPending, Independent: true, HeadGroupID: "g-" + id,
		}))
		mustGroup(t, store, "g-"+id, id, "")
		mustJob(t, store, "g-"+id, "build", engine.JobPending, nil)
	}

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	assert.Len(t, ready, 2)
}

func TestWalkChain_ChainCorruptIsSkippedNotFatal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", Status: engine.AssignmentPending, HeadGroupID: "g-1",
	}))
	mustGroup(t, store, "g-1", "a-1", "g-2")
	mustGroup(t, store, "g-2", "a-1", "g-1")
	mustJob(t, store, "g-1", "build", engine.JobComplete, strPtr("done"))
	mustJob(t, store, "g-2", "build", engine.JobComplete, strPtr("done"))

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err, "a corrupt chain contributes no jobs but does not fail the whole batch")
	assert.Empty(t, ready)
}

func TestWalkChain_ResetsAccumulatorOnPMGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", Status: engine.AssignmentPending, HeadGroupID: "g-build",
	}))
	mustGroup(t, store, "g-build", "a-1", "g-pm")
	mustJob(t, store, "g-build", "build", engine.JobComplete, strPtr("built it"))

	mustGroup(t, store, "g-pm", "a-1", "g-test")
	mustJob(t, store, "g-pm", "pm", engine.JobComplete, strPtr("plan reviewed"))

	mustGroup(t, store, "g-test", "a-1", "")
	mustJob(t, store, "g-test", "test", engine.JobPending, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Empty(t, ready[0].AccumulatedResults, "pm group resets the accumulator so earlier build output is not carried forward")
}

func TestWalkChain_CapturesR1GroupResultsAtReview(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateAssignment(ctx, &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", Status: engine.AssignmentPending, HeadGroupID: "g-build",
	}))
	mustGroup(t, store, "g-build", "a-1", "g-review")
	mustJob(t, store, "g-build", "build", engine.JobComplete, strPtr("built it"))

	mustGroup(t, store, "g-review", "a-1", "g-pm")
	mustJob(t, store, "g-review", "review", engine.JobComplete, strPtr("needs work"))

	mustGroup(t, store, "g-pm", "a-1", "")
	mustJob(t, store, "g-pm", "pm", engine.JobPending, nil)

	ready, err := sched.GetReadyJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Len(t, ready[0].R1GroupResults, 1)
	assert.Equal(t, "built it", ready[0].R1GroupResults[0].Result)
}

func TestGetReadyChatJobs_ReturnsPendingOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sched := New(store)

	require.NoError(t, store.CreateChatJob(ctx, &engine.ChatJob{ID: "cj-1", NamespaceID: "ns-1", Status: engine.JobPending, CreatedAt: time.Now()}))
	require.NoError(t, store.CreateChatJob(ctx, &engine.ChatJob{ID: "cj-2", NamespaceID: "ns-1", Status: engine.JobComplete, CreatedAt: time.Now()}))

	chatJobs, err := sched.GetReadyChatJobs(ctx, "ns-1")
	require.NoError(t, err)
	require.Len(t, chatJobs, 1)
	assert.Equal(t, "cj-1", chatJobs[0].ID)
}

func strPtr(s string) *string { return &s }
