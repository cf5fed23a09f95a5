package group

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

func mustAssignment(t *testing.T, store engine.Store) *engine.Assignment {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateNamespace(ctx, &engine.Namespace{ID: "ns-1", Name: "default"}))
	a := &engine.Assignment{ID: "a-1", NamespaceID: "ns-1", NorthStar: "goal", Status: engine.AssignmentPending}
	require.NoError(t, store.CreateAssignment(ctx, a))
	return a
}

func TestService_CreateGroup_RejectsEmpty(t *testing.T) {
	svc := New(newTestStore(t), nil)
	_, err := svc.CreateGroup(context.Background(), "a-1", nil)
	assert.ErrorIs(t, err, engine.ErrEmptyGroup)
}

func TestService_CreateGroup_SetsHeadWhenAbsent(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	result, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)
	require.Len(t, result.JobIDs, 1)

	reread, err := store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, result.GroupID, reread.HeadGroupID)
}

func TestService_CreateGroup_SecondCallDoesNotMoveHead(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	first, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	_, err = svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "test", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	reread, err := store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.GroupID, reread.HeadGroupID, "head must not move once set")
}

func TestService_InsertGroupAfter_Splices(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	head, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "plan", Harness: engine.HarnessClaude}})
	require.NoError(t, err)
	tail, err := svc.InsertGroupAfter(ctx, head.GroupID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)
	middle, err := svc.InsertGroupAfter(ctx, head.GroupID, []JobDef{{JobType: "test", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	chain, err := svc.ListGroups(ctx, a.ID)
	require.NoError(t, err)
	byID := map[string]*engine.JobGroup{}
	for _, g := range chain {
		byID[g.ID] = g
	}
	assert.Equal(t, middle.GroupID, byID[head.GroupID].NextGroupID)
	assert.Equal(t, tail.GroupID, byID[middle.GroupID].NextGroupID)
	assert.Equal(t, "", byID[tail.GroupID].NextGroupID)
}

func TestService_StartJob_RequiresPending(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)
	jobID := created.JobIDs[0]

	job, err := svc.StartJob(ctx, jobID, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.JobRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	_, err = svc.StartJob(ctx, jobID, nil)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)
}

func TestService_StartJob_ActivatesAssignmentAndAdjustsCounters(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	_, err = svc.StartJob(ctx, created.JobIDs[0], nil)
	require.NoError(t, err)

	reread, err := store.GetAssignment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.AssignmentActive, reread.Status)

	ns, err := store.GetNamespace(ctx, "ns-1")
	require.NoError(t, err)
	assert.Equal(t, 1, ns.AssignmentCounts.Active)
}

func TestService_CompleteJob_RequiresRunning(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	_, err = svc.CompleteJob(ctx, created.JobIDs[0], "done", nil)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)
}

func TestService_FailJob_AllowsPendingCancel(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	job, err := svc.FailJob(ctx, created.JobIDs[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.JobFailed, job.Status)
}

func TestService_DeriveGroupStatus_CompleteIfAnySucceeded(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID,
		[]JobDef{{JobType: "build", Harness: engine.HarnessClaude}, {JobType: "test", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	_, err = svc.StartJob(ctx, created.JobIDs[0], nil)
	require.NoError(t, err)
	_, err = svc.StartJob(ctx, created.JobIDs[1], nil)
	require.NoError(t, err)

	_, err = svc.CompleteJob(ctx, created.JobIDs[0], "built ok", nil)
	require.NoError(t, err)

	group, err := svc.GetGroup(ctx, created.GroupID)
	require.NoError(t, err)
	assert.Equal(t, engine.GroupRunning, group.Status, "group stays running while a member job is still running")

	_, err = svc.FailJob(ctx, created.JobIDs[1], nil, nil)
	require.NoError(t, err)

	group, err = svc.GetGroup(ctx, created.GroupID)
	require.NoError(t, err)
	assert.Equal(t, engine.GroupComplete, group.Status, "any succeeded member job completes the group")
	require.NotNil(t, group.AggregatedResult)
	assert.Contains(t, *group.AggregatedResult, "built ok")
}

func TestService_DeriveGroupStatus_FailedWhenNoneSucceeded(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)
	_, err = svc.StartJob(ctx, created.JobIDs[0], nil)
	require.NoError(t, err)
	_, err = svc.FailJob(ctx, created.JobIDs[0], nil, nil)
	require.NoError(t, err)

	group, err := svc.GetGroup(ctx, created.GroupID)
	require.NoError(t, err)
	assert.Equal(t, engine.GroupFailed, group.Status)
}

func TestBuildAggregatedResult_LabelsDuplicateJobTypes(t *testing.T) {
	jobs := []*engine.Job{
		{JobType: "review", Result: strPtr("first pass")},
		{JobType: "review", Result: strPtr("second pass")},
		{JobType: "build", Result: strPtr("built")},
	}
	out := buildAggregatedResult(jobs)
	assert.Contains(t, out, "## review A\nfirst pass")
	assert.Contains(t, out, "## review B\nsecond pass")
	assert.Contains(t, out, "## build\nbuilt")
}

func TestService_UpdateMetrics_MergesLastWriteWins(t *testing.T) {
	store := newTestStore(t)
	a := mustAssignment(t, store)
	svc := New(store, nil)
	ctx := context.Background()

	created, err := svc.CreateGroup(ctx, a.ID, []JobDef{{JobType: "build", Harness: engine.HarnessClaude}})
	require.NoError(t, err)

	job, err := svc.UpdateMetrics(ctx, created.JobIDs[0], engine.JobMetrics{ToolCallCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, job.Metrics.ToolCallCount)

	job, err = svc.UpdateMetrics(ctx, created.JobIDs[0], engine.JobMetrics{SubagentCount: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, job.Metrics.ToolCallCount, "unset fields in the patch leave the existing value untouched")
	assert.Equal(t, 2, job.Metrics.SubagentCount)
}

func strPtr(s string) *string { return &s }
