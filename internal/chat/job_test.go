package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/taskmesh/internal/engine"
)

func TestJobService_Trigger_SelectsUserMessageByDefault(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "do the thing", "")
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleAssistant, "ok working on it", "")
	require.NoError(t, err)

	job, err := jobs.Trigger(ctx, th.ID, "", false)
	require.NoError(t, err)
	assert.Equal(t, engine.HarnessClaude, job.Harness, "empty harness defaults to claude")
	assert.Contains(t, job.Context, "do the thing")
}

func TestJobService_Trigger_GuardianEvaluationSelectsPMMessage(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeGuardian)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "user says hi", "")
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRolePM, "pm summary", "")
	require.NoError(t, err)

	job, err := jobs.Trigger(ctx, th.ID, engine.HarnessCodex, true)
	require.NoError(t, err)
	assert.Contains(t, job.Context, "pm summary")
	assert.NotContains(t, job.Context, "\"latestUserMessage\":\"user says hi\"")
}

func TestJobService_Trigger_NoEligibleMessage(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)

	_, err = jobs.Trigger(ctx, th.ID, "", false)
	assert.ErrorIs(t, err, engine.ErrNoEligibleMessage)
}

func TestJobService_Trigger_GuardianModeEffectivePromptModeIsCook(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeGuardian)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRolePM, "pm summary", "")
	require.NoError(t, err)

	job, err := jobs.Trigger(ctx, th.ID, "", true)
	require.NoError(t, err)
	assert.Contains(t, job.Context, "\"effectivePromptMode\":\"cook\"")
}

func TestJobService_LifecycleTransitions(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "go", "")
	require.NoError(t, err)
	job, err := jobs.Trigger(ctx, th.ID, "", false)
	require.NoError(t, err)

	_, err = jobs.Complete(ctx, job.ID, "done", nil)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition, "cannot complete before start")

	started, err := jobs.Start(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.JobRunning, started.Status)

	_, err = jobs.Start(ctx, job.ID, nil)
	assert.ErrorIs(t, err, engine.ErrIllegalTransition)

	completed, err := jobs.Complete(ctx, job.ID, "done", nil)
	require.NoError(t, err)
	assert.Equal(t, engine.JobComplete, completed.Status)
	require.NotNil(t, completed.Result)
	assert.Equal(t, "done", *completed.Result)
}

func TestJobService_Fail_AllowsPendingCancel(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "go", "")
	require.NoError(t, err)
	job, err := jobs.Trigger(ctx, th.ID, "", false)
	require.NoError(t, err)

	failed, err := jobs.Fail(ctx, job.ID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.JobFailed, failed.Status)
}

func TestJobService_GetActiveForThread_PrefersPendingOverRunning(t *testing.T) {
	store := newTestStore(t)
	threads := NewThreadService(store)
	jobs := NewJobService(store)
	ctx := context.Background()

	th, err := threads.Create(ctx, "ns-1", "thread", engine.ChatModeJam)
	require.NoError(t, err)
	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "go", "")
	require.NoError(t, err)

	first, err := jobs.Trigger(ctx, th.ID, "", false)
	require.NoError(t, err)
	_, err = jobs.Start(ctx, first.ID, nil)
	require.NoError(t, err)

	_, err = threads.AddMessage(ctx, th.ID, engine.ChatRoleUser, "again", "")
	require.NoError(t, err)
	second, err := jobs.Trigger(ctx, th.ID, "", false)
	require.NoError(t, err)

	active, err := jobs.GetActiveForThread(ctx, th.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}
