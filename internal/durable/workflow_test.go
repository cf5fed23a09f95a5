package durable

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/relayforge/taskmesh/internal/engine"
	"github.com/relayforge/taskmesh/internal/storage"
)

func newTestStore(t *testing.T) engine.Store {
	t.Helper()
	store, err := storage.NewSQLiteStore(t.TempDir() + "/test.db")
	require.NoError(t, err)
	return store
}

func TestCheckAssignmentStatusActivity_ReturnsCurrentStatus(t *testing.T) {
	store := newTestStore(t)
	RegisterActivities(&Activities{Store: store})

	require.NoError(t, store.CreateNamespace(context.Background(), &engine.Namespace{ID: "ns-1", Name: "default"}))
	require.NoError(t, store.CreateAssignment(context.Background(), &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", NorthStar: "ship it", Status: engine.AssignmentActive,
	}))

	status, err := CheckAssignmentStatusActivity(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, string(engine.AssignmentActive), status)
}

func TestCheckAssignmentStatusActivity_UninitializedRegistry(t *testing.T) {
	activitiesRegistry = nil
	_, err := CheckAssignmentStatusActivity(context.Background(), "a-1")
	require.Error(t, err)
}

func TestGroupChainWorkflow_PollsUntilComplete(t *testing.T) {
	store := newTestStore(t)
	RegisterActivities(&Activities{Store: store})

	require.NoError(t, store.CreateNamespace(context.Background(), &engine.Namespace{ID: "ns-1", Name: "default"}))
	require.NoError(t, store.CreateAssignment(context.Background(), &engine.Assignment{
		ID: "a-1", NamespaceID: "ns-1", NorthStar: "ship it", Status: engine.AssignmentComplete,
	}))

	ts := &testsuite.WorkflowTestSuite{}
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterActivity(CheckAssignmentStatusActivity)
	env.ExecuteWorkflow(GroupChainWorkflow, "a-1")

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result string
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, string(engine.AssignmentComplete), result)
}
