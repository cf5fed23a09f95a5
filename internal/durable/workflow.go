package durable

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/relayforge/taskmesh/internal/engine"
)

// pollInterval bounds how often GroupChainWorkflow re-checks assignment
// status.
const pollInterval = 2 * time.Second

// Activities holds the store dependency activity functions call into.
type Activities struct {
	Store engine.Store
}

// activitiesRegistry holds the global Activities instance Temporal's
// worker-registered activity functions dispatch to.
var activitiesRegistry *Activities

// RegisterActivities installs the instance used by the package-level
// activity wrapper functions.
func RegisterActivities(a *Activities) {
	activitiesRegistry = a
}

// CheckAssignmentStatusActivity returns the current status of assignmentID.
func CheckAssignmentStatusActivity(ctx context.Context, assignmentID string) (string, error) {
	if activitiesRegistry == nil {
		return "", fmt.Errorf("durable activities not initialized")
	}
	a, err := activitiesRegistry.Store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return "", err
	}
	return string(a.Status), nil
}

// GroupChainWorkflow polls an assignment's status via activities until it
// reaches complete, surviving worker restarts via Temporal's durable
// execution. It does not drive the chain itself — the runner still calls
// start/complete/fail exactly as it does without Temporal; this workflow
// only observes the result.
func GroupChainWorkflow(ctx workflow.Context, assignmentID string) (string, error) {
	activityOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumAttempts:    5,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOpts)

	for {
		var status string
		if err := workflow.ExecuteActivity(ctx, CheckAssignmentStatusActivity, assignmentID).Get(ctx, &status); err != nil {
			return "", fmt.Errorf("check assignment status: %w", err)
		}
		if status == string(engine.AssignmentComplete) {
			return status, nil
		}
		if err := workflow.Sleep(ctx, pollInterval); err != nil {
			return "", err
		}
	}
}
