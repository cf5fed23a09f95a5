// Package durable implements the optional Temporal-backed group-chain hook:
// a workflow that polls an assignment's status until it reaches a terminal
// state, for deployments that want crash-recovery across engine restarts.
// It is never required for the store-backed invariants, which hold from the
// store transactions alone.
package durable

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/relayforge/taskmesh/internal/config"
	"github.com/relayforge/taskmesh/pkg/logger"
)

// Client wraps the Temporal SDK client and worker.
type Client struct {
	client    client.Client
	worker    worker.Worker
	cfg       config.TemporalConfig
	connected bool
}

// NewClient constructs a Client from cfg without connecting.
func NewClient(cfg config.TemporalConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the connection to Temporal. Failure logs a warning and
// leaves the client disconnected rather than failing the caller — Temporal
// is optional.
func (c *Client) Connect(ctx context.Context) error {
	cl, err := client.Dial(client.Options{
		HostPort:  c.cfg.HostPort,
		Namespace: c.cfg.Namespace,
	})
	if err != nil {
		logger.WarnCF("durable", "failed to connect to temporal, durable workflows disabled", map[string]interface{}{
			"host_port": c.cfg.HostPort,
			"error":     err.Error(),
		})
		return nil
	}
	c.client = cl
	c.connected = true
	logger.InfoCF("durable", "connected to temporal", map[string]interface{}{
		"host_port": c.cfg.HostPort,
		"namespace": c.cfg.Namespace,
	})
	return nil
}

// IsConnected reports whether Connect succeeded.
func (c *Client) IsConnected() bool {
	return c.connected
}

// StartWorker registers GroupChainWorkflow and its activities and starts
// processing on the configured task queue.
func (c *Client) StartWorker(activities *Activities) error {
	if !c.connected {
		logger.WarnC("durable", "temporal not connected, skipping worker start")
		return nil
	}
	RegisterActivities(activities)

	w := worker.New(c.client, c.cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(GroupChainWorkflow)
	w.RegisterActivity(CheckAssignmentStatusActivity)

	go func() {
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.ErrorCF("durable", "temporal worker error", map[string]interface{}{"error": err.Error()})
		}
	}()
	c.worker = w
	logger.InfoCF("durable", "temporal worker started", map[string]interface{}{"task_queue": c.cfg.TaskQueue})
	return nil
}

// StartGroupChainWorkflow starts GroupChainWorkflow for assignmentID.
func (c *Client) StartGroupChainWorkflow(ctx context.Context, assignmentID string) (string, error) {
	if !c.connected {
		return "", fmt.Errorf("temporal not connected")
	}
	options := client.StartWorkflowOptions{
		ID:                       "group-chain-" + assignmentID,
		TaskQueue:                c.cfg.TaskQueue,
		WorkflowExecutionTimeout: 24 * time.Hour,
	}
	we, err := c.client.ExecuteWorkflow(ctx, options, GroupChainWorkflow, assignmentID)
	if err != nil {
		return "", fmt.Errorf("start workflow: %w", err)
	}
	return we.GetID(), nil
}

// GetWorkflowResult waits for and returns the final assignment status.
func (c *Client) GetWorkflowResult(ctx context.Context, workflowID string) (string, error) {
	if !c.connected {
		return "", fmt.Errorf("temporal not connected")
	}
	run := c.client.GetWorkflow(ctx, workflowID, "")
	var result string
	if err := run.Get(ctx, &result); err != nil {
		return "", err
	}
	return result, nil
}

// Stop shuts down the worker and client.
func (c *Client) Stop() {
	if c.worker != nil {
		c.worker.Stop()
	}
	if c.client != nil {
		c.client.Close()
	}
	c.connected = false
}
