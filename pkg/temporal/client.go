package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/dubox-platform/production-service/pkg/logging"
)

// Config holds Temporal client configuration
type Config struct {
	HostPort  string
	Namespace string
	Identity  string
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HostPort:  "localhost:7233",
		Namespace: "default",
		Identity:  "production-service",
	}
}

// TaskQueues contains the Temporal task queue names
var TaskQueues = struct {
	Inspection string
}{
	Inspection: "production-inspection-queue",
}

// WorkflowNames contains the registered workflow names
var WorkflowNames = struct {
	InspectionSLA string
}{
	InspectionSLA: "InspectionSLAWorkflow",
}

// Client wraps the Temporal client
type Client struct {
	client client.Client
}

// NewClient dials Temporal
func NewClient(config *Config, logger *logging.Logger) (*Client, error) {
	options := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	}
	if logger != nil {
		options.Logger = NewLoggerAdapter(logger)
	}

	c, err := client.Dial(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	return &Client{client: c}, nil
}

// NewClientFrom wraps an existing SDK client. Used in tests with mocks.
func NewClientFrom(c client.Client) *Client {
	return &Client{client: c}
}

// Client returns the underlying Temporal client
func (c *Client) Client() client.Client {
	return c.client
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// StartWorkflow starts a workflow execution with a caller-chosen ID. An ID
// is never reused, so starting the same ID twice yields an
// AlreadyStarted service error once the first run has closed.
func (c *Client) StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	return c.client.ExecuteWorkflow(ctx, options, workflowName, args...)
}

// WorkerOptions contains options for creating a worker
type WorkerOptions struct {
	TaskQueue               string
	MaxConcurrentActivities int
	MaxConcurrentWorkflows  int
}

// DefaultWorkerOptions returns default worker options
func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:               taskQueue,
		MaxConcurrentActivities: 50,
		MaxConcurrentWorkflows:  50,
	}
}

// NewWorker creates a new Temporal worker
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     opts.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: opts.MaxConcurrentWorkflows,
	})
}
