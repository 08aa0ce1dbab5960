// Package scheduler starts inspection SLA timers on Temporal.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/workflows"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/temporal"
)

// WorkflowStarter starts a workflow by ID. *temporal.Client satisfies it.
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalScheduler implements application.InspectionScheduler by starting
// one InspectionSLAWorkflow per attempt
type TemporalScheduler struct {
	starter   WorkflowStarter
	taskQueue string
	logger    *logging.Logger
}

// NewTemporalScheduler creates a scheduler on the inspection task queue
func NewTemporalScheduler(starter WorkflowStarter, logger *logging.Logger) *TemporalScheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TemporalScheduler{
		starter:   starter,
		taskQueue: temporal.TaskQueues.Inspection,
		logger:    logger.WithComponent("sla-scheduler"),
	}
}

// WorkflowID is the deterministic workflow ID for an attempt
func WorkflowID(boxID, activityCode string, attempt int) string {
	return fmt.Sprintf("wir-sla-%s-%s-%d", boxID, strings.ToLower(activityCode), attempt)
}

// ScheduleSLA implements application.InspectionScheduler. Scheduling the same
// attempt twice is not an error.
func (s *TemporalScheduler) ScheduleSLA(ctx context.Context, req application.SLARequest) error {
	workflowID := WorkflowID(req.BoxID, req.ActivityCode, req.Attempt)
	input := workflows.InspectionSLAInput{
		BoxID:        req.BoxID,
		ActivityCode: req.ActivityCode,
		WIRCode:      req.WIRCode,
		Attempt:      req.Attempt,
		RequestedAt:  req.RequestedAt,
		SLADays:      req.SLADays,
	}

	run, err := s.starter.StartWorkflow(ctx, workflowID, s.taskQueue, temporal.WorkflowNames.InspectionSLA, input)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			s.logger.Debug("SLA workflow already started", "workflowId", workflowID)
			return nil
		}
		return fmt.Errorf("failed to start SLA workflow %s: %w", workflowID, err)
	}

	s.logger.Info("SLA workflow started",
		"workflowId", run.GetID(),
		"runId", run.GetRunID(),
		"boxId", req.BoxID,
		"wirCode", req.WIRCode,
	)
	return nil
}

var _ application.InspectionScheduler = (*TemporalScheduler)(nil)
