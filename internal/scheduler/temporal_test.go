package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"

	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/workflows"
	"github.com/dubox-platform/production-service/pkg/temporal"
)

type startCall struct {
	workflowID string
	taskQueue  string
	name       string
	args       []interface{}
}

type fakeStarter struct {
	calls []startCall
	err   error
}

func (f *fakeStarter) StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	f.calls = append(f.calls, startCall{workflowID, taskQueue, workflowName, args})
	if f.err != nil {
		return nil, f.err
	}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return(workflowID)
	run.On("GetRunID").Return("run-1")
	return run, nil
}

func slaRequest() application.SLARequest {
	return application.SLARequest{
		BoxID:        "BOX-1",
		ActivityCode: "STAGE2-WIR1",
		WIRCode:      "WIR-1",
		Attempt:      2,
		RequestedAt:  time.Date(2024, 11, 4, 7, 0, 0, 0, time.UTC),
		SLADays:      3,
	}
}

func TestTemporalScheduler_StartsWorkflowPerAttempt(t *testing.T) {
	starter := &fakeStarter{}
	s := NewTemporalScheduler(starter, nil)

	require.NoError(t, s.ScheduleSLA(context.Background(), slaRequest()))
	require.Len(t, starter.calls, 1)

	call := starter.calls[0]
	assert.Equal(t, "wir-sla-BOX-1-stage2-wir1-2", call.workflowID)
	assert.Equal(t, temporal.TaskQueues.Inspection, call.taskQueue)
	assert.Equal(t, temporal.WorkflowNames.InspectionSLA, call.name)
	require.Len(t, call.args, 1)

	input, ok := call.args[0].(workflows.InspectionSLAInput)
	require.True(t, ok)
	assert.Equal(t, 2, input.Attempt)
	assert.Equal(t, 3, input.SLADays)
	assert.Equal(t, "WIR-1", input.WIRCode)
}

func TestTemporalScheduler_AlreadyStartedIsNotAnError(t *testing.T) {
	starter := &fakeStarter{err: serviceerror.NewWorkflowExecutionAlreadyStarted("exists", "", "run-0")}
	s := NewTemporalScheduler(starter, nil)

	assert.NoError(t, s.ScheduleSLA(context.Background(), slaRequest()))
}

func TestTemporalScheduler_StartFailure(t *testing.T) {
	down := errors.New("connection refused")
	s := NewTemporalScheduler(&fakeStarter{err: down}, nil)

	err := s.ScheduleSLA(context.Background(), slaRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, down))
	assert.Contains(t, err.Error(), "wir-sla-BOX-1-stage2-wir1-2")
}
