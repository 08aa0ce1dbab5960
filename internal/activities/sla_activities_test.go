package activities

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/authorization"
	"github.com/dubox-platform/production-service/internal/workflows"
	apperrors "github.com/dubox-platform/production-service/pkg/errors"
)

type mockFlagger struct {
	mock.Mock
}

func (m *mockFlagger) FlagOverdueWIR(ctx context.Context, cmd application.FlagOverdueCommand) (bool, error) {
	args := m.Called(ctx, cmd)
	return args.Bool(0), args.Error(1)
}

func executeFlag(t *testing.T, flagger OverdueFlagger) (bool, error) {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	acts := NewSLAActivities(flagger)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.FlagOverdueWIR, workflows.FlagOverdueInput{
		BoxID:        "BOX-1",
		ActivityCode: "STAGE2-WIR1",
		Attempt:      1,
	})
	if err != nil {
		return false, err
	}
	var flagged bool
	require.NoError(t, val.Get(&flagged))
	return flagged, nil
}

func TestFlagOverdueWIR_ActsAsSLAMonitor(t *testing.T) {
	flagger := &mockFlagger{}
	flagger.On("FlagOverdueWIR", mock.Anything, application.FlagOverdueCommand{
		UserID:       authorization.SLAMonitorUser,
		BoxID:        "BOX-1",
		ActivityCode: "STAGE2-WIR1",
		Attempt:      1,
	}).Return(true, nil)

	flagged, err := executeFlag(t, flagger)
	require.NoError(t, err)
	assert.True(t, flagged)
	flagger.AssertExpectations(t)
}

func TestFlagOverdueWIR_ErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		nonRetryable bool
	}{
		{"not found", apperrors.ErrNotFound("box"), true},
		{"forbidden", apperrors.ErrForbidden(), true},
		{"unavailable", apperrors.ErrServiceUnavailable("persistence"), false},
		{"concurrent update", apperrors.ErrConcurrentUpdate("box"), false},
		{"internal", apperrors.ErrInternal("boom"), false},
		{"plain", errors.New("socket closed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flagger := &mockFlagger{}
			flagger.On("FlagOverdueWIR", mock.Anything, mock.Anything).Return(false, tt.err)

			_, err := executeFlag(t, flagger)
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.nonRetryable, appErr.NonRetryable())
		})
	}
}
