package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/authorization"
	"github.com/dubox-platform/production-service/internal/workflows"
	apperrors "github.com/dubox-platform/production-service/pkg/errors"
)

// OverdueFlagger is the part of the coordinator the SLA activity needs
type OverdueFlagger interface {
	FlagOverdueWIR(ctx context.Context, cmd application.FlagOverdueCommand) (bool, error)
}

// SLAActivities contains activities for the inspection SLA workflow
type SLAActivities struct {
	flagger OverdueFlagger
	userID  string
}

// NewSLAActivities creates a new SLAActivities instance acting as the SLA monitor identity
func NewSLAActivities(flagger OverdueFlagger) *SLAActivities {
	return &SLAActivities{
		flagger: flagger,
		userID:  authorization.SLAMonitorUser,
	}
}

// FlagOverdueWIR marks the attempt overdue if it is still pending. Errors that
// cannot succeed on retry are returned as non-retryable.
func (a *SLAActivities) FlagOverdueWIR(ctx context.Context, input workflows.FlagOverdueInput) (bool, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("Checking inspection request SLA",
		"boxId", input.BoxID,
		"activityCode", input.ActivityCode,
		"attempt", input.Attempt,
	)

	flagged, err := a.flagger.FlagOverdueWIR(ctx, application.FlagOverdueCommand{
		UserID:       a.userID,
		BoxID:        input.BoxID,
		ActivityCode: input.ActivityCode,
		Attempt:      input.Attempt,
	})
	if err != nil {
		logger.Error("Failed to flag inspection request",
			"boxId", input.BoxID,
			"activityCode", input.ActivityCode,
			"error", err,
		)
		if appErr, ok := apperrors.AsAppError(err); ok && !appErr.Retryable() && appErr.Code != apperrors.CodeInternalError {
			return false, temporal.NewNonRetryableApplicationError(appErr.Message, workflows.NonRetryableErrorType, err)
		}
		return false, fmt.Errorf("failed to flag inspection request: %w", err)
	}

	if flagged {
		logger.Info("Inspection request flagged overdue", "boxId", input.BoxID, "attempt", input.Attempt)
	}
	return flagged, nil
}
