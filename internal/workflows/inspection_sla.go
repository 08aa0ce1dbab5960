package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// FlagOverdueActivity is the registered name of the activity that records an
// overdue inspection request
const FlagOverdueActivity = "FlagOverdueWIR"

// InspectionSLAInput identifies the attempt being watched
type InspectionSLAInput struct {
	BoxID        string    `json:"boxId"`
	ActivityCode string    `json:"activityCode"`
	WIRCode      string    `json:"wirCode"`
	Attempt      int       `json:"attempt"`
	RequestedAt  time.Time `json:"requestedAt"`
	SLADays      int       `json:"slaDays"`
}

// FlagOverdueInput is passed to the flag activity
type FlagOverdueInput struct {
	BoxID        string `json:"boxId"`
	ActivityCode string `json:"activityCode"`
	Attempt      int    `json:"attempt"`
}

// OverdueAt is the first instant at which an attempt raised at requestedAt
// has been pending for more than slaDays whole days
func OverdueAt(requestedAt time.Time, slaDays int) time.Time {
	return requestedAt.Add(time.Duration(slaDays+1) * 24 * time.Hour)
}

// InspectionSLAResult reports whether the attempt was still pending at the deadline
type InspectionSLAResult struct {
	BoxID     string    `json:"boxId"`
	WIRCode   string    `json:"wirCode"`
	Attempt   int       `json:"attempt"`
	Flagged   bool      `json:"flagged"`
	CheckedAt time.Time `json:"checkedAt"`
}

// InspectionSLAWorkflow sleeps until the attempt has been pending for more
// than SLADays whole days and then asks the production service to flag it. The activity ignores attempts that
// were resolved in the meantime.
func InspectionSLAWorkflow(ctx workflow.Context, input InspectionSLAInput) (*InspectionSLAResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Watching inspection request",
		"boxId", input.BoxID,
		"wirCode", input.WIRCode,
		"attempt", input.Attempt,
	)

	slaDays := input.SLADays
	if slaDays <= 0 {
		slaDays = DefaultInspectionSLADays
	}

	deadline := OverdueAt(input.RequestedAt, slaDays)
	if wait := deadline.Sub(workflow.Now(ctx)); wait > 0 {
		if err := workflow.Sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: FlagOverdueTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    DefaultRetryInitialInterval,
			BackoffCoefficient: DefaultRetryBackoffCoefficient,
			MaximumInterval:    DefaultRetryMaxInterval,
			MaximumAttempts:    FlagOverdueMaxAttempts,
			NonRetryableErrorTypes: []string{
				NonRetryableErrorType,
			},
		},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var flagged bool
	err := workflow.ExecuteActivity(actCtx, FlagOverdueActivity, FlagOverdueInput{
		BoxID:        input.BoxID,
		ActivityCode: input.ActivityCode,
		Attempt:      input.Attempt,
	}).Get(ctx, &flagged)
	if err != nil {
		logger.Error("Failed to flag overdue inspection request", "boxId", input.BoxID, "error", err)
		return nil, err
	}

	if flagged {
		logger.Warn("Inspection request overdue", "boxId", input.BoxID, "wirCode", input.WIRCode, "attempt", input.Attempt)
	}

	return &InspectionSLAResult{
		BoxID:     input.BoxID,
		WIRCode:   input.WIRCode,
		Attempt:   input.Attempt,
		Flagged:   flagged,
		CheckedAt: workflow.Now(ctx),
	}, nil
}
