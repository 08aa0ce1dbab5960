package workflows

import "time"

// DefaultInspectionSLADays applies when the workflow input carries no SLA
const DefaultInspectionSLADays = 3

// Flag activity settings
const (
	FlagOverdueTimeout     time.Duration = time.Minute
	FlagOverdueMaxAttempts int32         = 10
)

// Retry policy defaults
const (
	DefaultRetryInitialInterval    time.Duration = time.Second
	DefaultRetryMaxInterval        time.Duration = time.Minute
	DefaultRetryBackoffCoefficient float64       = 2.0
)

// NonRetryableErrorType marks activity failures that retrying cannot fix,
// such as a box that no longer exists or a revoked service identity
const NonRetryableErrorType = "NonRetryableError"
