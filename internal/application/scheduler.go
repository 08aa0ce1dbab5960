package application

import (
	"context"
	"time"
)

// SLARequest describes a pending inspection attempt to watch
type SLARequest struct {
	BoxID        string
	ActivityCode string
	WIRCode      string
	Attempt      int
	RequestedAt  time.Time
	SLADays      int
}

// InspectionScheduler arranges for FlagOverdueWIR to run once an attempt
// has been pending for more than SLADays
type InspectionScheduler interface {
	ScheduleSLA(ctx context.Context, req SLARequest) error
}

// NoopScheduler never schedules anything. Overdue attempts are still
// reported by ListOverdueWIRs.
type NoopScheduler struct{}

// ScheduleSLA implements InspectionScheduler
func (NoopScheduler) ScheduleSLA(context.Context, SLARequest) error { return nil }
