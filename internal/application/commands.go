package application

import "github.com/dubox-platform/production-service/internal/checklist"

// RegisterBoxCommand enters a new box into production
type RegisterBoxCommand struct {
	UserID   string
	Tag      string
	BoxType  string
	SubType  string
	Location string
}

// RelocateBoxCommand moves a box to another factory location
type RelocateBoxCommand struct {
	UserID   string
	BoxID    string
	Location string
}

// HoldBoxCommand stops production on a box
type HoldBoxCommand struct {
	UserID string
	BoxID  string
	Reason string
}

// BoxCommand is a lifecycle change that needs nothing but the box
type BoxCommand struct {
	UserID string
	BoxID  string
}

// ActivityCommand starts or completes one activity of a box
type ActivityCommand struct {
	UserID       string
	BoxID        string
	ActivityCode string
}

// RaiseWIRCommand opens an inspection request on a checkpoint. Checkpoint
// may be the activity code or its WIR code.
type RaiseWIRCommand struct {
	UserID     string
	BoxID      string
	Checkpoint string
}

// SubmitChecklistCommand submits checklist responses for the pending attempt
type SubmitChecklistCommand struct {
	UserID     string
	BoxID      string
	Checkpoint string
	Responses  []checklist.Response
}

// ApproveWIRCommand approves the submitted attempt. Non-empty conditions
// make the approval conditional.
type ApproveWIRCommand struct {
	UserID        string
	BoxID         string
	Checkpoint    string
	InspectorName string
	InspectorRole string
	Conditions    []string
}

// RejectWIRCommand rejects the submitted attempt and opens the next one
type RejectWIRCommand struct {
	UserID        string
	BoxID         string
	Checkpoint    string
	InspectorName string
	InspectorRole string
	Notes         string
}

// FlagOverdueCommand records that an attempt exceeded the inspection SLA
type FlagOverdueCommand struct {
	UserID       string
	BoxID        string
	ActivityCode string
	Attempt      int
}

// StatusQuery reads the progress of a box
type StatusQuery struct {
	UserID string
	BoxID  string
}

// WIRHistoryQuery reads every attempt of a box checkpoint
type WIRHistoryQuery struct {
	UserID     string
	BoxID      string
	Checkpoint string
}

// OverdueWIRsQuery lists pending attempts past the inspection SLA
type OverdueWIRsQuery struct {
	UserID string
}
