package application

import (
	"time"

	"github.com/dubox-platform/production-service/internal/checklist"
	"github.com/dubox-platform/production-service/internal/domain"
)

// BoxStatusDTO is the progress view of a box
type BoxStatusDTO struct {
	BoxID          string                 `json:"boxId"`
	Tag            string                 `json:"tag"`
	BoxType        string                 `json:"boxType"`
	SubType        string                 `json:"subType,omitempty"`
	Location       string                 `json:"location"`
	CatalogVersion string                 `json:"catalogVersion"`
	Status         string                 `json:"status"`
	HoldReason     string                 `json:"holdReason,omitempty"`
	DispatchedAt   *time.Time             `json:"dispatchedAt,omitempty"`
	Summary        domain.ProgressSummary `json:"summary"`
	DispatchReady  bool                   `json:"dispatchReady"`
	Activities     []ActivityDTO          `json:"activities"`
	CreatedBy      string                 `json:"createdBy"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

// ActivityDTO is one activity of a box
type ActivityDTO struct {
	Code            string     `json:"code"`
	Name            string     `json:"name"`
	Stage           int        `json:"stage"`
	OverallSequence int        `json:"overallSequence"`
	Position        int        `json:"position"`
	IsWIRCheckpoint bool       `json:"isWirCheckpoint"`
	WIRCode         string     `json:"wirCode,omitempty"`
	Status          string     `json:"status"`
	BlockedReason   string     `json:"blockedReason,omitempty"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	StartedBy       string     `json:"startedBy,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CompletedBy     string     `json:"completedBy,omitempty"`
}

// WIRHistoryDTO lists every attempt of one checkpoint, oldest first
type WIRHistoryDTO struct {
	BoxID         string          `json:"boxId"`
	ActivityCode  string          `json:"activityCode"`
	WIRCode       string          `json:"wirCode"`
	ChecklistCode string          `json:"checklistCode"`
	Status        string          `json:"status,omitempty"`
	Attempts      []WIRAttemptDTO `json:"attempts"`
}

// WIRAttemptDTO is one inspection episode
type WIRAttemptDTO struct {
	ID            string               `json:"id"`
	Attempt       int                  `json:"attempt"`
	Status        string               `json:"status"`
	RequestedBy   string               `json:"requestedBy"`
	RequestedAt   time.Time            `json:"requestedAt"`
	SubmittedBy   string               `json:"submittedBy,omitempty"`
	SubmittedAt   *time.Time           `json:"submittedAt,omitempty"`
	Responses     []checklist.Response `json:"responses,omitempty"`
	InspectorID   string               `json:"inspectorId,omitempty"`
	InspectorName string               `json:"inspectorName,omitempty"`
	Notes         string               `json:"notes,omitempty"`
	Conditions    []string             `json:"conditions,omitempty"`
	ResolvedAt    *time.Time           `json:"resolvedAt,omitempty"`
	Locked        bool                 `json:"locked"`
	PendingDays   int                  `json:"pendingDays"`
	Overdue       bool                 `json:"overdue"`
}

// OverdueWIRDTO is a pending attempt past the inspection SLA
type OverdueWIRDTO struct {
	BoxID        string     `json:"boxId"`
	ActivityCode string     `json:"activityCode"`
	WIRCode      string     `json:"wirCode"`
	Attempt      int        `json:"attempt"`
	Status       string     `json:"status"`
	RequestedBy  string     `json:"requestedBy"`
	RequestedAt  time.Time  `json:"requestedAt"`
	PendingDays  int        `json:"pendingDays"`
	FlaggedAt    *time.Time `json:"flaggedAt,omitempty"`
}
