package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent represents a domain event
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	AggregateID() string
}

// BaseDomainEvent contains common event fields. AggregateId is always the box ID.
type BaseDomainEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	AggregateId string    `json:"aggregateId"`
	Timestamp   time.Time `json:"timestamp"`
}

func (e BaseDomainEvent) EventType() string     { return e.Type }
func (e BaseDomainEvent) OccurredAt() time.Time { return e.Timestamp }
func (e BaseDomainEvent) AggregateID() string   { return e.AggregateId }

func newBase(eventType, boxID string, at time.Time) BaseDomainEvent {
	return BaseDomainEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		AggregateId: boxID,
		Timestamp:   at.UTC(),
	}
}

// BoxRegisteredEvent is raised when a box enters the factory
type BoxRegisteredEvent struct {
	BaseDomainEvent
	BoxID          string `json:"boxId"`
	Tag            string `json:"tag"`
	BoxType        string `json:"boxType"`
	SubType        string `json:"subType,omitempty"`
	Location       string `json:"location,omitempty"`
	CatalogVersion string `json:"catalogVersion"`
	ActivityCount  int    `json:"activityCount"`
	RegisteredBy   string `json:"registeredBy"`
}

// BoxRelocatedEvent is raised when a box moves within the factory
type BoxRelocatedEvent struct {
	BaseDomainEvent
	BoxID       string `json:"boxId"`
	From        string `json:"from,omitempty"`
	To          string `json:"to"`
	RelocatedBy string `json:"relocatedBy"`
}

// BoxHeldEvent is raised when production on a box is stopped
type BoxHeldEvent struct {
	BaseDomainEvent
	BoxID  string `json:"boxId"`
	Reason string `json:"reason"`
	HeldBy string `json:"heldBy"`
}

// BoxReleasedEvent is raised when a held box returns to production
type BoxReleasedEvent struct {
	BaseDomainEvent
	BoxID      string `json:"boxId"`
	HoldReason string `json:"holdReason,omitempty"`
	ReleasedBy string `json:"releasedBy"`
}

// BoxDispatchedEvent is raised when a box leaves the factory
type BoxDispatchedEvent struct {
	BaseDomainEvent
	BoxID        string `json:"boxId"`
	Location     string `json:"location,omitempty"`
	DispatchedBy string `json:"dispatchedBy"`
}

// ActivityStartedEvent is raised when an activity moves to in progress
type ActivityStartedEvent struct {
	BaseDomainEvent
	BoxID           string `json:"boxId"`
	ActivityCode    string `json:"activityCode"`
	StageNumber     int    `json:"stageNumber"`
	OverallSequence int    `json:"overallSequence"`
	StartedBy       string `json:"startedBy"`
}

// ActivityCompletedEvent is raised when an activity completes
type ActivityCompletedEvent struct {
	BaseDomainEvent
	BoxID           string `json:"boxId"`
	ActivityCode    string `json:"activityCode"`
	StageNumber     int    `json:"stageNumber"`
	OverallSequence int    `json:"overallSequence"`
	CompletedBy     string `json:"completedBy"`
	ViaInspection   bool   `json:"viaInspection"`
}

// WIRRaisedEvent is raised when an inspection attempt is opened
type WIRRaisedEvent struct {
	BaseDomainEvent
	BoxID         string `json:"boxId"`
	ActivityCode  string `json:"activityCode"`
	WIRCode       string `json:"wirCode"`
	ChecklistCode string `json:"checklistCode"`
	Attempt       int    `json:"attempt"`
	RequestedBy   string `json:"requestedBy"`
}

// WIRSubmittedEvent is raised when a complete checklist is submitted
type WIRSubmittedEvent struct {
	BaseDomainEvent
	BoxID         string `json:"boxId"`
	ActivityCode  string `json:"activityCode"`
	WIRCode       string `json:"wirCode"`
	Attempt       int    `json:"attempt"`
	SubmittedBy   string `json:"submittedBy"`
	ResponseCount int    `json:"responseCount"`
	FailedItems   int    `json:"failedItems"`
}

// WIRApprovedEvent is raised when an inspector approves an attempt
type WIRApprovedEvent struct {
	BaseDomainEvent
	BoxID        string    `json:"boxId"`
	ActivityCode string    `json:"activityCode"`
	WIRCode      string    `json:"wirCode"`
	Attempt      int       `json:"attempt"`
	Status       WIRStatus `json:"status"`
	InspectorID  string    `json:"inspectorId"`
	Conditions   []string  `json:"conditions,omitempty"`
}

// WIRRejectedEvent is raised when an inspector rejects an attempt
type WIRRejectedEvent struct {
	BaseDomainEvent
	BoxID        string `json:"boxId"`
	ActivityCode string `json:"activityCode"`
	WIRCode      string `json:"wirCode"`
	Attempt      int    `json:"attempt"`
	NextAttempt  int    `json:"nextAttempt"`
	InspectorID  string `json:"inspectorId"`
	Notes        string `json:"notes"`
}

// WIROverdueEvent is raised when an attempt stays pending past the SLA
type WIROverdueEvent struct {
	BaseDomainEvent
	BoxID        string    `json:"boxId"`
	ActivityCode string    `json:"activityCode"`
	WIRCode      string    `json:"wirCode"`
	Attempt      int       `json:"attempt"`
	Status       WIRStatus `json:"status"`
	RequestedAt  time.Time `json:"requestedAt"`
	PendingDays  int       `json:"pendingDays"`
}
