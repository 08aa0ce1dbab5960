package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dubox-platform/production-service/internal/checklist"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
)

// WIRStatus represents the state of one inspection attempt
type WIRStatus string

const (
	WIROpen                  WIRStatus = "open"
	WIRSubmitted             WIRStatus = "submitted"
	WIRApproved              WIRStatus = "approved"
	WIRConditionallyApproved WIRStatus = "conditionally_approved"
	WIRRejected              WIRStatus = "rejected"
)

// IsTerminal reports whether the attempt can no longer change
func (s WIRStatus) IsTerminal() bool {
	switch s {
	case WIRApproved, WIRConditionallyApproved, WIRRejected:
		return true
	default:
		return false
	}
}

// IsApproved reports whether the attempt opened the gate
func (s WIRStatus) IsApproved() bool {
	return s == WIRApproved || s == WIRConditionallyApproved
}

// Inspector identifies who resolved an attempt
type Inspector struct {
	ID   string `bson:"id" json:"id"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
	Role string `bson:"role,omitempty" json:"role,omitempty"`
}

// Submission is the accepted set of checklist responses for an attempt
type Submission struct {
	Responses   []checklist.Response `bson:"responses" json:"responses"`
	SubmittedBy string               `bson:"submittedBy" json:"submittedBy"`
	SubmittedAt time.Time            `bson:"submittedAt" json:"submittedAt"`
}

// WIRAttempt is a single inspection episode. Rejected and approved attempts
// are locked and never change again.
type WIRAttempt struct {
	ID               string      `bson:"id" json:"id"`
	BoxID            string      `bson:"boxId" json:"boxId"`
	ActivityCode     string      `bson:"activityCode" json:"activityCode"`
	WIRCode          string      `bson:"wirCode" json:"wirCode"`
	ChecklistCode    string      `bson:"checklistCode" json:"checklistCode"`
	Attempt          int         `bson:"attempt" json:"attempt"`
	Status           WIRStatus   `bson:"status" json:"status"`
	RequestedBy      string      `bson:"requestedBy" json:"requestedBy"`
	RequestedAt      time.Time   `bson:"requestedAt" json:"requestedAt"`
	Submission       *Submission `bson:"submission,omitempty" json:"submission,omitempty"`
	Inspector        *Inspector  `bson:"inspector,omitempty" json:"inspector,omitempty"`
	Notes            string      `bson:"notes,omitempty" json:"notes,omitempty"`
	Conditions       []string    `bson:"conditions,omitempty" json:"conditions,omitempty"`
	ResolvedAt       *time.Time  `bson:"resolvedAt,omitempty" json:"resolvedAt,omitempty"`
	Locked           bool        `bson:"locked" json:"locked"`
	OverdueFlaggedAt *time.Time  `bson:"overdueFlaggedAt,omitempty" json:"overdueFlaggedAt,omitempty"`
}

// PendingDays is the number of whole days since the attempt was raised
func (a *WIRAttempt) PendingDays(now time.Time) int {
	d := now.Sub(a.RequestedAt)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// Overdue reports whether a pending attempt has been waiting more than
// slaDays whole days
func (a *WIRAttempt) Overdue(now time.Time, slaDays int) bool {
	return !a.Status.IsTerminal() && a.PendingDays(now) > slaDays
}

// WIRHistory is the append-only list of attempts for one box checkpoint.
// At most one attempt is open or submitted, and it is always the last.
type WIRHistory struct {
	ID            string       `bson:"_id" json:"id"`
	BoxID         string       `bson:"boxId" json:"boxId"`
	ActivityCode  string       `bson:"activityCode" json:"activityCode"`
	WIRCode       string       `bson:"wirCode" json:"wirCode"`
	ChecklistCode string       `bson:"checklistCode" json:"checklistCode"`
	Attempts      []WIRAttempt `bson:"attempts" json:"attempts"`
	Version       int64        `bson:"version" json:"version"`
	UpdatedAt     time.Time    `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// WIRHistoryID is the stable identifier of the history for a box checkpoint
func WIRHistoryID(boxID, activityCode string) string {
	return boxID + "/" + activityCode
}

// NewWIRHistory creates an empty history for a checkpoint
func NewWIRHistory(boxID, activityCode, wirCode, checklistCode string) *WIRHistory {
	return &WIRHistory{
		ID:            WIRHistoryID(boxID, activityCode),
		BoxID:         boxID,
		ActivityCode:  activityCode,
		WIRCode:       wirCode,
		ChecklistCode: checklistCode,
		Attempts:      []WIRAttempt{},
	}
}

// Current returns the latest attempt
func (h *WIRHistory) Current() (*WIRAttempt, bool) {
	if len(h.Attempts) == 0 {
		return nil, false
	}
	return &h.Attempts[len(h.Attempts)-1], true
}

// Pending returns the open or submitted attempt, if any
func (h *WIRHistory) Pending() (*WIRAttempt, bool) {
	cur, ok := h.Current()
	if !ok || cur.Status.IsTerminal() {
		return nil, false
	}
	return cur, true
}

// IsApproved reports whether the checkpoint gate has been opened
func (h *WIRHistory) IsApproved() bool {
	cur, ok := h.Current()
	return ok && cur.Status.IsApproved()
}

// BlockedReason is the reason recorded on the activity held behind this gate
func (h *WIRHistory) BlockedReason() string {
	cur, ok := h.Current()
	if ok && cur.Attempt > 1 {
		return fmt.Sprintf("%s rejected (attempt %d)", h.WIRCode, cur.Attempt-1)
	}
	return "awaiting " + h.WIRCode
}

// Raise opens the first attempt. A history that already has attempts is
// either in flight or approved, so raising again is a duplicate.
func (h *WIRHistory) Raise(requestedBy string, at time.Time) (*WIRAttempt, error) {
	if len(h.Attempts) > 0 {
		return nil, ErrDuplicateWIR
	}
	return h.open(1, requestedBy, at), nil
}

func (h *WIRHistory) open(attempt int, requestedBy string, at time.Time) *WIRAttempt {
	at = at.UTC()
	h.Attempts = append(h.Attempts, WIRAttempt{
		ID:            uuid.New().String(),
		BoxID:         h.BoxID,
		ActivityCode:  h.ActivityCode,
		WIRCode:       h.WIRCode,
		ChecklistCode: h.ChecklistCode,
		Attempt:       attempt,
		Status:        WIROpen,
		RequestedBy:   requestedBy,
		RequestedAt:   at,
	})
	h.UpdatedAt = at

	h.addDomainEvent(&WIRRaisedEvent{
		BaseDomainEvent: newBase(cloudevents.WIRRaised, h.BoxID, at),
		BoxID:           h.BoxID,
		ActivityCode:    h.ActivityCode,
		WIRCode:         h.WIRCode,
		ChecklistCode:   h.ChecklistCode,
		Attempt:         attempt,
		RequestedBy:     requestedBy,
	})

	cur, _ := h.Current()
	return cur
}

// Submit records the responses when the verdict is complete. An incomplete
// verdict leaves the attempt open with nothing recorded.
func (h *WIRHistory) Submit(responses []checklist.Response, verdict checklist.Verdict, by string, at time.Time) error {
	cur, ok := h.Current()
	if !ok {
		return ErrWIRNotFound
	}
	if cur.Status != WIROpen {
		return ErrInvalidTransition
	}
	if !verdict.OK {
		return &IncompleteChecklistError{
			ChecklistCode: h.ChecklistCode,
			Missing:       verdict.Missing,
			Invalid:       verdict.Invalid,
		}
	}

	at = at.UTC()
	copied := make([]checklist.Response, len(responses))
	failed := 0
	for i, r := range responses {
		r.ItemID = strings.TrimSpace(r.ItemID)
		copied[i] = r
		if r.Result == checklist.ResultFail {
			failed++
		}
	}

	cur.Submission = &Submission{Responses: copied, SubmittedBy: by, SubmittedAt: at}
	cur.Status = WIRSubmitted
	h.UpdatedAt = at

	h.addDomainEvent(&WIRSubmittedEvent{
		BaseDomainEvent: newBase(cloudevents.WIRSubmitted, h.BoxID, at),
		BoxID:           h.BoxID,
		ActivityCode:    h.ActivityCode,
		WIRCode:         h.WIRCode,
		Attempt:         cur.Attempt,
		SubmittedBy:     by,
		ResponseCount:   len(copied),
		FailedItems:     failed,
	})
	return nil
}

// Approve resolves the submitted attempt. Non-empty conditions make it a
// conditional approval, which opens the gate all the same.
func (h *WIRHistory) Approve(inspector Inspector, conditions []string, at time.Time) error {
	cur, ok := h.Current()
	if !ok {
		return ErrWIRNotFound
	}
	if cur.Status != WIRSubmitted {
		return ErrInvalidTransition
	}

	at = at.UTC()
	var kept []string
	for _, c := range conditions {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}

	cur.Status = WIRApproved
	if len(kept) > 0 {
		cur.Status = WIRConditionallyApproved
		cur.Conditions = kept
	}
	insp := inspector
	cur.Inspector = &insp
	cur.ResolvedAt = &at
	cur.Locked = true
	h.UpdatedAt = at

	h.addDomainEvent(&WIRApprovedEvent{
		BaseDomainEvent: newBase(cloudevents.WIRApproved, h.BoxID, at),
		BoxID:           h.BoxID,
		ActivityCode:    h.ActivityCode,
		WIRCode:         h.WIRCode,
		Attempt:         cur.Attempt,
		Status:          cur.Status,
		InspectorID:     inspector.ID,
		Conditions:      kept,
	})
	return nil
}

// Reject resolves the submitted attempt as rejected and opens the next
// attempt. The rejected attempt keeps its responses.
func (h *WIRHistory) Reject(inspector Inspector, notes string, at time.Time) (*WIRAttempt, error) {
	cur, ok := h.Current()
	if !ok {
		return nil, ErrWIRNotFound
	}
	if cur.Status != WIRSubmitted {
		return nil, ErrInvalidTransition
	}
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, ErrNotesRequired
	}

	at = at.UTC()
	insp := inspector
	cur.Status = WIRRejected
	cur.Inspector = &insp
	cur.Notes = notes
	cur.ResolvedAt = &at
	cur.Locked = true

	rejected := cur.Attempt
	requestedBy := cur.RequestedBy
	h.addDomainEvent(&WIRRejectedEvent{
		BaseDomainEvent: newBase(cloudevents.WIRRejected, h.BoxID, at),
		BoxID:           h.BoxID,
		ActivityCode:    h.ActivityCode,
		WIRCode:         h.WIRCode,
		Attempt:         rejected,
		NextAttempt:     rejected + 1,
		InspectorID:     inspector.ID,
		Notes:           notes,
	})

	return h.open(rejected+1, requestedBy, at), nil
}

// FlagOverdue records an overdue event for the given attempt if it is still
// pending for more than slaDays. Each attempt is flagged at most once.
func (h *WIRHistory) FlagOverdue(attempt int, now time.Time, slaDays int) bool {
	cur, ok := h.Pending()
	if !ok || cur.Attempt != attempt || cur.OverdueFlaggedAt != nil || !cur.Overdue(now, slaDays) {
		return false
	}

	now = now.UTC()
	cur.OverdueFlaggedAt = &now
	h.UpdatedAt = now
	h.addDomainEvent(&WIROverdueEvent{
		BaseDomainEvent: newBase(cloudevents.WIROverdue, h.BoxID, now),
		BoxID:           h.BoxID,
		ActivityCode:    h.ActivityCode,
		WIRCode:         h.WIRCode,
		Attempt:         cur.Attempt,
		Status:          cur.Status,
		RequestedAt:     cur.RequestedAt,
		PendingDays:     cur.PendingDays(now),
	})
	return true
}

// Clone returns a deep copy without pending events
func (h *WIRHistory) Clone() *WIRHistory {
	c := *h
	c.Attempts = make([]WIRAttempt, len(h.Attempts))
	for i, a := range h.Attempts {
		if a.Submission != nil {
			s := *a.Submission
			s.Responses = append([]checklist.Response(nil), a.Submission.Responses...)
			a.Submission = &s
		}
		if a.Inspector != nil {
			in := *a.Inspector
			a.Inspector = &in
		}
		if a.ResolvedAt != nil {
			t := *a.ResolvedAt
			a.ResolvedAt = &t
		}
		if a.OverdueFlaggedAt != nil {
			t := *a.OverdueFlaggedAt
			a.OverdueFlaggedAt = &t
		}
		a.Conditions = append([]string(nil), a.Conditions...)
		c.Attempts[i] = a
	}
	c.domainEvents = nil
	return &c
}

func (h *WIRHistory) addDomainEvent(event DomainEvent) {
	h.domainEvents = append(h.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (h *WIRHistory) DomainEvents() []DomainEvent {
	return h.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (h *WIRHistory) ClearDomainEvents() {
	h.domainEvents = nil
}
