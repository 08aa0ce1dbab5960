package domain

import (
	"math"
	"sort"
	"time"

	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
)

// ActivityStatus represents the state of one activity for one box
type ActivityStatus string

const (
	ActivityPending    ActivityStatus = "pending"
	ActivityInProgress ActivityStatus = "in_progress"
	ActivityCompleted  ActivityStatus = "completed"
	ActivityBlocked    ActivityStatus = "blocked"
)

// ActivityProgress is the per-box state of an applicable activity
type ActivityProgress struct {
	ActivityCode    string         `bson:"activityCode" json:"activityCode"`
	ActivityName    string         `bson:"activityName" json:"activityName"`
	StageNumber     int            `bson:"stageNumber" json:"stageNumber"`
	OverallSequence int            `bson:"overallSequence" json:"overallSequence"`
	Position        int            `bson:"position" json:"position"`
	IsWIRCheckpoint bool           `bson:"isWirCheckpoint" json:"isWirCheckpoint"`
	WIRCode         string         `bson:"wirCode,omitempty" json:"wirCode,omitempty"`
	Status          ActivityStatus `bson:"status" json:"status"`
	BlockedReason   string         `bson:"blockedReason,omitempty" json:"blockedReason,omitempty"`
	StartedAt       *time.Time     `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	StartedBy       string         `bson:"startedBy,omitempty" json:"startedBy,omitempty"`
	CompletedAt     *time.Time     `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CompletedBy     string         `bson:"completedBy,omitempty" json:"completedBy,omitempty"`
}

// ProgressRecord tracks every applicable activity of one box in
// OverallSequence order and enforces strict sequential gating.
type ProgressRecord struct {
	BoxID          string             `bson:"_id" json:"boxId"`
	CatalogVersion string             `bson:"catalogVersion" json:"catalogVersion"`
	Activities     []ActivityProgress `bson:"activities" json:"activities"`
	Version        int64              `bson:"version" json:"version"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewProgressRecord creates a record with every activity pending. The
// activities are the resolved set for the box.
func NewProgressRecord(boxID, catalogVersion string, activities []catalog.Activity, at time.Time) *ProgressRecord {
	sorted := make([]catalog.Activity, len(activities))
	copy(sorted, activities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OverallSequence < sorted[j].OverallSequence })

	entries := make([]ActivityProgress, len(sorted))
	for i, a := range sorted {
		entries[i] = ActivityProgress{
			ActivityCode:    a.Code,
			ActivityName:    a.Name,
			StageNumber:     a.StageNumber,
			OverallSequence: a.OverallSequence,
			Position:        i + 1,
			IsWIRCheckpoint: a.IsWIRCheckpoint,
			WIRCode:         a.WIRCode,
			Status:          ActivityPending,
		}
	}

	return &ProgressRecord{
		BoxID:          boxID,
		CatalogVersion: catalogVersion,
		Activities:     entries,
		UpdatedAt:      at.UTC(),
	}
}

func (p *ProgressRecord) indexOf(code string) int {
	for i := range p.Activities {
		if p.Activities[i].ActivityCode == code {
			return i
		}
	}
	return -1
}

func (p *ProgressRecord) nextIndex() int {
	for i := range p.Activities {
		if p.Activities[i].Status != ActivityCompleted {
			return i
		}
	}
	return -1
}

// Activity returns the entry for code
func (p *ProgressRecord) Activity(code string) (*ActivityProgress, bool) {
	i := p.indexOf(code)
	if i < 0 {
		return nil, false
	}
	return &p.Activities[i], true
}

// NextActivity returns the lowest-sequence entry that is not completed, or
// false when every activity is done
func (p *ProgressRecord) NextActivity() (*ActivityProgress, bool) {
	i := p.nextIndex()
	if i < 0 {
		return nil, false
	}
	return &p.Activities[i], true
}

// NextAfter returns the entry that follows code in sequence
func (p *ProgressRecord) NextAfter(code string) (*ActivityProgress, bool) {
	i := p.indexOf(code)
	if i < 0 || i+1 >= len(p.Activities) {
		return nil, false
	}
	return &p.Activities[i+1], true
}

// CanStart reports whether code is the next activity, every earlier
// activity is complete, and it is not blocked
func (p *ProgressRecord) CanStart(code string) bool {
	i := p.indexOf(code)
	if i < 0 || i != p.nextIndex() {
		return false
	}
	for j := 0; j < i; j++ {
		if p.Activities[j].Status != ActivityCompleted {
			return false
		}
	}
	return p.Activities[i].Status == ActivityPending
}

// MarkInProgress starts the next activity
func (p *ProgressRecord) MarkInProgress(code, by string, at time.Time) error {
	i := p.indexOf(code)
	if i < 0 {
		return ErrNotApplicable
	}
	if !p.CanStart(code) {
		return ErrOutOfSequence
	}

	p.start(i, by, at)
	return nil
}

func (p *ProgressRecord) start(i int, by string, at time.Time) {
	at = at.UTC()
	a := &p.Activities[i]
	a.Status = ActivityInProgress
	a.StartedAt = &at
	a.StartedBy = by
	p.UpdatedAt = at

	p.addDomainEvent(&ActivityStartedEvent{
		BaseDomainEvent: newBase(cloudevents.ActivityStarted, p.BoxID, at),
		BoxID:           p.BoxID,
		ActivityCode:    a.ActivityCode,
		StageNumber:     a.StageNumber,
		OverallSequence: a.OverallSequence,
		StartedBy:       by,
	})
}

// MarkCompleted completes the next activity. A pending next activity is
// started and completed in one step. Checkpoints are rejected with
// ErrRequiresInspection.
func (p *ProgressRecord) MarkCompleted(code, by string, at time.Time) error {
	i := p.indexOf(code)
	if i < 0 {
		return ErrNotApplicable
	}
	if p.Activities[i].IsWIRCheckpoint {
		return ErrRequiresInspection
	}
	if i != p.nextIndex() {
		return ErrOutOfSequence
	}

	switch p.Activities[i].Status {
	case ActivityInProgress:
	case ActivityPending:
		p.start(i, by, at)
	default:
		return ErrOutOfSequence
	}

	p.complete(i, by, at, false)
	return nil
}

// CompleteViaApproval completes a checkpoint once its inspection is approved
func (p *ProgressRecord) CompleteViaApproval(code, by string, at time.Time) error {
	i := p.indexOf(code)
	if i < 0 {
		return ErrNotApplicable
	}
	if !p.Activities[i].IsWIRCheckpoint {
		return ErrNotACheckpoint
	}
	if i != p.nextIndex() || p.Activities[i].Status == ActivityBlocked {
		return ErrOutOfSequence
	}

	if p.Activities[i].Status == ActivityPending {
		p.start(i, by, at)
	}
	p.complete(i, by, at, true)
	return nil
}

func (p *ProgressRecord) complete(i int, by string, at time.Time, viaInspection bool) {
	at = at.UTC()
	a := &p.Activities[i]
	a.Status = ActivityCompleted
	a.CompletedAt = &at
	a.CompletedBy = by
	a.BlockedReason = ""
	p.UpdatedAt = at

	p.addDomainEvent(&ActivityCompletedEvent{
		BaseDomainEvent: newBase(cloudevents.ActivityCompleted, p.BoxID, at),
		BoxID:           p.BoxID,
		ActivityCode:    a.ActivityCode,
		StageNumber:     a.StageNumber,
		OverallSequence: a.OverallSequence,
		CompletedBy:     by,
		ViaInspection:   viaInspection,
	})
}

// MarkBlocked holds an activity behind an inspection gate
func (p *ProgressRecord) MarkBlocked(code, reason string) error {
	i := p.indexOf(code)
	if i < 0 {
		return ErrNotApplicable
	}
	a := &p.Activities[i]
	if a.Status == ActivityCompleted || a.Status == ActivityInProgress {
		return ErrOutOfSequence
	}
	a.Status = ActivityBlocked
	a.BlockedReason = reason
	return nil
}

// Unblock releases a blocked activity back to pending. Unblocking an entry
// that is not blocked is a no-op.
func (p *ProgressRecord) Unblock(code string) error {
	i := p.indexOf(code)
	if i < 0 {
		return ErrNotApplicable
	}
	a := &p.Activities[i]
	if a.Status == ActivityBlocked {
		a.Status = ActivityPending
		a.BlockedReason = ""
	}
	return nil
}

// ProgressSummary is a point-in-time view of a progress record
type ProgressSummary struct {
	Total           int     `json:"total"`
	Pending         int     `json:"pending"`
	InProgress      int     `json:"inProgress"`
	Completed       int     `json:"completed"`
	Blocked         int     `json:"blocked"`
	ProgressPercent float64 `json:"progressPercent"`
	CurrentStage    int     `json:"currentStage"`
	NextActivity    string  `json:"nextActivity,omitempty"`
	AllComplete     bool    `json:"allComplete"`
}

// Summary counts activities per status. CurrentStage is the stage of the
// next activity, or of the last activity when all are complete.
func (p *ProgressRecord) Summary() ProgressSummary {
	s := ProgressSummary{Total: len(p.Activities)}
	for _, a := range p.Activities {
		switch a.Status {
		case ActivityPending:
			s.Pending++
		case ActivityInProgress:
			s.InProgress++
		case ActivityCompleted:
			s.Completed++
		case ActivityBlocked:
			s.Blocked++
		}
	}

	if s.Total > 0 {
		s.ProgressPercent = math.Round(float64(s.Completed)/float64(s.Total)*10000) / 100
	}

	if next, ok := p.NextActivity(); ok {
		s.CurrentStage = next.StageNumber
		s.NextActivity = next.ActivityCode
	} else {
		s.AllComplete = true
		if s.Total > 0 {
			s.CurrentStage = p.Activities[s.Total-1].StageNumber
		}
	}
	return s
}

// DispatchReady reports whether every applicable activity up to and
// including dispatchStage is complete
func (p *ProgressRecord) DispatchReady(dispatchStage int) bool {
	seen := false
	for _, a := range p.Activities {
		if a.StageNumber > dispatchStage {
			continue
		}
		seen = true
		if a.Status != ActivityCompleted {
			return false
		}
	}
	return seen
}

// CheckpointsApproved reports whether every inspection checkpoint of the box
// has completed, which happens only through an approved WIR
func (p *ProgressRecord) CheckpointsApproved() bool {
	for _, a := range p.Activities {
		if a.IsWIRCheckpoint && a.Status != ActivityCompleted {
			return false
		}
	}
	return true
}

// Clone returns a deep copy without pending events
func (p *ProgressRecord) Clone() *ProgressRecord {
	c := *p
	c.Activities = make([]ActivityProgress, len(p.Activities))
	for i, a := range p.Activities {
		if a.StartedAt != nil {
			t := *a.StartedAt
			a.StartedAt = &t
		}
		if a.CompletedAt != nil {
			t := *a.CompletedAt
			a.CompletedAt = &t
		}
		c.Activities[i] = a
	}
	c.domainEvents = nil
	return &c
}

func (p *ProgressRecord) addDomainEvent(event DomainEvent) {
	p.domainEvents = append(p.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (p *ProgressRecord) DomainEvents() []DomainEvent {
	return p.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (p *ProgressRecord) ClearDomainEvents() {
	p.domainEvents = nil
}
