package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/dubox-platform/production-service/pkg/cloudevents"
)

// BoxStatus is the lifecycle state of a box
type BoxStatus string

const (
	BoxActive     BoxStatus = "active"
	BoxOnHold     BoxStatus = "on_hold"
	BoxDispatched BoxStatus = "dispatched"
)

// Box is one physical module in production
type Box struct {
	ID             string     `bson:"_id" json:"id"`
	Tag            string     `bson:"tag" json:"tag"`
	BoxType        string     `bson:"boxType" json:"boxType"`
	SubType        string     `bson:"subType,omitempty" json:"subType,omitempty"`
	Location       string     `bson:"location,omitempty" json:"location,omitempty"`
	CatalogVersion string     `bson:"catalogVersion" json:"catalogVersion"`
	Status         BoxStatus  `bson:"status,omitempty" json:"status,omitempty"`
	HoldReason     string     `bson:"holdReason,omitempty" json:"holdReason,omitempty"`
	HeldBy         string     `bson:"heldBy,omitempty" json:"heldBy,omitempty"`
	HeldAt         *time.Time `bson:"heldAt,omitempty" json:"heldAt,omitempty"`
	DispatchedBy   string     `bson:"dispatchedBy,omitempty" json:"dispatchedBy,omitempty"`
	DispatchedAt   *time.Time `bson:"dispatchedAt,omitempty" json:"dispatchedAt,omitempty"`
	CreatedBy      string     `bson:"createdBy" json:"createdBy"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time  `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewBox creates a box. boxType and subType must already be resolved against
// the catalog; activityCount is the size of its progress record.
func NewBox(id, tag, boxType, subType, location, catalogVersion, createdBy string, activityCount int, at time.Time) *Box {
	at = at.UTC()
	b := &Box{
		ID:             id,
		Tag:            strings.TrimSpace(tag),
		BoxType:        boxType,
		SubType:        subType,
		Location:       strings.TrimSpace(location),
		CatalogVersion: catalogVersion,
		Status:         BoxActive,
		CreatedBy:      createdBy,
		CreatedAt:      at,
		UpdatedAt:      at,
	}

	b.addDomainEvent(&BoxRegisteredEvent{
		BaseDomainEvent: newBase(cloudevents.BoxRegistered, id, at),
		BoxID:           id,
		Tag:             b.Tag,
		BoxType:         boxType,
		SubType:         subType,
		Location:        b.Location,
		CatalogVersion:  catalogVersion,
		ActivityCount:   activityCount,
		RegisteredBy:    createdBy,
	})
	return b
}

// CurrentStatus returns the lifecycle state. Boxes stored before the
// lifecycle existed have no status and are active.
func (b *Box) CurrentStatus() BoxStatus {
	if b.Status == "" {
		return BoxActive
	}
	return b.Status
}

// EnsureActive fails when the box is on hold or dispatched
func (b *Box) EnsureActive() error {
	switch b.CurrentStatus() {
	case BoxOnHold:
		return ErrBoxOnHold
	case BoxDispatched:
		return ErrBoxDispatched
	default:
		return nil
	}
}

// Hold stops all production work on the box until it is released
func (b *Box) Hold(reason, by string, at time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrHoldReasonRequired
	}
	if err := b.EnsureActive(); err != nil {
		return err
	}

	at = at.UTC()
	b.Status = BoxOnHold
	b.HoldReason = reason
	b.HeldBy = by
	b.HeldAt = &at
	b.UpdatedAt = at
	b.addDomainEvent(&BoxHeldEvent{
		BaseDomainEvent: newBase(cloudevents.BoxHeld, b.ID, at),
		BoxID:           b.ID,
		Reason:          reason,
		HeldBy:          by,
	})
	return nil
}

// Release returns a held box to production
func (b *Box) Release(by string, at time.Time) error {
	switch b.CurrentStatus() {
	case BoxDispatched:
		return ErrBoxDispatched
	case BoxActive:
		return fmt.Errorf("%w: box %s is not on hold", ErrInvalidTransition, b.ID)
	}

	at = at.UTC()
	reason := b.HoldReason
	b.Status = BoxActive
	b.HoldReason = ""
	b.HeldBy = ""
	b.HeldAt = nil
	b.UpdatedAt = at
	b.addDomainEvent(&BoxReleasedEvent{
		BaseDomainEvent: newBase(cloudevents.BoxReleased, b.ID, at),
		BoxID:           b.ID,
		HoldReason:      reason,
		ReleasedBy:      by,
	})
	return nil
}

// Dispatch ships the box. Only an active box whose progress is dispatch
// ready can leave the factory; afterwards the box is read-only.
func (b *Box) Dispatch(progress *ProgressRecord, dispatchStage int, by string, at time.Time) error {
	if err := b.EnsureActive(); err != nil {
		return err
	}
	if !progress.DispatchReady(dispatchStage) || !progress.CheckpointsApproved() {
		return ErrNotDispatchReady
	}

	at = at.UTC()
	b.Status = BoxDispatched
	b.DispatchedBy = by
	b.DispatchedAt = &at
	b.UpdatedAt = at
	b.addDomainEvent(&BoxDispatchedEvent{
		BaseDomainEvent: newBase(cloudevents.BoxDispatched, b.ID, at),
		BoxID:           b.ID,
		Location:        b.Location,
		DispatchedBy:    by,
	})
	return nil
}

// Relocate moves the box to a new factory location
func (b *Box) Relocate(location, by string, at time.Time) error {
	if err := b.EnsureActive(); err != nil {
		return err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return ErrInvalidLocation
	}

	from := b.Location
	b.Location = location
	b.UpdatedAt = at.UTC()
	b.addDomainEvent(&BoxRelocatedEvent{
		BaseDomainEvent: newBase(cloudevents.BoxRelocated, b.ID, at),
		BoxID:           b.ID,
		From:            from,
		To:              location,
		RelocatedBy:     by,
	})
	return nil
}

// Clone returns a copy without pending events
func (b *Box) Clone() *Box {
	c := *b
	if b.HeldAt != nil {
		t := *b.HeldAt
		c.HeldAt = &t
	}
	if b.DispatchedAt != nil {
		t := *b.DispatchedAt
		c.DispatchedAt = &t
	}
	c.domainEvents = nil
	return &c
}

func (b *Box) addDomainEvent(event DomainEvent) {
	b.domainEvents = append(b.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (b *Box) DomainEvents() []DomainEvent {
	return b.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (b *Box) ClearDomainEvents() {
	b.domainEvents = nil
}
