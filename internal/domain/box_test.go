package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/pkg/cloudevents"
)

func TestNewBox(t *testing.T) {
	box := NewBox("BOX-1", " B-101 ", "Bedrooms", "Master", "Bay 3", "2024.11.1", "pm-1", 42, testTime)

	assert.Equal(t, "B-101", box.Tag)
	assert.Equal(t, "Bay 3", box.Location)
	assert.Equal(t, testTime, box.CreatedAt)

	events := box.DomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, cloudevents.BoxRegistered, events[0].EventType())
	registered := events[0].(*BoxRegisteredEvent)
	assert.Equal(t, 42, registered.ActivityCount)
	assert.Equal(t, "Master", registered.SubType)
}

func TestBox_Relocate(t *testing.T) {
	box := NewBox("BOX-1", "B-101", "Kitchen", "", "Bay 3", "v1", "pm-1", 10, testTime)
	box.ClearDomainEvents()

	err := box.Relocate("  ", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrInvalidLocation))
	assert.Empty(t, box.DomainEvents())

	later := testTime.Add(time.Hour)
	require.NoError(t, box.Relocate("Curing Yard", "foreman", later))
	assert.Equal(t, "Curing Yard", box.Location)
	assert.Equal(t, later, box.UpdatedAt)

	events := box.DomainEvents()
	require.Len(t, events, 1)
	moved := events[0].(*BoxRelocatedEvent)
	assert.Equal(t, "Bay 3", moved.From)
	assert.Equal(t, "Curing Yard", moved.To)

	clone := box.Clone()
	assert.Empty(t, clone.DomainEvents())
	assert.Equal(t, box.Location, clone.Location)
}

func TestBox_HoldAndRelease(t *testing.T) {
	box := NewBox("BOX-1", "B-101", "Kitchen", "", "Bay 3", "v1", "pm-1", 10, testTime)
	box.ClearDomainEvents()
	assert.Equal(t, BoxActive, box.CurrentStatus())
	require.NoError(t, box.EnsureActive())

	assert.True(t, errors.Is(box.Hold(" ", "qc", testTime), ErrHoldReasonRequired))
	assert.True(t, errors.Is(box.Release("qc", testTime), ErrInvalidTransition))

	require.NoError(t, box.Hold(" honeycombing ", "qc", testTime))
	assert.Equal(t, BoxOnHold, box.Status)
	assert.Equal(t, "honeycombing", box.HoldReason)
	require.NotNil(t, box.HeldAt)
	assert.True(t, errors.Is(box.EnsureActive(), ErrBoxOnHold))
	assert.True(t, errors.Is(box.Hold("again", "qc", testTime), ErrBoxOnHold))
	assert.True(t, errors.Is(box.Relocate("Yard", "foreman", testTime), ErrBoxOnHold))

	later := testTime.Add(time.Hour)
	require.NoError(t, box.Release("pm", later))
	assert.Equal(t, BoxActive, box.Status)
	assert.Empty(t, box.HoldReason)
	assert.Nil(t, box.HeldAt)
	assert.Equal(t, later, box.UpdatedAt)

	events := box.DomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, cloudevents.BoxHeld, events[0].EventType())
	assert.Equal(t, cloudevents.BoxReleased, events[1].EventType())
	assert.Equal(t, "honeycombing", events[1].(*BoxReleasedEvent).HoldReason)
}

func TestBox_Dispatch(t *testing.T) {
	p := newKitchenRecord(t)
	box := NewBox("BOX-1", "B-101", "Kitchen", "", "Bay 3", "v1", "pm-1", len(p.Activities), testTime)
	box.ClearDomainEvents()

	assert.True(t, errors.Is(box.Dispatch(p, 7, "pm", testTime), ErrNotDispatchReady))

	completeThrough(t, p, "STAGE8-RFID")
	require.NoError(t, box.Hold("paint touch-up", "qc", testTime))
	assert.True(t, errors.Is(box.Dispatch(p, 7, "pm", testTime), ErrBoxOnHold))
	require.NoError(t, box.Release("qc", testTime))
	box.ClearDomainEvents()

	require.NoError(t, box.Dispatch(p, 7, "pm", testTime))
	assert.Equal(t, BoxDispatched, box.Status)
	require.NotNil(t, box.DispatchedAt)
	assert.Equal(t, "pm", box.DispatchedBy)

	assert.True(t, errors.Is(box.EnsureActive(), ErrBoxDispatched))
	assert.True(t, errors.Is(box.Hold("late", "qc", testTime), ErrBoxDispatched))
	assert.True(t, errors.Is(box.Release("qc", testTime), ErrBoxDispatched))
	assert.True(t, errors.Is(box.Dispatch(p, 7, "pm", testTime), ErrBoxDispatched))
	assert.True(t, errors.Is(box.Relocate("Site", "pm", testTime), ErrBoxDispatched))

	events := box.DomainEvents()
	require.Len(t, events, 1)
	assert.Equal(t, cloudevents.BoxDispatched, events[0].EventType())
}

func TestBox_LegacyRecordWithoutStatusIsActive(t *testing.T) {
	box := &Box{ID: "BOX-1"}
	assert.Equal(t, BoxActive, box.CurrentStatus())
	assert.NoError(t, box.EnsureActive())
}

func TestBox_CloneCopiesTimestamps(t *testing.T) {
	box := NewBox("BOX-1", "B-101", "Kitchen", "", "Bay 3", "v1", "pm-1", 10, testTime)
	require.NoError(t, box.Hold("crack", "qc", testTime))

	c := box.Clone()
	*c.HeldAt = testTime.Add(time.Hour)
	assert.Equal(t, testTime, *box.HeldAt)
	assert.Empty(t, c.DomainEvents())
}
