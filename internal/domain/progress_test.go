package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
)

var testTime = time.Date(2024, 11, 4, 8, 0, 0, 0, time.UTC)

func loadCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.LoadDefault()
	require.NoError(t, err)
	return c
}

func newKitchenRecord(t *testing.T) *ProgressRecord {
	t.Helper()
	c := loadCatalog(t)
	var acts []catalog.Activity
	for _, a := range c.ActiveActivities() {
		if a.AppliesTo("Kitchen") {
			acts = append(acts, a)
		}
	}
	return NewProgressRecord("BOX-1", c.Version, acts, testTime)
}

// completeThrough completes every activity before code, approving checkpoints
// through the inspection path
func completeThrough(t *testing.T, p *ProgressRecord, code string) {
	t.Helper()
	for {
		next, ok := p.NextActivity()
		require.True(t, ok)
		if next.ActivityCode == code {
			return
		}
		if next.IsWIRCheckpoint {
			require.NoError(t, p.CompleteViaApproval(next.ActivityCode, "inspector", testTime))
			if after, ok := p.NextAfter(next.ActivityCode); ok {
				require.NoError(t, p.Unblock(after.ActivityCode))
			}
			continue
		}
		require.NoError(t, p.MarkCompleted(next.ActivityCode, "foreman", testTime))
	}
}

func TestNewProgressRecord(t *testing.T) {
	p := newKitchenRecord(t)

	require.NotEmpty(t, p.Activities)
	for i, a := range p.Activities {
		assert.Equal(t, ActivityPending, a.Status)
		assert.Equal(t, i+1, a.Position)
		if i > 0 {
			assert.Less(t, p.Activities[i-1].OverallSequence, a.OverallSequence)
		}
	}

	next, ok := p.NextActivity()
	require.True(t, ok)
	assert.Equal(t, "STAGE1-FAB", next.ActivityCode)
}

func TestProgress_StageOneGatesStageTwo(t *testing.T) {
	p := newKitchenRecord(t)

	err := p.MarkInProgress("STAGE2-ASM", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence))

	require.NoError(t, p.MarkCompleted("STAGE1-FAB", "foreman", testTime))
	require.NoError(t, p.MarkCompleted("STAGE1-DEL", "foreman", testTime))

	err = p.MarkInProgress("STAGE2-ASM", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence), "STAGE1-QC is still pending")

	require.NoError(t, p.MarkInProgress("STAGE1-QC", "foreman", testTime))
	err = p.MarkInProgress("STAGE2-ASM", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence), "STAGE1-QC is in progress, not complete")

	require.NoError(t, p.MarkCompleted("STAGE1-QC", "foreman", testTime))
	assert.True(t, p.CanStart("STAGE2-ASM"))
	require.NoError(t, p.MarkInProgress("STAGE2-ASM", "foreman", testTime))

	asm, _ := p.Activity("STAGE2-ASM")
	assert.Equal(t, ActivityInProgress, asm.Status)
	assert.Equal(t, 4, asm.OverallSequence)
}

func TestProgress_MarkInProgressErrors(t *testing.T) {
	p := newKitchenRecord(t)

	err := p.MarkInProgress("STAGE9-NOPE", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrNotApplicable))

	require.NoError(t, p.MarkInProgress("STAGE1-FAB", "foreman", testTime))
	err = p.MarkInProgress("STAGE1-FAB", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence), "already in progress")

	require.NoError(t, p.MarkCompleted("STAGE1-FAB", "foreman", testTime))
	err = p.MarkCompleted("STAGE1-FAB", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence), "already complete")
}

func TestProgress_CheckpointCannotBeCompletedDirectly(t *testing.T) {
	p := newKitchenRecord(t)
	completeThrough(t, p, "STAGE2-WIR1")

	err := p.MarkCompleted("STAGE2-WIR1", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrRequiresInspection))

	require.NoError(t, p.MarkInProgress("STAGE2-WIR1", "foreman", testTime))
	err = p.MarkCompleted("STAGE2-WIR1", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrRequiresInspection))

	// Every checkpoint in the record refuses direct completion, in any state
	for _, a := range p.Activities {
		if a.IsWIRCheckpoint {
			err := p.Clone().MarkCompleted(a.ActivityCode, "foreman", testTime)
			assert.True(t, errors.Is(err, ErrRequiresInspection), a.ActivityCode)
		}
	}
}

func TestProgress_CompleteViaApproval(t *testing.T) {
	p := newKitchenRecord(t)

	err := p.CompleteViaApproval("STAGE1-FAB", "inspector", testTime)
	assert.True(t, errors.Is(err, ErrNotACheckpoint))

	err = p.CompleteViaApproval("STAGE2-WIR1", "inspector", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence))

	completeThrough(t, p, "STAGE2-WIR1")
	require.NoError(t, p.CompleteViaApproval("STAGE2-WIR1", "inspector", testTime))

	next, ok := p.NextActivity()
	require.True(t, ok)
	assert.Equal(t, "STAGE3-FCU", next.ActivityCode)
	assert.Equal(t, 10, next.OverallSequence)
}

func TestProgress_BlockedActivityCannotStart(t *testing.T) {
	p := newKitchenRecord(t)

	require.NoError(t, p.MarkBlocked("STAGE1-FAB", "awaiting WIR-0"))
	assert.False(t, p.CanStart("STAGE1-FAB"))
	err := p.MarkInProgress("STAGE1-FAB", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence))

	fab, _ := p.Activity("STAGE1-FAB")
	assert.Equal(t, "awaiting WIR-0", fab.BlockedReason)

	require.NoError(t, p.Unblock("STAGE1-FAB"))
	assert.True(t, p.CanStart("STAGE1-FAB"))
	fab, _ = p.Activity("STAGE1-FAB")
	assert.Empty(t, fab.BlockedReason)
}

func TestProgress_SequentialGatingHoldsForEveryPair(t *testing.T) {
	p := newKitchenRecord(t)

	// Walk the whole record. At each step no later activity can be touched.
	for {
		next, ok := p.NextActivity()
		if !ok {
			break
		}
		for _, later := range p.Activities {
			if later.OverallSequence <= next.OverallSequence {
				continue
			}
			clone := p.Clone()
			assert.Error(t, clone.MarkInProgress(later.ActivityCode, "foreman", testTime))
			assert.Error(t, clone.MarkCompleted(later.ActivityCode, "foreman", testTime))
		}
		if next.IsWIRCheckpoint {
			require.NoError(t, p.CompleteViaApproval(next.ActivityCode, "inspector", testTime))
		} else {
			require.NoError(t, p.MarkCompleted(next.ActivityCode, "foreman", testTime))
		}
	}

	s := p.Summary()
	assert.True(t, s.AllComplete)
	assert.Equal(t, 100.0, s.ProgressPercent)
	assert.Equal(t, 8, s.CurrentStage)
}

func TestProgress_SummaryAndDispatch(t *testing.T) {
	p := newKitchenRecord(t)

	s := p.Summary()
	assert.Equal(t, len(p.Activities), s.Total)
	assert.Equal(t, s.Total, s.Pending)
	assert.Equal(t, 1, s.CurrentStage)
	assert.Equal(t, "STAGE1-FAB", s.NextActivity)
	assert.False(t, p.DispatchReady(7))

	require.NoError(t, p.MarkCompleted("STAGE1-FAB", "foreman", testTime))
	s = p.Summary()
	assert.Equal(t, 1, s.Completed)
	expected := float64(int(1.0/float64(s.Total)*10000+0.5)) / 100
	assert.InDelta(t, expected, s.ProgressPercent, 0.001)

	completeThrough(t, p, "STAGE8-RFID")
	assert.True(t, p.DispatchReady(7))
	assert.False(t, p.DispatchReady(8))
}

func TestProgress_Events(t *testing.T) {
	p := newKitchenRecord(t)
	require.NoError(t, p.MarkCompleted("STAGE1-FAB", "foreman", testTime))

	events := p.DomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, cloudevents.ActivityStarted, events[0].EventType())
	assert.Equal(t, cloudevents.ActivityCompleted, events[1].EventType())
	assert.Equal(t, "BOX-1", events[1].AggregateID())

	completed := events[1].(*ActivityCompletedEvent)
	assert.Equal(t, "STAGE1-FAB", completed.ActivityCode)
	assert.False(t, completed.ViaInspection)

	p.ClearDomainEvents()
	assert.Empty(t, p.DomainEvents())
}

func TestProgress_CloneIsIndependent(t *testing.T) {
	p := newKitchenRecord(t)
	require.NoError(t, p.MarkInProgress("STAGE1-FAB", "foreman", testTime))

	clone := p.Clone()
	require.NoError(t, clone.MarkCompleted("STAGE1-FAB", "foreman", testTime.Add(time.Hour)))

	fab, _ := p.Activity("STAGE1-FAB")
	assert.Equal(t, ActivityInProgress, fab.Status)
	assert.Nil(t, fab.CompletedAt)
	assert.Len(t, clone.DomainEvents(), 1)
}

func TestProgress_CheckpointsApproved(t *testing.T) {
	p := newKitchenRecord(t)
	assert.False(t, p.CheckpointsApproved())

	completeThrough(t, p, "STAGE2-WIR1")
	assert.False(t, p.CheckpointsApproved())

	completeThrough(t, p, "STAGE8-RFID")
	assert.True(t, p.CheckpointsApproved())
}
