package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRaiseInspection(t *testing.T) {
	p := newKitchenRecord(t)
	h := newHistory()

	_, err := RaiseInspection(p, h, "engineer", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence), "earlier activities are pending")
	assert.Empty(t, h.Attempts)

	notCheckpoint := NewWIRHistory("BOX-1", "STAGE1-FAB", "WIR-1", "Material-Verification")
	_, err = RaiseInspection(p, notCheckpoint, "engineer", testTime)
	assert.True(t, errors.Is(err, ErrNotACheckpoint))

	unknown := NewWIRHistory("BOX-1", "STAGE9-NOPE", "WIR-9", "X")
	_, err = RaiseInspection(p, unknown, "engineer", testTime)
	assert.True(t, errors.Is(err, ErrNotApplicable))

	completeThrough(t, p, "STAGE2-WIR1")
	attempt, err := RaiseInspection(p, h, "engineer", testTime)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt.Attempt)

	wir1, _ := p.Activity("STAGE2-WIR1")
	assert.Equal(t, ActivityInProgress, wir1.Status)
	fcu, _ := p.Activity("STAGE3-FCU")
	assert.Equal(t, ActivityBlocked, fcu.Status)
	assert.Equal(t, "awaiting WIR-1", fcu.BlockedReason)

	_, err = RaiseInspection(p, h, "engineer", testTime)
	assert.True(t, errors.Is(err, ErrDuplicateWIR))
}

func TestRaiseInspection_CheckpointAlreadyInProgress(t *testing.T) {
	p := newKitchenRecord(t)
	completeThrough(t, p, "STAGE2-WIR1")
	require.NoError(t, p.MarkInProgress("STAGE2-WIR1", "foreman", testTime))

	_, err := RaiseInspection(p, newHistory(), "engineer", testTime)
	require.NoError(t, err)
}

func TestApproveInspection_MakesNextActivityAvailable(t *testing.T) {
	p := newKitchenRecord(t)
	h := newHistory()
	completeThrough(t, p, "STAGE2-WIR1")

	_, err := RaiseInspection(p, h, "engineer", testTime)
	require.NoError(t, err)
	require.NoError(t, h.Submit(sampleReply, okVerdict, "engineer", testTime))

	require.NoError(t, ApproveInspection(p, h, inspector, nil, testTime))

	wir1, _ := p.Activity("STAGE2-WIR1")
	assert.Equal(t, ActivityCompleted, wir1.Status)
	assert.Equal(t, "qc-1", wir1.CompletedBy)

	next, ok := p.NextActivity()
	require.True(t, ok)
	assert.Equal(t, "STAGE3-FCU", next.ActivityCode)
	assert.Equal(t, 10, next.OverallSequence)
	assert.Equal(t, ActivityPending, next.Status)
	assert.True(t, p.CanStart("STAGE3-FCU"))

	cur, _ := h.Current()
	assert.Equal(t, WIRApproved, cur.Status)
	assert.True(t, cur.Locked)
}

func TestApproveInspection_OpenAttempt(t *testing.T) {
	p := newKitchenRecord(t)
	h := newHistory()
	completeThrough(t, p, "STAGE2-WIR1")
	_, err := RaiseInspection(p, h, "engineer", testTime)
	require.NoError(t, err)

	err = ApproveInspection(p, h, inspector, nil, testTime)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	wir1, _ := p.Activity("STAGE2-WIR1")
	assert.Equal(t, ActivityInProgress, wir1.Status)
}

func TestRejectInspection_KeepsNextBlocked(t *testing.T) {
	p := newKitchenRecord(t)
	h := newHistory()
	completeThrough(t, p, "STAGE2-WIR1")
	_, err := RaiseInspection(p, h, "engineer", testTime)
	require.NoError(t, err)
	require.NoError(t, h.Submit(sampleReply, okVerdict, "engineer", testTime))

	next, err := RejectInspection(p, h, inspector, "rework closure", testTime)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Attempt)

	fcu, _ := p.Activity("STAGE3-FCU")
	assert.Equal(t, ActivityBlocked, fcu.Status)
	assert.Equal(t, "WIR-1 rejected (attempt 1)", fcu.BlockedReason)

	wir1, _ := p.Activity("STAGE2-WIR1")
	assert.Equal(t, ActivityInProgress, wir1.Status)

	err = p.MarkInProgress("STAGE3-FCU", "foreman", testTime)
	assert.True(t, errors.Is(err, ErrOutOfSequence))

	// Second attempt approved opens the gate
	require.NoError(t, h.Submit(sampleReply, okVerdict, "engineer", testTime))
	require.NoError(t, ApproveInspection(p, h, inspector, nil, testTime))
	assert.True(t, p.CanStart("STAGE3-FCU"))
	assert.Len(t, h.Attempts, 2)
}
