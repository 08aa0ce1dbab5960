package domain

import "time"

// RaiseInspection opens the first attempt for a checkpoint. The checkpoint
// must be startable or already in progress; it moves to in progress and the
// activity after it is blocked until the inspection is approved.
func RaiseInspection(progress *ProgressRecord, history *WIRHistory, requestedBy string, at time.Time) (*WIRAttempt, error) {
	entry, ok := progress.Activity(history.ActivityCode)
	if !ok {
		return nil, ErrNotApplicable
	}
	if !entry.IsWIRCheckpoint {
		return nil, ErrNotACheckpoint
	}
	if len(history.Attempts) > 0 {
		return nil, ErrDuplicateWIR
	}

	if entry.Status != ActivityInProgress {
		if err := progress.MarkInProgress(entry.ActivityCode, requestedBy, at); err != nil {
			return nil, err
		}
	}

	attempt, err := history.Raise(requestedBy, at)
	if err != nil {
		return nil, err
	}

	if next, ok := progress.NextAfter(history.ActivityCode); ok {
		if err := progress.MarkBlocked(next.ActivityCode, history.BlockedReason()); err != nil {
			return nil, err
		}
	}
	return attempt, nil
}

// ApproveInspection resolves the submitted attempt, completes the checkpoint
// and releases the activity after it. On error both aggregates may be
// partially changed and must be discarded by the caller.
func ApproveInspection(progress *ProgressRecord, history *WIRHistory, inspector Inspector, conditions []string, at time.Time) error {
	if err := history.Approve(inspector, conditions, at); err != nil {
		return err
	}
	if err := progress.CompleteViaApproval(history.ActivityCode, inspector.ID, at); err != nil {
		return err
	}
	if next, ok := progress.NextAfter(history.ActivityCode); ok {
		return progress.Unblock(next.ActivityCode)
	}
	return nil
}

// RejectInspection resolves the submitted attempt as rejected, opens the
// next attempt and keeps the following activity blocked.
func RejectInspection(progress *ProgressRecord, history *WIRHistory, inspector Inspector, notes string, at time.Time) (*WIRAttempt, error) {
	attempt, err := history.Reject(inspector, notes, at)
	if err != nil {
		return nil, err
	}
	if next, ok := progress.NextAfter(history.ActivityCode); ok {
		if err := progress.MarkBlocked(next.ActivityCode, history.BlockedReason()); err != nil {
			return nil, err
		}
	}
	return attempt, nil
}
