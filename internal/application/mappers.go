package application

import (
	"time"

	"github.com/dubox-platform/production-service/internal/domain"
)

// ToBoxStatusDTO combines a box with its progress record
func ToBoxStatusDTO(box *domain.Box, progress *domain.ProgressRecord, dispatchStage int) *BoxStatusDTO {
	if box == nil || progress == nil {
		return nil
	}

	activities := make([]ActivityDTO, 0, len(progress.Activities))
	for _, a := range progress.Activities {
		activities = append(activities, ToActivityDTO(a))
	}

	updated := box.UpdatedAt
	if progress.UpdatedAt.After(updated) {
		updated = progress.UpdatedAt
	}

	return &BoxStatusDTO{
		BoxID:          box.ID,
		Tag:            box.Tag,
		BoxType:        box.BoxType,
		SubType:        box.SubType,
		Location:       box.Location,
		CatalogVersion: progress.CatalogVersion,
		Status:         string(box.CurrentStatus()),
		HoldReason:     box.HoldReason,
		DispatchedAt:   box.DispatchedAt,
		Summary:        progress.Summary(),
		DispatchReady:  progress.DispatchReady(dispatchStage) && progress.CheckpointsApproved(),
		Activities:     activities,
		CreatedBy:      box.CreatedBy,
		CreatedAt:      box.CreatedAt,
		UpdatedAt:      updated,
	}
}

// ToActivityDTO converts one progress entry
func ToActivityDTO(a domain.ActivityProgress) ActivityDTO {
	return ActivityDTO{
		Code:            a.ActivityCode,
		Name:            a.ActivityName,
		Stage:           a.StageNumber,
		OverallSequence: a.OverallSequence,
		Position:        a.Position,
		IsWIRCheckpoint: a.IsWIRCheckpoint,
		WIRCode:         a.WIRCode,
		Status:          string(a.Status),
		BlockedReason:   a.BlockedReason,
		StartedAt:       a.StartedAt,
		StartedBy:       a.StartedBy,
		CompletedAt:     a.CompletedAt,
		CompletedBy:     a.CompletedBy,
	}
}

// ToWIRHistoryDTO converts a history. SLA fields are computed against now.
func ToWIRHistoryDTO(h *domain.WIRHistory, now time.Time, slaDays int) *WIRHistoryDTO {
	if h == nil {
		return nil
	}

	dto := &WIRHistoryDTO{
		BoxID:         h.BoxID,
		ActivityCode:  h.ActivityCode,
		WIRCode:       h.WIRCode,
		ChecklistCode: h.ChecklistCode,
		Attempts:      make([]WIRAttemptDTO, 0, len(h.Attempts)),
	}
	if cur, ok := h.Current(); ok {
		dto.Status = string(cur.Status)
	}
	for i := range h.Attempts {
		dto.Attempts = append(dto.Attempts, ToWIRAttemptDTO(&h.Attempts[i], now, slaDays))
	}
	return dto
}

// ToWIRAttemptDTO converts one attempt
func ToWIRAttemptDTO(a *domain.WIRAttempt, now time.Time, slaDays int) WIRAttemptDTO {
	dto := WIRAttemptDTO{
		ID:          a.ID,
		Attempt:     a.Attempt,
		Status:      string(a.Status),
		RequestedBy: a.RequestedBy,
		RequestedAt: a.RequestedAt,
		Notes:       a.Notes,
		Conditions:  a.Conditions,
		ResolvedAt:  a.ResolvedAt,
		Locked:      a.Locked,
		Overdue:     a.Overdue(now, slaDays),
	}
	if !a.Status.IsTerminal() {
		dto.PendingDays = a.PendingDays(now)
	}
	if a.Submission != nil {
		at := a.Submission.SubmittedAt
		dto.SubmittedBy = a.Submission.SubmittedBy
		dto.SubmittedAt = &at
		dto.Responses = a.Submission.Responses
	}
	if a.Inspector != nil {
		dto.InspectorID = a.Inspector.ID
		dto.InspectorName = a.Inspector.Name
	}
	return dto
}

// ToOverdueWIRDTO converts a pending attempt past the SLA
func ToOverdueWIRDTO(h *domain.WIRHistory, a *domain.WIRAttempt, now time.Time) OverdueWIRDTO {
	return OverdueWIRDTO{
		BoxID:        h.BoxID,
		ActivityCode: h.ActivityCode,
		WIRCode:      h.WIRCode,
		Attempt:      a.Attempt,
		Status:       string(a.Status),
		RequestedBy:  a.RequestedBy,
		RequestedAt:  a.RequestedAt,
		PendingDays:  a.PendingDays(now),
		FlaggedAt:    a.OverdueFlaggedAt,
	}
}
