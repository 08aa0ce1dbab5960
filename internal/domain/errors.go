package domain

import (
	"errors"
	"fmt"

	"github.com/dubox-platform/production-service/internal/catalog"
)

// Errors for the production stage-gate
var (
	ErrUnknownBoxType      = errors.New("unknown box type")
	ErrNotApplicable       = errors.New("activity does not apply to box")
	ErrOutOfSequence       = errors.New("activity out of sequence")
	ErrRequiresInspection  = errors.New("activity completes only through inspection approval")
	ErrDuplicateWIR        = errors.New("inspection request already exists for checkpoint")
	ErrIncompleteChecklist = errors.New("checklist responses are incomplete")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidCatalog      = catalog.ErrInvalidCatalog
	ErrUnavailable         = errors.New("persistence unavailable")
	ErrBoxNotFound         = errors.New("box not found")
	ErrWIRNotFound         = errors.New("inspection request not found")
	ErrInvalidTransition   = errors.New("invalid inspection state transition")
	ErrNotACheckpoint      = errors.New("activity is not an inspection checkpoint")
	ErrNotesRequired       = errors.New("rejection notes are required")
	ErrInvalidLocation     = errors.New("location is required")
	ErrConcurrentUpdate    = errors.New("record was modified concurrently")
	ErrBoxOnHold           = errors.New("box is on hold")
	ErrBoxDispatched       = errors.New("box has been dispatched")
	ErrNotDispatchReady    = errors.New("box is not ready for dispatch")
	ErrHoldReasonRequired  = errors.New("hold reason is required")
)

// IncompleteChecklistError carries the item IDs that kept a submission from
// being accepted
type IncompleteChecklistError struct {
	ChecklistCode string
	Missing       []string
	Invalid       []string
}

func (e *IncompleteChecklistError) Error() string {
	return fmt.Sprintf("checklist %s incomplete: %d missing, %d invalid", e.ChecklistCode, len(e.Missing), len(e.Invalid))
}

func (e *IncompleteChecklistError) Unwrap() error {
	return ErrIncompleteChecklist
}
