package application

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/dubox-platform/production-service/internal/domain"
	"github.com/dubox-platform/production-service/pkg/errors"
)

// toAppError translates domain failures into stable API errors. subject is
// the box type or activity code the operation was about.
func toAppError(err error, subject string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}

	var incomplete *domain.IncompleteChecklistError
	if stderrors.As(err, &incomplete) {
		return errors.ErrIncompleteChecklist(incomplete.ChecklistCode, incomplete.Missing, incomplete.Invalid).Wrap(err)
	}

	switch {
	case stderrors.Is(err, domain.ErrUnknownBoxType):
		return errors.ErrUnknownBoxType(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrNotApplicable):
		return errors.ErrNotApplicable(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrNotACheckpoint):
		return errors.NewAppError(errors.CodeNotApplicable, fmt.Sprintf("activity %s is not an inspection checkpoint", subject), http.StatusUnprocessableEntity).
			WithDetail("activityCode", subject).
			Wrap(err)
	case stderrors.Is(err, domain.ErrOutOfSequence):
		return errors.ErrOutOfSequence(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrRequiresInspection):
		return errors.ErrRequiresInspection(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrDuplicateWIR):
		return errors.ErrDuplicateWIR(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrInvalidTransition):
		return errors.ErrInvalidTransition(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrForbidden):
		return errors.ErrForbidden().Wrap(err)
	case stderrors.Is(err, domain.ErrBoxNotFound):
		return errors.ErrNotFound("box").Wrap(err)
	case stderrors.Is(err, domain.ErrWIRNotFound):
		return errors.ErrNotFound("inspection request").Wrap(err)
	case stderrors.Is(err, domain.ErrBoxOnHold):
		return errors.ErrBoxOnHold(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrBoxDispatched):
		return errors.ErrBoxDispatched(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrNotDispatchReady):
		return errors.ErrNotDispatchReady(subject).Wrap(err)
	case stderrors.Is(err, domain.ErrNotesRequired), stderrors.Is(err, domain.ErrInvalidLocation), stderrors.Is(err, domain.ErrHoldReasonRequired):
		return errors.ErrValidation(err.Error()).Wrap(err)
	case stderrors.Is(err, domain.ErrConcurrentUpdate):
		return errors.ErrConcurrentUpdate("box").Wrap(err)
	case stderrors.Is(err, domain.ErrUnavailable):
		return errors.ErrServiceUnavailable("persistence").Wrap(err)
	}
	return errors.ErrInternal("").Wrap(err)
}
