package application

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dubox-platform/production-service/internal/applicability"
	"github.com/dubox-platform/production-service/internal/authorization"
	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/internal/checklist"
	"github.com/dubox-platform/production-service/internal/domain"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
	"github.com/dubox-platform/production-service/pkg/errors"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/outbox"
	"github.com/dubox-platform/production-service/pkg/tracing"
)

// DefaultWIRSLADays is how many whole days an inspection may stay pending
// before it is overdue
const DefaultWIRSLADays = 3

// Authorizer answers whether a user holds a permission key (module.action)
type Authorizer interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// Config wires the coordinator's collaborators. Outbox may be nil, in
// which case domain events are only logged.
type Config struct {
	Resolver     *applicability.Resolver
	Boxes        domain.BoxRepository
	Progress     domain.ProgressRepository
	WIRs         domain.WIRRepository
	Outbox       outbox.Repository
	UnitOfWork   domain.UnitOfWork
	Authorizer   Authorizer
	Scheduler    InspectionScheduler
	EventFactory *cloudevents.EventFactory
	Logger       *logging.Logger
	Metrics      *metrics.Metrics
	WIRSLADays   int
	Clock        func() time.Time
	NewID        func() string
}

// Coordinator is the only entry point for production workflow changes.
// Every call is authorized first; mutations of one box are serialized and
// persisted together with their events.
type Coordinator struct {
	resolver     *applicability.Resolver
	catalog      *catalog.Catalog
	boxes        domain.BoxRepository
	progress     domain.ProgressRepository
	wirs         domain.WIRRepository
	outbox       outbox.Repository
	uow          domain.UnitOfWork
	authz        Authorizer
	scheduler    InspectionScheduler
	eventFactory *cloudevents.EventFactory
	logger       *logging.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	locks        *boxLocks
	slaDays      int
	now          func() time.Time
	newID        func() string
}

// NewCoordinator creates a coordinator
func NewCoordinator(cfg Config) *Coordinator {
	c := &Coordinator{
		resolver:     cfg.Resolver,
		catalog:      cfg.Resolver.Catalog(),
		boxes:        cfg.Boxes,
		progress:     cfg.Progress,
		wirs:         cfg.WIRs,
		outbox:       cfg.Outbox,
		uow:          cfg.UnitOfWork,
		authz:        cfg.Authorizer,
		scheduler:    cfg.Scheduler,
		eventFactory: cfg.EventFactory,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		tracer:       otel.Tracer("coordinator"),
		locks:        newBoxLocks(),
		slaDays:      cfg.WIRSLADays,
		now:          cfg.Clock,
		newID:        cfg.NewID,
	}

	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = c.logger.WithComponent("coordinator")
	if c.scheduler == nil {
		c.scheduler = NoopScheduler{}
	}
	if c.eventFactory == nil {
		c.eventFactory = cloudevents.NewEventFactory(cloudevents.SourceStageGate, c.catalog.Version)
	}
	if c.slaDays <= 0 {
		c.slaDays = DefaultWIRSLADays
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.newID == nil {
		c.newID = func() string { return uuid.New().String() }
	}
	return c
}

// Catalog returns the catalog in use
func (c *Coordinator) Catalog() *catalog.Catalog {
	return c.catalog
}

// WIRSLADays returns the inspection SLA in whole days
func (c *Coordinator) WIRSLADays() int {
	return c.slaDays
}

// RegisterBox enters a box into production with every applicable activity pending
func (c *Coordinator) RegisterBox(ctx context.Context, cmd RegisterBoxCommand) (*BoxStatusDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.RegisterBox", nil, func(ctx context.Context) (*BoxStatusDTO, error) {
		if err := c.authorize(ctx, "RegisterBox", cmd.UserID, "", authorization.BoxesCreate); err != nil {
			return nil, err
		}

		tag := strings.TrimSpace(cmd.Tag)
		if tag == "" {
			return nil, errors.ErrValidation("tag is required")
		}
		if strings.TrimSpace(cmd.Location) == "" {
			return nil, toAppError(domain.ErrInvalidLocation, "")
		}

		res, err := c.resolver.Resolve(cmd.BoxType, cmd.SubType)
		if err != nil {
			return nil, toAppError(err, cmd.BoxType)
		}

		boxID := c.newID()
		unlock := c.lockBox(boxID)
		defer unlock()

		now := c.now()
		box := domain.NewBox(boxID, tag, res.BoxType.Name, res.SubType, cmd.Location, c.catalog.Version, cmd.UserID, len(res.Activities), now)
		progress := domain.NewProgressRecord(boxID, c.catalog.Version, res.Activities, now)

		if err := c.commit(ctx, changeSet{newBox: box, progress: progress}); err != nil {
			c.logger.WithError(err).Error("Failed to register box", "boxId", boxID, "boxType", res.BoxType.Name)
			return nil, toAppError(err, boxID)
		}

		c.metrics.RecordBoxRegistered(res.BoxType.Name)
		c.logger.Info("Registered box", "boxId", boxID, "tag", tag, "boxType", res.BoxType.Name, "activities", len(res.Activities))
		return ToBoxStatusDTO(box, progress, c.catalog.DispatchStage), nil
	})
}

// RelocateBox records a new factory location for a box
func (c *Coordinator) RelocateBox(ctx context.Context, cmd RelocateBoxCommand) (*BoxStatusDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.RelocateBox", tracing.BoxSpanAttributes(cmd.BoxID, ""), func(ctx context.Context) (*BoxStatusDTO, error) {
		if err := c.authorize(ctx, "RelocateBox", cmd.UserID, cmd.BoxID, authorization.BoxesUpdateStatus); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		box, progress, err := c.loadBox(ctx, cmd.BoxID)
		if err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}

		if err := box.Relocate(cmd.Location, cmd.UserID, c.now()); err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}

		if err := c.commit(ctx, changeSet{box: box}); err != nil {
			c.logger.WithError(err).Error("Failed to relocate box", "boxId", cmd.BoxID)
			return nil, toAppError(err, cmd.BoxID)
		}

		return ToBoxStatusDTO(box, progress, c.catalog.DispatchStage), nil
	})
}

// HoldBox stops all production work on a box until it is released
func (c *Coordinator) HoldBox(ctx context.Context, cmd HoldBoxCommand) (*BoxStatusDTO, error) {
	return c.changeBoxStatus(ctx, "HoldBox", BoxCommand{UserID: cmd.UserID, BoxID: cmd.BoxID}, func(box *domain.Box, _ *domain.ProgressRecord, at time.Time) error {
		return box.Hold(cmd.Reason, cmd.UserID, at)
	})
}

// ReleaseBox returns a held box to production
func (c *Coordinator) ReleaseBox(ctx context.Context, cmd BoxCommand) (*BoxStatusDTO, error) {
	return c.changeBoxStatus(ctx, "ReleaseBox", cmd, func(box *domain.Box, _ *domain.ProgressRecord, at time.Time) error {
		return box.Release(cmd.UserID, at)
	})
}

// DispatchBox ships a box whose activities up to the dispatch stage are
// complete and whose inspections are all approved. A dispatched box is
// read-only.
func (c *Coordinator) DispatchBox(ctx context.Context, cmd BoxCommand) (*BoxStatusDTO, error) {
	return c.changeBoxStatus(ctx, "DispatchBox", cmd, func(box *domain.Box, progress *domain.ProgressRecord, at time.Time) error {
		return box.Dispatch(progress, c.catalog.DispatchStage, cmd.UserID, at)
	})
}

func (c *Coordinator) changeBoxStatus(ctx context.Context, op string, cmd BoxCommand, apply func(*domain.Box, *domain.ProgressRecord, time.Time) error) (*BoxStatusDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator."+op, tracing.BoxSpanAttributes(cmd.BoxID, ""), func(ctx context.Context) (*BoxStatusDTO, error) {
		if err := c.authorize(ctx, op, cmd.UserID, cmd.BoxID, authorization.BoxesUpdateStatus); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		box, progress, err := c.loadBox(ctx, cmd.BoxID)
		if err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}

		if err := apply(box, progress, c.now()); err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}

		if err := c.commit(ctx, changeSet{box: box}); err != nil {
			c.logger.WithError(err).Error("Failed to change box status", "boxId", cmd.BoxID, "operation", op)
			return nil, toAppError(err, cmd.BoxID)
		}

		status := box.CurrentStatus()
		c.metrics.RecordBoxLifecycle(string(status))
		c.logger.Audit(ctx, op, "box", cmd.BoxID, cmd.UserID, true, map[string]any{
			"status": string(status),
		})
		return ToBoxStatusDTO(box, progress, c.catalog.DispatchStage), nil
	})
}

// StartActivity moves the next activity of a box to in progress
func (c *Coordinator) StartActivity(ctx context.Context, cmd ActivityCommand) (*BoxStatusDTO, error) {
	return c.transitionActivity(ctx, "StartActivity", cmd, func(p *domain.ProgressRecord, at time.Time) error {
		return p.MarkInProgress(cmd.ActivityCode, cmd.UserID, at)
	})
}

// CompleteActivity completes the next activity of a box. Checkpoints are
// refused; they complete only through ApproveWIR.
func (c *Coordinator) CompleteActivity(ctx context.Context, cmd ActivityCommand) (*BoxStatusDTO, error) {
	return c.transitionActivity(ctx, "CompleteActivity", cmd, func(p *domain.ProgressRecord, at time.Time) error {
		return p.MarkCompleted(cmd.ActivityCode, cmd.UserID, at)
	})
}

func (c *Coordinator) transitionActivity(ctx context.Context, op string, cmd ActivityCommand, apply func(*domain.ProgressRecord, time.Time) error) (*BoxStatusDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator."+op, tracing.BoxSpanAttributes(cmd.BoxID, cmd.ActivityCode), func(ctx context.Context) (*BoxStatusDTO, error) {
		if err := c.authorize(ctx, op, cmd.UserID, cmd.BoxID, authorization.ActivitiesUpdateProgress); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		box, progress, err := c.loadBox(ctx, cmd.BoxID)
		if err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}
		if err := box.EnsureActive(); err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}

		if err := apply(progress, c.now()); err != nil {
			return nil, toAppError(err, cmd.ActivityCode)
		}

		if err := c.commit(ctx, changeSet{progress: progress}); err != nil {
			c.logger.WithError(err).Error("Failed to save activity transition", "boxId", cmd.BoxID, "activity", cmd.ActivityCode, "operation", op)
			return nil, toAppError(err, cmd.ActivityCode)
		}

		if entry, ok := progress.Activity(cmd.ActivityCode); ok {
			c.metrics.RecordActivityTransition(entry.StageNumber, string(entry.Status))
		}
		return ToBoxStatusDTO(box, progress, c.catalog.DispatchStage), nil
	})
}

// RaiseWIR opens the first inspection attempt on a checkpoint and blocks
// the activity after it until approval
func (c *Coordinator) RaiseWIR(ctx context.Context, cmd RaiseWIRCommand) (*WIRHistoryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.RaiseWIR", tracing.BoxSpanAttributes(cmd.BoxID, cmd.Checkpoint), func(ctx context.Context) (*WIRHistoryDTO, error) {
		if err := c.authorize(ctx, "RaiseWIR", cmd.UserID, cmd.BoxID, authorization.WIRCreate); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		box, progress, err := c.loadBox(ctx, cmd.BoxID)
		if err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}
		if err := box.EnsureActive(); err != nil {
			return nil, toAppError(err, cmd.BoxID)
		}
		entry, err := resolveCheckpoint(progress, cmd.Checkpoint)
		if err != nil {
			return nil, toAppError(err, cmd.Checkpoint)
		}

		cl, ok := c.catalog.ChecklistForWIR(entry.WIRCode)
		if !ok {
			return nil, errors.ErrInternal("no checklist bound to " + entry.WIRCode)
		}

		history, err := c.wirs.FindByBoxAndActivity(ctx, cmd.BoxID, entry.ActivityCode)
		if err != nil {
			return nil, toAppError(err, entry.ActivityCode)
		}
		if history == nil {
			history = domain.NewWIRHistory(cmd.BoxID, entry.ActivityCode, entry.WIRCode, cl.Code)
		}

		now := c.now()
		attempt, err := domain.RaiseInspection(progress, history, cmd.UserID, now)
		if err != nil {
			return nil, toAppError(err, entry.ActivityCode)
		}

		if err := c.commit(ctx, changeSet{progress: progress, history: history}); err != nil {
			c.logger.WithError(err).Error("Failed to raise WIR", "boxId", cmd.BoxID, "wirCode", history.WIRCode)
			return nil, toAppError(err, entry.ActivityCode)
		}

		c.metrics.RecordWIROutcome(history.WIRCode, "raised")
		c.scheduleSLA(ctx, history, attempt)
		return ToWIRHistoryDTO(history, now, c.slaDays), nil
	})
}

// SubmitWIRChecklist evaluates the responses against the bound checklist
// and moves the pending attempt to submitted when they are complete
func (c *Coordinator) SubmitWIRChecklist(ctx context.Context, cmd SubmitChecklistCommand) (*WIRHistoryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.SubmitWIRChecklist", tracing.BoxSpanAttributes(cmd.BoxID, cmd.Checkpoint), func(ctx context.Context) (*WIRHistoryDTO, error) {
		if err := c.authorize(ctx, "SubmitWIRChecklist", cmd.UserID, cmd.BoxID, authorization.WIRReview); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		_, history, err := c.loadCheckpoint(ctx, cmd.BoxID, cmd.Checkpoint)
		if err != nil {
			return nil, err
		}

		cl, ok := c.catalog.Checklist(history.ChecklistCode)
		if !ok {
			return nil, errors.ErrInternal("checklist " + history.ChecklistCode + " is not in the catalog")
		}

		verdict := checklist.Evaluate(cl, cmd.Responses, c.catalog)
		c.metrics.RecordChecklistEvaluation(cl.Code, verdict.OK)

		now := c.now()
		if err := history.Submit(cmd.Responses, verdict, cmd.UserID, now); err != nil {
			return nil, toAppError(err, history.ActivityCode)
		}

		if err := c.commit(ctx, changeSet{history: history}); err != nil {
			c.logger.WithError(err).Error("Failed to submit checklist", "boxId", cmd.BoxID, "wirCode", history.WIRCode)
			return nil, toAppError(err, history.ActivityCode)
		}

		c.metrics.RecordWIROutcome(history.WIRCode, "submitted")
		return ToWIRHistoryDTO(history, now, c.slaDays), nil
	})
}

// ApproveWIR approves the submitted attempt, completes the checkpoint and
// releases the next activity. Both records are saved atomically.
func (c *Coordinator) ApproveWIR(ctx context.Context, cmd ApproveWIRCommand) (*WIRHistoryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.ApproveWIR", tracing.BoxSpanAttributes(cmd.BoxID, cmd.Checkpoint), func(ctx context.Context) (*WIRHistoryDTO, error) {
		if err := c.authorize(ctx, "ApproveWIR", cmd.UserID, cmd.BoxID, authorization.WIRApprove); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		progress, history, err := c.loadCheckpoint(ctx, cmd.BoxID, cmd.Checkpoint)
		if err != nil {
			return nil, err
		}

		now := c.now()
		inspector := domain.Inspector{ID: cmd.UserID, Name: cmd.InspectorName, Role: cmd.InspectorRole}
		if err := domain.ApproveInspection(progress, history, inspector, cmd.Conditions, now); err != nil {
			return nil, toAppError(err, history.ActivityCode)
		}

		if err := c.commit(ctx, changeSet{progress: progress, history: history}); err != nil {
			c.logger.WithError(err).Error("Failed to approve WIR", "boxId", cmd.BoxID, "wirCode", history.WIRCode)
			return nil, toAppError(err, history.ActivityCode)
		}

		cur, _ := history.Current()
		c.metrics.RecordWIROutcome(history.WIRCode, string(cur.Status))
		if entry, ok := progress.Activity(history.ActivityCode); ok {
			c.metrics.RecordActivityTransition(entry.StageNumber, string(entry.Status))
		}
		c.logger.Audit(ctx, "ApproveWIR", "wir", history.ID, cmd.UserID, true, map[string]any{
			"wirCode": history.WIRCode,
			"attempt": cur.Attempt,
			"status":  string(cur.Status),
		})
		return ToWIRHistoryDTO(history, now, c.slaDays), nil
	})
}

// RejectWIR rejects the submitted attempt and opens the next one. The
// activity after the checkpoint stays blocked.
func (c *Coordinator) RejectWIR(ctx context.Context, cmd RejectWIRCommand) (*WIRHistoryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.RejectWIR", tracing.BoxSpanAttributes(cmd.BoxID, cmd.Checkpoint), func(ctx context.Context) (*WIRHistoryDTO, error) {
		if err := c.authorize(ctx, "RejectWIR", cmd.UserID, cmd.BoxID, authorization.WIRReject); err != nil {
			return nil, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		progress, history, err := c.loadCheckpoint(ctx, cmd.BoxID, cmd.Checkpoint)
		if err != nil {
			return nil, err
		}

		now := c.now()
		inspector := domain.Inspector{ID: cmd.UserID, Name: cmd.InspectorName, Role: cmd.InspectorRole}
		next, err := domain.RejectInspection(progress, history, inspector, cmd.Notes, now)
		if err != nil {
			return nil, toAppError(err, history.ActivityCode)
		}

		if err := c.commit(ctx, changeSet{progress: progress, history: history}); err != nil {
			c.logger.WithError(err).Error("Failed to reject WIR", "boxId", cmd.BoxID, "wirCode", history.WIRCode)
			return nil, toAppError(err, history.ActivityCode)
		}

		c.metrics.RecordWIROutcome(history.WIRCode, string(domain.WIRRejected))
		c.logger.Audit(ctx, "RejectWIR", "wir", history.ID, cmd.UserID, true, map[string]any{
			"wirCode":     history.WIRCode,
			"nextAttempt": next.Attempt,
		})
		c.scheduleSLA(ctx, history, next)
		return ToWIRHistoryDTO(history, now, c.slaDays), nil
	})
}

// StatusOf returns the progress view of a box
func (c *Coordinator) StatusOf(ctx context.Context, query StatusQuery) (*BoxStatusDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.StatusOf", tracing.BoxSpanAttributes(query.BoxID, ""), func(ctx context.Context) (*BoxStatusDTO, error) {
		if err := c.authorize(ctx, "StatusOf", query.UserID, query.BoxID, authorization.BoxesView); err != nil {
			return nil, err
		}

		box, progress, err := c.loadBox(ctx, query.BoxID)
		if err != nil {
			return nil, toAppError(err, query.BoxID)
		}
		return ToBoxStatusDTO(box, progress, c.catalog.DispatchStage), nil
	})
}

// WIRHistory returns every attempt of a checkpoint. A checkpoint that was
// never raised has an empty history.
func (c *Coordinator) WIRHistory(ctx context.Context, query WIRHistoryQuery) (*WIRHistoryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.WIRHistory", tracing.BoxSpanAttributes(query.BoxID, query.Checkpoint), func(ctx context.Context) (*WIRHistoryDTO, error) {
		if err := c.authorize(ctx, "WIRHistory", query.UserID, query.BoxID, authorization.WIRView); err != nil {
			return nil, err
		}

		progress, err := c.loadProgress(ctx, query.BoxID)
		if err != nil {
			return nil, toAppError(err, query.BoxID)
		}
		entry, err := resolveCheckpoint(progress, query.Checkpoint)
		if err != nil {
			return nil, toAppError(err, query.Checkpoint)
		}

		history, err := c.wirs.FindByBoxAndActivity(ctx, query.BoxID, entry.ActivityCode)
		if err != nil {
			return nil, toAppError(err, entry.ActivityCode)
		}
		if history == nil {
			checklistCode := ""
			if cl, ok := c.catalog.ChecklistForWIR(entry.WIRCode); ok {
				checklistCode = cl.Code
			}
			history = domain.NewWIRHistory(query.BoxID, entry.ActivityCode, entry.WIRCode, checklistCode)
		}
		return ToWIRHistoryDTO(history, c.now(), c.slaDays), nil
	})
}

// ListOverdueWIRs returns pending attempts older than the SLA, oldest first
func (c *Coordinator) ListOverdueWIRs(ctx context.Context, query OverdueWIRsQuery) ([]OverdueWIRDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.ListOverdueWIRs", nil, func(ctx context.Context) ([]OverdueWIRDTO, error) {
		if err := c.authorize(ctx, "ListOverdueWIRs", query.UserID, "", authorization.WIRView); err != nil {
			return nil, err
		}

		histories, err := c.wirs.FindPending(ctx)
		if err != nil {
			return nil, toAppError(err, "")
		}

		now := c.now()
		overdue := make([]OverdueWIRDTO, 0)
		for _, h := range histories {
			if cur, ok := h.Pending(); ok && cur.Overdue(now, c.slaDays) {
				overdue = append(overdue, ToOverdueWIRDTO(h, cur, now))
			}
		}
		sort.Slice(overdue, func(i, j int) bool {
			return overdue[i].RequestedAt.Before(overdue[j].RequestedAt)
		})
		return overdue, nil
	})
}

// FlagOverdueWIR records an overdue event for the given attempt if it is
// still pending past the SLA. It reports whether anything was flagged.
func (c *Coordinator) FlagOverdueWIR(ctx context.Context, cmd FlagOverdueCommand) (bool, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.FlagOverdueWIR", tracing.BoxSpanAttributes(cmd.BoxID, cmd.ActivityCode), func(ctx context.Context) (bool, error) {
		if err := c.authorize(ctx, "FlagOverdueWIR", cmd.UserID, cmd.BoxID, authorization.WIRManage); err != nil {
			return false, err
		}

		unlock := c.lockBox(cmd.BoxID)
		defer unlock()

		history, err := c.wirs.FindByBoxAndActivity(ctx, cmd.BoxID, cmd.ActivityCode)
		if err != nil {
			return false, toAppError(err, cmd.ActivityCode)
		}
		if history == nil {
			return false, toAppError(domain.ErrWIRNotFound, cmd.ActivityCode)
		}

		if !history.FlagOverdue(cmd.Attempt, c.now(), c.slaDays) {
			return false, nil
		}

		if err := c.commit(ctx, changeSet{history: history}); err != nil {
			c.logger.WithError(err).Error("Failed to flag overdue WIR", "boxId", cmd.BoxID, "wirCode", history.WIRCode)
			return false, toAppError(err, cmd.ActivityCode)
		}

		c.metrics.RecordWIROutcome(history.WIRCode, "overdue")
		c.logger.Warn("Inspection request overdue", "boxId", cmd.BoxID, "wirCode", history.WIRCode, "attempt", cmd.Attempt)
		return true, nil
	})
}

// authorize checks the permission before any state is read. Denials are
// audit-logged with the key but the caller only sees a generic message.
func (c *Coordinator) authorize(ctx context.Context, op, userID, boxID, permission string) error {
	allowed, err := c.authz.HasPermission(ctx, userID, permission)
	if err != nil {
		c.logger.WithError(err).Error("Authorization check failed", "operation", op)
		return errors.ErrServiceUnavailable("authorization").Wrap(err)
	}
	if allowed {
		return nil
	}

	c.metrics.RecordAuthorizationDenied(op)
	c.logger.Audit(ctx, op, "box", boxID, userID, false, map[string]any{
		"permission": permission,
	})
	return errors.ErrForbidden().Wrap(domain.ErrForbidden)
}

func (c *Coordinator) lockBox(boxID string) func() {
	start := time.Now()
	unlock := c.locks.lock(boxID)
	c.metrics.ObserveBoxLockWait(time.Since(start))
	return unlock
}

func (c *Coordinator) loadProgress(ctx context.Context, boxID string) (*domain.ProgressRecord, error) {
	progress, err := c.progress.FindByBoxID(ctx, boxID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrBoxNotFound
	}
	return progress, nil
}

func (c *Coordinator) loadBox(ctx context.Context, boxID string) (*domain.Box, *domain.ProgressRecord, error) {
	box, err := c.boxes.FindByID(ctx, boxID)
	if err != nil {
		return nil, nil, err
	}
	if box == nil {
		return nil, nil, domain.ErrBoxNotFound
	}
	progress, err := c.loadProgress(ctx, boxID)
	if err != nil {
		return nil, nil, err
	}
	return box, progress, nil
}

// loadCheckpoint loads the progress record and the existing history of a
// checkpoint on an active box. Errors are already translated.
func (c *Coordinator) loadCheckpoint(ctx context.Context, boxID, checkpoint string) (*domain.ProgressRecord, *domain.WIRHistory, error) {
	box, progress, err := c.loadBox(ctx, boxID)
	if err != nil {
		return nil, nil, toAppError(err, boxID)
	}
	if err := box.EnsureActive(); err != nil {
		return nil, nil, toAppError(err, boxID)
	}
	entry, err := resolveCheckpoint(progress, checkpoint)
	if err != nil {
		return nil, nil, toAppError(err, checkpoint)
	}

	history, err := c.wirs.FindByBoxAndActivity(ctx, boxID, entry.ActivityCode)
	if err != nil {
		return nil, nil, toAppError(err, entry.ActivityCode)
	}
	if history == nil {
		return nil, nil, toAppError(domain.ErrWIRNotFound, entry.ActivityCode)
	}
	return progress, history, nil
}

// resolveCheckpoint finds a checkpoint by activity code or WIR code
func resolveCheckpoint(progress *domain.ProgressRecord, code string) (*domain.ActivityProgress, error) {
	entry, ok := progress.Activity(code)
	if !ok {
		for i := range progress.Activities {
			a := &progress.Activities[i]
			if a.IsWIRCheckpoint && strings.EqualFold(a.WIRCode, code) {
				entry, ok = a, true
				break
			}
		}
	}
	if !ok {
		return nil, domain.ErrNotApplicable
	}
	if !entry.IsWIRCheckpoint {
		return nil, domain.ErrNotACheckpoint
	}
	return entry, nil
}

func (c *Coordinator) scheduleSLA(ctx context.Context, history *domain.WIRHistory, attempt *domain.WIRAttempt) {
	req := SLARequest{
		BoxID:        history.BoxID,
		ActivityCode: history.ActivityCode,
		WIRCode:      history.WIRCode,
		Attempt:      attempt.Attempt,
		RequestedAt:  attempt.RequestedAt,
		SLADays:      c.slaDays,
	}
	if err := c.scheduler.ScheduleSLA(ctx, req); err != nil {
		c.logger.WithError(err).Warn("Failed to schedule inspection SLA", "boxId", history.BoxID, "wirCode", history.WIRCode, "attempt", attempt.Attempt)
	}
}
