package application

import (
	"context"

	"github.com/dubox-platform/production-service/internal/applicability"
	"github.com/dubox-platform/production-service/internal/authorization"
	"github.com/dubox-platform/production-service/internal/catalog"
	"github.com/dubox-platform/production-service/pkg/errors"
	"github.com/dubox-platform/production-service/pkg/tracing"
)

// CatalogQuery reads the catalog summary
type CatalogQuery struct {
	UserID string
}

// ResolveActivitiesQuery lists the activities a box type requires
type ResolveActivitiesQuery struct {
	UserID  string
	BoxType string
	SubType string
}

// ChecklistQuery reads a checklist by its code or by the WIR code it serves
type ChecklistQuery struct {
	UserID string
	Code   string
}

// CatalogSummaryDTO is the overview of the catalog in use
type CatalogSummaryDTO struct {
	Version       string            `json:"version"`
	DispatchStage int               `json:"dispatchStage"`
	Stages        []catalog.Stage   `json:"stages"`
	BoxTypes      []catalog.BoxType `json:"boxTypes"`
	Activities    int               `json:"activities"`
	Checklists    []string          `json:"checklists"`
}

// ResolvedActivitiesDTO lists applicable activities in production order
type ResolvedActivitiesDTO struct {
	CatalogVersion string                             `json:"catalogVersion"`
	BoxType        string                             `json:"boxType"`
	SubType        string                             `json:"subType,omitempty"`
	Activities     []applicability.PositionedActivity `json:"activities"`
}

// ChecklistDTO is a checklist with its sections in display order
type ChecklistDTO struct {
	Checklist       catalog.Checklist `json:"checklist"`
	ActiveItemCount int               `json:"activeItemCount"`
}

// CatalogSummary returns the overview of the catalog in use
func (c *Coordinator) CatalogSummary(ctx context.Context, query CatalogQuery) (*CatalogSummaryDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.CatalogSummary", nil, func(ctx context.Context) (*CatalogSummaryDTO, error) {
		if err := c.authorize(ctx, "CatalogSummary", query.UserID, "", authorization.BoxesView); err != nil {
			return nil, err
		}

		codes := make([]string, 0, len(c.catalog.Checklists))
		for _, cl := range c.catalog.Checklists {
			codes = append(codes, cl.Code)
		}
		return &CatalogSummaryDTO{
			Version:       c.catalog.Version,
			DispatchStage: c.catalog.DispatchStage,
			Stages:        c.catalog.Stages,
			BoxTypes:      c.catalog.BoxTypes,
			Activities:    len(c.catalog.ActiveActivities()),
			Checklists:    codes,
		}, nil
	})
}

// ResolveActivities returns the activities a box of the given type would
// be registered with
func (c *Coordinator) ResolveActivities(ctx context.Context, query ResolveActivitiesQuery) (*ResolvedActivitiesDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.ResolveActivities", nil, func(ctx context.Context) (*ResolvedActivitiesDTO, error) {
		if err := c.authorize(ctx, "ResolveActivities", query.UserID, "", authorization.BoxesView); err != nil {
			return nil, err
		}

		res, err := c.resolver.Resolve(query.BoxType, query.SubType)
		if err != nil {
			return nil, toAppError(err, query.BoxType)
		}
		return &ResolvedActivitiesDTO{
			CatalogVersion: c.catalog.Version,
			BoxType:        res.BoxType.Name,
			SubType:        res.SubType,
			Activities:     applicability.Positioned(res.Activities),
		}, nil
	})
}

// Checklist returns a checklist definition
func (c *Coordinator) Checklist(ctx context.Context, query ChecklistQuery) (*ChecklistDTO, error) {
	return tracing.TracedOperation(ctx, c.tracer, "coordinator.Checklist", nil, func(ctx context.Context) (*ChecklistDTO, error) {
		if err := c.authorize(ctx, "Checklist", query.UserID, "", authorization.BoxesView); err != nil {
			return nil, err
		}

		cl, ok := c.catalog.Checklist(query.Code)
		if !ok {
			cl, ok = c.catalog.ChecklistForWIR(query.Code)
		}
		if !ok {
			return nil, errors.ErrNotFoundWithID("checklist", query.Code)
		}

		view := *cl
		view.Sections = cl.OrderedSections()
		return &ChecklistDTO{Checklist: view, ActiveItemCount: cl.ActiveItemCount()}, nil
	})
}
