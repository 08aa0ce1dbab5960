package application

import (
	"context"
	"fmt"
	"strings"

	"github.com/dubox-platform/production-service/internal/domain"
	"github.com/dubox-platform/production-service/pkg/kafka"
	"github.com/dubox-platform/production-service/pkg/outbox"
)

// changeSet is everything one operation persists
type changeSet struct {
	newBox   *domain.Box
	box      *domain.Box
	progress *domain.ProgressRecord
	history  *domain.WIRHistory
}

func (cs changeSet) events() []domain.DomainEvent {
	var events []domain.DomainEvent
	if cs.newBox != nil {
		events = append(events, cs.newBox.DomainEvents()...)
	}
	if cs.box != nil {
		events = append(events, cs.box.DomainEvents()...)
	}
	if cs.progress != nil {
		events = append(events, cs.progress.DomainEvents()...)
	}
	if cs.history != nil {
		events = append(events, cs.history.DomainEvents()...)
	}
	return events
}

func (cs changeSet) clearEvents() {
	if cs.newBox != nil {
		cs.newBox.ClearDomainEvents()
	}
	if cs.box != nil {
		cs.box.ClearDomainEvents()
	}
	if cs.progress != nil {
		cs.progress.ClearDomainEvents()
	}
	if cs.history != nil {
		cs.history.ClearDomainEvents()
	}
}

// commit saves the change set and its outbox events in one unit of work.
// Inspection history is written before progress, so a failed history write
// never leaves a progress record that opens a gate the history does not back.
func (c *Coordinator) commit(ctx context.Context, cs changeSet) error {
	events := cs.events()
	outboxEvents, err := c.toOutboxEvents(ctx, events)
	if err != nil {
		return err
	}

	err = c.uow.Do(ctx, func(ctx context.Context) error {
		if cs.newBox != nil {
			if err := c.boxes.Create(ctx, cs.newBox); err != nil {
				return err
			}
		}
		if cs.history != nil {
			if err := c.wirs.Save(ctx, cs.history); err != nil {
				return err
			}
		}
		if cs.box != nil {
			if err := c.boxes.Update(ctx, cs.box); err != nil {
				return err
			}
		}
		if cs.progress != nil {
			if err := c.progress.Save(ctx, cs.progress); err != nil {
				return err
			}
		}
		if c.outbox != nil && len(outboxEvents) > 0 {
			return c.outbox.SaveAll(ctx, outboxEvents)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range events {
		c.logger.Event(ctx, e.EventType(), map[string]any{"boxId": e.AggregateID()})
	}
	cs.clearEvents()
	return nil
}

func (c *Coordinator) toOutboxEvents(ctx context.Context, events []domain.DomainEvent) ([]*outbox.OutboxEvent, error) {
	if c.outbox == nil {
		return nil, nil
	}

	out := make([]*outbox.OutboxEvent, 0, len(events))
	for _, e := range events {
		aggregateType, topic := "box", kafka.Topics.ProductionEvents
		if strings.HasPrefix(e.EventType(), "production.wir.") {
			aggregateType, topic = "wir", kafka.Topics.InspectionEvents
		}

		ce := c.eventFactory.CreateEvent(ctx, e.EventType(), e.AggregateID(), e)
		oe, err := outbox.NewOutboxEventFromCloudEvent(aggregateType, topic, ce)
		if err != nil {
			return nil, fmt.Errorf("failed to build outbox event %s: %w", e.EventType(), err)
		}
		out = append(out, oe)
	}
	return out, nil
}
