package cloudevents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dubox-platform/production-service/pkg/logging"
)

// EventFactory creates CloudEvents for production domain events
type EventFactory struct {
	source         string
	catalogVersion string
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source, catalogVersion string) *EventFactory {
	return &EventFactory{source: source, catalogVersion: catalogVersion}
}

// CreateEvent creates a new event. The correlation ID and W3C traceparent
// are taken from ctx when present.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, boxID string, data interface{}) *ProductionCloudEvent {
	event := &ProductionCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         "box/" + boxID,
		ID:              uuid.New().String(),
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            data,
		BoxID:           boxID,
		CatalogVersion:  f.catalogVersion,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceParent = fmt.Sprintf("00-%s-%s-%s", sc.TraceID(), sc.SpanID(), sc.TraceFlags())
	}

	return event
}
