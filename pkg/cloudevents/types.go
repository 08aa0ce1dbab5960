package cloudevents

import (
	"time"
)

// Event types emitted by the production stage-gate service
const (
	BoxRegistered     = "production.box.registered"
	BoxRelocated      = "production.box.relocated"
	BoxHeld           = "production.box.held"
	BoxReleased       = "production.box.released"
	BoxDispatched     = "production.box.dispatched"
	ActivityStarted   = "production.activity.started"
	ActivityCompleted = "production.activity.completed"
	WIRRaised         = "production.wir.raised"
	WIRSubmitted      = "production.wir.submitted"
	WIRApproved       = "production.wir.approved"
	WIRRejected       = "production.wir.rejected"
	WIROverdue        = "production.wir.overdue"
)

// SourceStageGate is the CloudEvents source of this service
const SourceStageGate = "/production/stage-gate-service"

// ProductionCloudEvent represents a CloudEvents v1.0 compliant event
type ProductionCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	// Extensions
	CorrelationID  string `json:"prodcorrelationid,omitempty"`
	BoxID          string `json:"prodboxid,omitempty"`
	CatalogVersion string `json:"prodcatalogversion,omitempty"`
	TraceParent    string `json:"traceparent,omitempty"`
}
