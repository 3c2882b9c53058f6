package pipeline

import (
	"time"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/notify"
)

type EventKind string

const (
	EventSample        EventKind = "sample"
	EventStatus        EventKind = "status"
	EventAlertRaised   EventKind = "alert_raised"
	EventAlertUpdated  EventKind = "alert_updated"
	EventAlertResolved EventKind = "alert_resolved"
	EventDelivery      EventKind = "delivery"
)

// Event is what the pipeline tells its sinks. Only the field matching Kind
// is set. Payloads are copies owned by the event.
type Event struct {
	Kind     EventKind
	EntityID string
	At       time.Time

	Sample *domain.TelemetrySample
	Status *domain.StatusChange
	Alert  *domain.Alert
	Report *notify.Report
}

// Publisher receives pipeline events. Implementations must not block.
type Publisher interface {
	Publish(ev Event)
}
