package domain

import "time"

type AlertKind string

const (
	AlertLocation AlertKind = "LOCATION"
	AlertBattery  AlertKind = "BATTERY"
	AlertStale    AlertKind = "STALE"
	AlertManual   AlertKind = "MANUAL"
)

// DerivedAlertKinds are the kinds the status engine raises and resolves on
// its own. MANUAL is only raised through the manual alert boundary.
var DerivedAlertKinds = []AlertKind{AlertStale, AlertBattery, AlertLocation}

func (k AlertKind) Valid() bool {
	switch k {
	case AlertLocation, AlertBattery, AlertStale, AlertManual:
		return true
	}
	return false
}

// ManualReason mirrors the choices offered to a guardian when sending an
// emergency alert by hand.
type ManualReason string

const (
	ReasonMissing ManualReason = "missing"
	ReasonDanger  ManualReason = "danger"
	ReasonMedical ManualReason = "medical"
	ReasonLost    ManualReason = "lost"
)

func (r ManualReason) Valid() bool {
	switch r {
	case "", ReasonMissing, ReasonDanger, ReasonMedical, ReasonLost:
		return true
	}
	return false
}

type Alert struct {
	ID       string       `json:"id"`
	EntityID string       `json:"entity_id"`
	Kind     AlertKind    `json:"kind"`
	Severity SafetyStatus `json:"severity"`

	RaisedAt   time.Time  `json:"raised_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// Set for MANUAL alerts only.
	Message string       `json:"message,omitempty"`
	ActorID string       `json:"actor_id,omitempty"`
	Reason  ManualReason `json:"reason,omitempty"`

	Deliveries []DeliveryRecord `json:"deliveries,omitempty"`
}

func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}

// Clone returns a deep copy so readers never share memory with the ledger.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	c.Deliveries = append([]DeliveryRecord(nil), a.Deliveries...)
	return &c
}

type DeliveryOutcome string

const (
	Delivered   DeliveryOutcome = "DELIVERED"
	Unreachable DeliveryOutcome = "UNREACHABLE"
)

type UnreachableReason string

const (
	ReasonExhausted UnreachableReason = "exhausted"
	ReasonTimeout   UnreachableReason = "timeout"
	ReasonPermanent UnreachableReason = "permanent"
)

// DeliveryRecord is the final outcome for one contact in one dispatch.
type DeliveryRecord struct {
	DispatchID string            `json:"dispatch_id"`
	ContactID  string            `json:"contact_id"`
	Channel    Channel           `json:"channel"`
	Address    string            `json:"address"`
	Outcome    DeliveryOutcome   `json:"outcome"`
	Reason     UnreachableReason `json:"reason,omitempty"`
	Attempts   int               `json:"attempts"`
	LastError  string            `json:"last_error,omitempty"`
	FinishedAt time.Time         `json:"finished_at"`
}
